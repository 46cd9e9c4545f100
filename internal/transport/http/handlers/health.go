package http_handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/storefront-auth/internal/logger"
	"github.com/baechuer/storefront-auth/internal/transport/http/response"
)

// Pinger is satisfied by *sql.DB (via PingContext adapter) and the redis client.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	db    Pinger
	redis Pinger // optional; a down cache degrades but does not fail readiness
}

func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db(ctx); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Msg("readyz_db_failed")
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis(ctx); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Msg("readyz_redis_failed")
			checks["redis"] = "degraded"
		} else {
			checks["redis"] = "ok"
		}
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	response.WriteJSON(w, status, map[string]any{"status": overall, "checks": checks})
}
