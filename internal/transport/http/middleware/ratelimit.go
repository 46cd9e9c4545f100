package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/infrastructure/redis"
	"github.com/baechuer/storefront-auth/internal/logger"
	appCtx "github.com/baechuer/storefront-auth/internal/pkg/context"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (redis.Decision, error)
	Enabled() bool
}

type RateLimitConfig struct {
	Scope  string // e.g. "login", "register"
	Limit  int
	Window time.Duration
}

// RateLimit counts requests per scope and caller in Redis so the limit is
// shared by every replica. When Redis is not configured or a call fails the
// request is counted by an in-process httprate limiter instead, which keeps a
// per-replica limit in place rather than failing open.
func RateLimit(limiter RateLimiter, cfg RateLimitConfig, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "default"
	}

	limited := func(w http.ResponseWriter, r *http.Request, backend string) {
		RateLimitedTotal.WithLabelValues(cfg.Scope, backend).Inc()
		writeErr(w, r, domain.ErrRateLimited(cfg.Scope))
	}

	local := httprate.Limit(
		cfg.Limit,
		cfg.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return cfg.Scope + ":" + identity(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			limited(w, r, "local")
		}),
	)

	return func(next http.Handler) http.Handler {
		fallback := local(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if limiter == nil || !limiter.Enabled() {
				fallback.ServeHTTP(w, r)
				return
			}

			key := redis.LimiterKey(cfg.Scope, identity(r))
			dec, err := limiter.Allow(r.Context(), key, cfg.Limit, cfg.Window)
			if err != nil {
				logger.WithCtx(r.Context()).Warn().Err(err).Str("scope", cfg.Scope).Msg("ratelimit_redis_failed")
				fallback.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))

			if !dec.Allowed {
				if dec.RetryAfter > 0 {
					secs := int(dec.RetryAfter.Round(time.Second) / time.Second)
					w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				}
				limited(w, r, "redis")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// identity prefers the authenticated user, then the client IP.
func identity(r *http.Request) string {
	if uid, ok := UserIDFromContext(r.Context()); ok {
		return "u:" + uid
	}
	if ip := appCtx.GetClientIP(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + remoteHost(r.RemoteAddr)
}
