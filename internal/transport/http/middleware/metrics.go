package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "storefront_auth"

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, labels)
}

var (
	httpRequestsTotal = counterVec("http_requests_total",
		"HTTP requests by route pattern and status.", "method", "route", "status")

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		// bcrypt dominates login and register, so the upper buckets matter
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	// LoginAttemptsTotal is labelled "success" or the domain error code.
	LoginAttemptsTotal = counterVec("login_attempts_total",
		"Password logins by outcome.", "result")

	// TokenRefreshTotal is labelled "success", "missing" or the domain error code.
	TokenRefreshTotal = counterVec("token_refresh_total",
		"Refresh token rotations by outcome.", "result")

	SessionRejectionsTotal = counterVec("session_rejections_total",
		"Requests rejected by the session check.", "reason")

	AuthorizationDeniedTotal = counterVec("authorization_denied_total",
		"Requests refused by the permission table.", "action", "reason")

	RateLimitedTotal = counterVec("rate_limited_total",
		"Requests rejected by the rate limiter.", "scope", "backend")
)

// Metrics records request count, latency and in-flight gauge. Routes are
// labelled by chi pattern so user ids never become label values.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}
