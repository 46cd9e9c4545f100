package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/transport/http/middleware"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type AuthHandler interface {
	// Core auth
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)

	// Own account
	Me(w http.ResponseWriter, r *http.Request)
	UpdateMe(w http.ResponseWriter, r *http.Request)
	DeactivateMe(w http.ResponseWriter, r *http.Request)
	PasswordChange(w http.ResponseWriter, r *http.Request)
	SessionsRevoke(w http.ResponseWriter, r *http.Request)

	// Email verification
	VerifyEmailRequest(w http.ResponseWriter, r *http.Request)
	VerifyEmailConfirm(w http.ResponseWriter, r *http.Request)

	// Password reset
	PasswordResetRequest(w http.ResponseWriter, r *http.Request)
	PasswordResetValidate(w http.ResponseWriter, r *http.Request)
	PasswordResetConfirm(w http.ResponseWriter, r *http.Request)

	// Administration
	AdminUserStatus(w http.ResponseWriter, r *http.Request)
	AdminActivateUser(w http.ResponseWriter, r *http.Request)
	AdminDeactivateUser(w http.ResponseWriter, r *http.Request)
	AdminSetUserRole(w http.ResponseWriter, r *http.Request)
	AdminRevokeSessions(w http.ResponseWriter, r *http.Request)
	AdminDeleteUser(w http.ResponseWriter, r *http.Request)
}

type OAuthHandler interface {
	OAuthStart(w http.ResponseWriter, r *http.Request)
	OAuthCallback(w http.ResponseWriter, r *http.Request)
}

type Middleware = func(http.Handler) http.Handler

type Deps struct {
	Health HealthHandler
	Auth   AuthHandler
	OAuth  OAuthHandler // optional

	// AuthMW resolves the Principal; Require gates one action on top of it.
	AuthMW  Middleware
	Require func(action domain.Action) Middleware
	// RateLimit returns the limiter for a scope such as "login".
	RateLimit func(scope string) Middleware
	CSRF      Middleware // optional

	// Metrics exposes /metrics when set.
	Metrics http.Handler
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, fmt.Errorf("nil Health handler")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("nil Auth handler")
	}
	if deps.AuthMW == nil {
		return nil, fmt.Errorf("nil Auth middleware")
	}
	if deps.Require == nil {
		return nil, fmt.Errorf("nil Require middleware")
	}
	if deps.RateLimit == nil {
		deps.RateLimit = func(string) Middleware { return passthrough }
	}
	if deps.CSRF == nil {
		deps.CSRF = passthrough
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	guard := func(action domain.Action) []Middleware {
		return []Middleware{deps.AuthMW, deps.Require(action)}
	}

	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(deps.CSRF)

		// --- Core auth ---
		r.With(deps.RateLimit("register")).Post("/register", deps.Auth.Register)
		r.With(deps.RateLimit("login")).Post("/login", deps.Auth.Login)
		r.With(deps.RateLimit("refresh")).Post("/refresh", deps.Auth.Refresh)
		r.With(deps.AuthMW).Post("/logout", deps.Auth.Logout)

		// --- Own account ---
		r.With(guard(domain.ActionProfileReadOwn)...).Get("/me", deps.Auth.Me)
		r.With(guard(domain.ActionProfileUpdateOwn)...).Patch("/me", deps.Auth.UpdateMe)
		r.With(guard(domain.ActionAccountDeactivate)...).Post("/me/deactivate", deps.Auth.DeactivateMe)
		r.With(guard(domain.ActionPasswordChangeOwn)...).Post("/password/change", deps.Auth.PasswordChange)
		r.With(guard(domain.ActionSessionsRevokeOwn)...).Post("/sessions/revoke", deps.Auth.SessionsRevoke)

		// --- Email verification ---
		r.With(deps.RateLimit("verify_email")).Post("/verify-email/request", deps.Auth.VerifyEmailRequest)
		r.Get("/verify-email/{token}", deps.Auth.VerifyEmailConfirm)

		// --- Password reset ---
		r.With(deps.RateLimit("password_reset")).Post("/password/reset/request", deps.Auth.PasswordResetRequest)
		r.Get("/password/reset/{token}", deps.Auth.PasswordResetValidate)
		r.With(deps.RateLimit("password_reset")).Post("/password/reset/{token}", deps.Auth.PasswordResetConfirm)

		// --- OAuth ---
		if deps.OAuth != nil {
			r.With(deps.RateLimit("oauth")).Get("/oauth/{provider}/start", deps.OAuth.OAuthStart)
			r.Get("/oauth/{provider}/callback", deps.OAuth.OAuthCallback)
		}

		// --- Admin ---
		r.Route("/admin/users/{id}", func(r chi.Router) {
			r.With(guard(domain.ActionUsersRead)...).Get("/", deps.Auth.AdminUserStatus)
			r.With(guard(domain.ActionUsersDelete)...).Delete("/", deps.Auth.AdminDeleteUser)
			r.With(guard(domain.ActionUsersActivate)...).Post("/activate", deps.Auth.AdminActivateUser)
			r.With(guard(domain.ActionUsersDeactivate)...).Post("/deactivate", deps.Auth.AdminDeactivateUser)
			r.With(guard(domain.ActionUsersSetRole)...).Post("/role", deps.Auth.AdminSetUserRole)
			r.With(guard(domain.ActionUsersRevokeSession)...).Post("/sessions/revoke", deps.Auth.AdminRevokeSessions)
		})
	})

	return r, nil
}

func passthrough(next http.Handler) http.Handler { return next }

// MetricsHandler is the default /metrics handler.
func MetricsHandler() http.Handler { return promhttp.Handler() }
