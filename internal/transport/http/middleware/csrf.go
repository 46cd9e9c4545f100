package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/infrastructure/security"
)

// CSRFProtection checks Origin/Referer on state-changing requests that
// authenticate with the refresh cookie. Requests that carry the token in the
// body or a bearer header are not cookie-authenticated and pass through.
// An empty allow list disables the check.
func CSRFProtection(allowedOrigins []string, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	allowedHosts := make(map[string]struct{})
	for _, origin := range allowedOrigins {
		if u, err := url.Parse(strings.TrimSpace(origin)); err == nil && u.Host != "" {
			allowedHosts[strings.ToLower(u.Host)] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowedHosts) == 0 || !unsafeMethod(r.Method) || !hasRefreshCookie(r) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = r.Header.Get("Referer")
			}
			if origin == "" {
				writeErr(w, r, domain.WithMeta(domain.ErrForbidden(), map[string]string{"reason": "missing_origin"}))
				return
			}

			u, err := url.Parse(origin)
			if err != nil {
				writeErr(w, r, domain.WithMeta(domain.ErrForbidden(), map[string]string{"reason": "invalid_origin"}))
				return
			}
			if _, ok := allowedHosts[strings.ToLower(u.Host)]; !ok {
				writeErr(w, r, domain.WithMeta(domain.ErrForbidden(), map[string]string{"reason": "csrf_rejected"}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func hasRefreshCookie(r *http.Request) bool {
	tok, err := security.ReadRefreshToken(r)
	return err == nil && tok != ""
}
