package middleware

import (
	"net/http"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// Require lets the request through only if the Principal placed by Auth may
// perform action. Ownership checks stay in the service, which knows the target.
func Require(action domain.Action, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	deny := func(w http.ResponseWriter, r *http.Request, err error) {
		reason := domain.CodeOf(err)
		AuthorizationDeniedTotal.WithLabelValues(string(action), reason).Inc()
		writeErr(w, r, err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				// route mounted without Auth in front
				deny(w, r, domain.ErrUnauthorized())
				return
			}
			if err := domain.Authorize(p, action); err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
