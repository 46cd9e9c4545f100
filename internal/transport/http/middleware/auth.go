package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

type TokenVerifier interface {
	VerifyAccess(token string) (auth.TokenClaims, error)
}

type WriteErrFunc func(http.ResponseWriter, *http.Request, error)

// Auth verifies "Authorization: Bearer <access_token>", checks the token's
// version against the stored session state and puts the resulting Principal
// on the request context.
//
// Role and active come from the stored state, not the token, so a demotion or
// deactivation takes effect on the next request even if the bump raced.
func Auth(verifier TokenVerifier, sessions auth.SessionStateReader, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(err error) {
				reason := "internal_error"
				var de *domain.Error
				if errors.As(err, &de) {
					reason = de.Code
				}
				SessionRejectionsTotal.WithLabelValues(reason).Inc()
				writeErr(w, r, err)
			}

			raw, err := bearerToken(r)
			if err != nil {
				reject(err)
				return
			}

			claims, err := verifier.VerifyAccess(raw)
			if err != nil {
				reject(err)
				return
			}
			if strings.TrimSpace(claims.UserID) == "" {
				reject(domain.ErrTokenInvalid())
				return
			}

			st, err := sessions.GetSessionState(r.Context(), claims.UserID)
			if err != nil {
				if domain.Is(err, "user_not_found") {
					reject(domain.ErrUnauthorized())
					return
				}
				reject(err)
				return
			}

			if claims.Ver != st.TokenVersion {
				logger.WithCtx(r.Context()).Debug().
					Str("user_id", claims.UserID).
					Int64("token_ver", claims.Ver).
					Int64("current_ver", st.TokenVersion).
					Msg("stale_access_token")
				reject(domain.ErrTokenStale())
				return
			}

			ctx := WithPrincipal(r.Context(), st.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", domain.ErrTokenMissing()
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", domain.ErrTokenInvalid()
	}

	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", domain.ErrTokenInvalid()
	}
	return raw, nil
}
