package auth

import (
	"context"
	"crypto/subtle"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

// Refresh rotates a refresh token and issues a new pair.
// Rotation rule: the presented token must be the one currently stored on the
// user and must carry the current token version. Presenting an already
// rotated token clears the stored one, ending that session chain.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (SessionResult, error) {
	if refreshToken == "" {
		return SessionResult{}, domain.ErrRefreshTokenInvalid()
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return SessionResult{}, err
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			return SessionResult{}, domain.ErrRefreshTokenInvalid()
		}
		return SessionResult{}, err
	}

	if claims.Ver != u.TokenVersion {
		return SessionResult{}, domain.ErrTokenStale()
	}
	if u.RefreshTokenHash == "" {
		// logged out or invalidated
		return SessionResult{}, domain.ErrRefreshTokenInvalid()
	}

	oldHash := HashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(oldHash), []byte(u.RefreshTokenHash)) != 1 {
		if err := s.users.SetRefreshTokenHash(ctx, u.ID, ""); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("user_id", u.ID).Msg("refresh_reuse_clear_failed")
		}
		s.audit("session.refresh_reuse", map[string]string{"user_id": u.ID})
		return SessionResult{}, domain.ErrRefreshTokenReused()
	}

	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		return SessionResult{}, domain.ErrTokenSignFailed(err)
	}

	if err := s.users.RotateRefreshTokenHash(ctx, u.ID, oldHash, HashToken(pair.RefreshToken), u.TokenVersion); err != nil {
		return SessionResult{}, err
	}

	return SessionResult{User: u, Tokens: s.toAuthTokens(pair)}, nil
}
