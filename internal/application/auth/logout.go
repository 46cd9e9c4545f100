package auth

import (
	"context"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// Logout drops the stored refresh token and marks the user offline.
// Access tokens already handed out stay valid until they expire; use
// InvalidateSessions to kill those too.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrTokenMissing()
	}
	if err := s.users.SetRefreshTokenHash(ctx, userID, ""); err != nil {
		return err
	}
	s.markPresence(ctx, userID, false)
	return nil
}
