package auth

import (
	"context"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

// ChangePassword re-hashes the password of the caller, which also bumps the
// token version. The caller gets a fresh pair so the current device stays
// signed in while every other session dies.
func (s *Service) ChangePassword(ctx context.Context, p domain.Principal, oldPassword, newPassword string) (AuthTokens, error) {
	if oldPassword == "" {
		return AuthTokens{}, domain.ErrMissingField("old_password")
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return AuthTokens{}, err
	}
	if err := domain.Authorize(p, domain.ActionPasswordChangeOwn); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return AuthTokens{}, err
	}

	if !u.HasPassword() {
		return AuthTokens{}, domain.ErrInvalidCredentials()
	}
	if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
		return AuthTokens{}, domain.ErrInvalidCredentials()
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return AuthTokens{}, domain.ErrHashFailed(err)
	}

	ver, err := s.users.UpdatePassword(ctx, u.ID, newHash)
	if err != nil {
		return AuthTokens{}, err
	}
	u.PasswordHash = newHash
	u.TokenVersion = ver

	s.audit("user.password_changed", map[string]string{"user_id": u.ID})
	return s.issueTokens(ctx, u)
}

// CreatePasswordResetToken signs a reset token and stores its hash with an
// explicit expiry. Any earlier token is replaced.
func (s *Service) CreatePasswordResetToken(ctx context.Context, u domain.User) (string, error) {
	token, err := s.actions.SignActionToken(TokenPasswordReset, u.ID, u.Email, s.passwordResetTTL)
	if err != nil {
		return "", domain.ErrTokenSignFailed(err)
	}
	if err := s.users.SetResetToken(ctx, u.ID, HashToken(token), s.now().Add(s.passwordResetTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// RequestPasswordReset creates a reset token and hands the link to the
// notification publisher.
// IMPORTANT: should be non-enumerating - caller should always return 200.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.ErrMissingField("email")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			return nil
		}
		return err
	}

	token, err := s.CreatePasswordResetToken(ctx, u)
	if err != nil {
		return err
	}

	if err := s.pub.PublishPasswordReset(ctx, PasswordResetEvent{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		URL:    s.passwordResetBaseURL + token,
	}); err != nil {
		logger.WithCtx(ctx).Error().Err(err).Str("user_id", u.ID).Msg("password_reset_publish_failed")
	}
	return nil
}

// ValidateResetToken checks a reset token without consuming it.
func (s *Service) ValidateResetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrMissingField("token")
	}
	claims, err := s.actions.VerifyActionToken(TokenPasswordReset, token)
	if err != nil {
		return domain.ErrInvalidOrExpiredToken()
	}
	return s.users.PeekResetToken(ctx, claims.UserID, HashToken(token), s.now())
}

// ResetPassword consumes the token and sets the new password in one store
// call, which also bumps the token version and drops the refresh token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrMissingField("token")
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	claims, err := s.actions.VerifyActionToken(TokenPasswordReset, token)
	if err != nil {
		return domain.ErrInvalidOrExpiredToken()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return domain.ErrHashFailed(err)
	}

	if _, err := s.users.ConsumeResetToken(ctx, claims.UserID, HashToken(token), hash, s.now()); err != nil {
		return err
	}

	s.audit("user.password_reset", map[string]string{"user_id": claims.UserID})
	return nil
}
