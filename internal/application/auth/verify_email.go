package auth

import (
	"context"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

// GenerateVerificationToken signs a verification token for the user and
// stores its hash with an explicit expiry. Any earlier token is replaced.
func (s *Service) GenerateVerificationToken(ctx context.Context, u domain.User) (string, error) {
	token, err := s.actions.SignActionToken(TokenVerifyEmail, u.ID, u.Email, s.verifyEmailTTL)
	if err != nil {
		return "", domain.ErrTokenSignFailed(err)
	}
	if err := s.users.SetVerifyToken(ctx, u.ID, HashToken(token), s.now().Add(s.verifyEmailTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// sendVerification is fire-and-forget: failures are logged, never returned.
func (s *Service) sendVerification(ctx context.Context, u domain.User) {
	lg := logger.WithCtx(ctx)

	token, err := s.GenerateVerificationToken(ctx, u)
	if err != nil {
		lg.Error().Err(err).Str("user_id", u.ID).Msg("verify_token_create_failed")
		return
	}

	if err := s.pub.PublishVerifyEmail(ctx, VerifyEmailEvent{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		URL:    s.verifyEmailBaseURL + token,
	}); err != nil {
		lg.Error().Err(err).Str("user_id", u.ID).Msg("verify_email_publish_failed")
	}
}

// RequestEmailVerification re-sends the verification email.
// IMPORTANT: non-enumerating - unknown or already verified emails succeed
// without sending anything.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
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
	if u.EmailVerified {
		return nil
	}

	s.sendVerification(ctx, u)
	return nil
}

// VerifyEmail consumes a verification token and marks the email verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrMissingField("token")
	}

	claims, err := s.actions.VerifyActionToken(TokenVerifyEmail, token)
	if err != nil {
		return domain.ErrInvalidOrExpiredToken()
	}

	if err := s.users.ConsumeVerifyToken(ctx, claims.UserID, HashToken(token), s.now()); err != nil {
		return err
	}

	s.audit("user.email_verified", map[string]string{"user_id": claims.UserID})
	return nil
}
