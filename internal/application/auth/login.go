package auth

import (
	"context"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// Login authenticates a user and issues tokens.
// IMPORTANT: must not leak whether the email exists (avoid user enumeration).
// Inactive accounts may log in; the permission gate refuses active-only
// actions for them.
func (s *Service) Login(ctx context.Context, email, password string) (SessionResult, error) {
	email = domain.NormalizeEmail(email)

	if email == "" || password == "" {
		return SessionResult{}, domain.ErrInvalidCredentials()
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			return SessionResult{}, domain.ErrInvalidCredentials()
		}
		return SessionResult{}, err
	}

	// OAuth-only accounts have no password to compare against.
	if !u.HasPassword() {
		return SessionResult{}, domain.ErrInvalidCredentials()
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return SessionResult{}, domain.ErrInvalidCredentials()
	}

	toks, err := s.issueTokens(ctx, u)
	if err != nil {
		return SessionResult{}, err
	}

	s.markPresence(ctx, u.ID, true)
	now := s.now()
	u.Online = true
	u.LastSeenAt = &now

	return SessionResult{User: u, Tokens: toks}, nil
}
