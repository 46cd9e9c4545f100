package auth

import (
	"context"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// Me returns the caller's own record. Inactive accounts may still read it.
func (s *Service) Me(ctx context.Context, p domain.Principal) (domain.User, error) {
	if err := domain.Authorize(p, domain.ActionProfileReadOwn); err != nil {
		return domain.User{}, err
	}
	return s.users.GetByID(ctx, p.UserID)
}

// UpdateProfile changes the display name of the caller.
func (s *Service) UpdateProfile(ctx context.Context, p domain.Principal, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, domain.ErrMissingField("name")
	}
	if nameTooLong(name) {
		return domain.User{}, domain.ErrInvalidField("name", "too long")
	}
	if !domain.CanActOn(p, domain.ActionProfileUpdateOwn, p.UserID) {
		return domain.User{}, domain.Authorize(p, domain.ActionProfileUpdateOwn)
	}

	return s.users.UpdateProfile(ctx, p.UserID, name)
}
