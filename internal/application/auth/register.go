package auth

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// maxNameLen counts runes, like the request validator.
const maxNameLen = 100

func nameTooLong(name string) bool {
	return utf8.RuneCountInString(name) > maxNameLen
}

func clipName(name string) string {
	if !nameTooLong(name) {
		return name
	}
	return string([]rune(name)[:maxNameLen])
}

// Register creates a customer or vendor account, signs the first session and
// sends the verification email. Admins are never self-registered.
func (s *Service) Register(ctx context.Context, email, password, name string, role domain.Role) (SessionResult, error) {
	email = domain.NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" {
		return SessionResult{}, domain.ErrMissingField("email")
	}
	if !strings.Contains(email, "@") {
		return SessionResult{}, domain.ErrInvalidField("email", "invalid format")
	}
	if err := domain.ValidatePassword(password); err != nil {
		return SessionResult{}, err
	}
	if nameTooLong(name) {
		return SessionResult{}, domain.ErrInvalidField("name", "too long")
	}
	if role == "" {
		role = domain.RoleCustomer
	}
	if !domain.IsValidRole(string(role)) {
		return SessionResult{}, domain.ErrInvalidRole(string(role))
	}
	if !domain.SelfAssignable(role) {
		return SessionResult{}, domain.ErrRoleNotSelfAssignable(string(role))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return SessionResult{}, domain.ErrHashFailed(err)
	}

	now := s.now()
	u := domain.User{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          name,
		PasswordHash:  hash,
		Role:          role,
		Active:        role == domain.RoleCustomer || s.vendorsActiveOnRegister,
		EmailVerified: false,
		TokenVersion:  domain.InitialTokenVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := u.Validate(); err != nil {
		return SessionResult{}, err
	}

	created, err := s.users.Create(ctx, u)
	if err != nil {
		return SessionResult{}, err
	}

	toks, err := s.issueTokens(ctx, created)
	if err != nil {
		return SessionResult{}, err
	}

	s.sendVerification(ctx, created)

	s.audit("user.register", map[string]string{
		"user_id": created.ID,
		"role":    string(created.Role),
	})

	return SessionResult{User: created, Tokens: toks}, nil
}
