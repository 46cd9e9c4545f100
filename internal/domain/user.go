package domain

import (
	"strings"
	"time"
	"unicode"
)

// InitialTokenVersion is stamped on every new account.
const InitialTokenVersion int64 = 1

type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	Role          Role
	Active        bool
	EmailVerified bool
	TokenVersion  int64

	Online     bool
	LastSeenAt *time.Time

	GoogleID string
	GitHubID string

	VerifyTokenHash      string
	VerifyTokenExpiresAt *time.Time
	ResetTokenHash       string
	ResetTokenExpiresAt  *time.Time

	RefreshTokenHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u User) HasPassword() bool { return u.PasswordHash != "" }

func (u User) HasOAuthIdentity() bool { return u.GoogleID != "" || u.GitHubID != "" }

// Validate checks the record-level invariants every store enforces on insert.
func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrMissingField("id")
	}
	if u.Email == "" {
		return ErrMissingField("email")
	}
	if u.Email != NormalizeEmail(u.Email) {
		return ErrInvalidField("email", "not normalized")
	}
	if !IsValidRole(string(u.Role)) {
		return ErrInvalidRole(string(u.Role))
	}
	if !u.HasPassword() && !u.HasOAuthIdentity() {
		return ErrMissingField("password_hash")
	}
	if u.TokenVersion < InitialTokenVersion {
		return ErrInvalidField("token_version", "must be >= 1")
	}
	return nil
}

func (u User) Principal() Principal {
	return Principal{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Active:       u.Active,
		TokenVersion: u.TokenVersion,
	}
}

// SessionState is the slice of a user the session middleware checks on every
// request. It is small enough to cache.
type SessionState struct {
	UserID       string `json:"uid"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	Active       bool   `json:"active"`
	TokenVersion int64  `json:"ver"`
}

func (u User) SessionState() SessionState {
	return SessionState{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Active:       u.Active,
		TokenVersion: u.TokenVersion,
	}
}

func (s SessionState) Principal() Principal {
	return Principal{
		UserID:       s.UserID,
		Email:        s.Email,
		Role:         s.Role,
		Active:       s.Active,
		TokenVersion: s.TokenVersion,
	}
}

const (
	PasswordMinLen = 8
	// bcrypt ignores everything past 72 bytes.
	PasswordMaxLen = 72
)

// ValidatePassword enforces the password policy for new passwords.
func ValidatePassword(pw string) error {
	if pw == "" {
		return ErrMissingField("password")
	}
	if len(pw) < PasswordMinLen {
		return ErrWeakPassword("min length 8")
	}
	if len(pw) > PasswordMaxLen {
		return ErrWeakPassword("max length 72")
	}
	if !PasswordStrong(pw) {
		return ErrWeakPassword("needs upper, lower and digit")
	}
	return nil
}

// PasswordStrong reports whether pw mixes upper case, lower case and digits.
func PasswordStrong(pw string) bool {
	var upper, lower, digit bool
	for _, c := range pw {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsNumber(c):
			digit = true
		}
		if upper && lower && digit {
			return true
		}
	}
	return false
}
