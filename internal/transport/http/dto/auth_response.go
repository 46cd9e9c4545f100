package dto

import (
	"time"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
)

// PublicUser is the only user shape that leaves the service. Hashes and
// verify/reset token fields have no place here.
type PublicUser struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name,omitempty"`
	Role          string     `json:"role"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"email_verified"`
	HasPassword   bool       `json:"has_password"`
	Online        bool       `json:"online"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewPublicUser(u domain.User) PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          string(u.Role),
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		HasPassword:   u.HasPassword(),
		Online:        u.Online,
		LastSeenAt:    u.LastSeenAt,
		CreatedAt:     u.CreatedAt,
	}
}

type TokensView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

func NewTokensView(t auth.AuthTokens) TokensView {
	return TokensView{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
	}
}

// SessionData is returned by register, login, refresh and the OAuth callback.
type SessionData struct {
	Tokens    TokensView `json:"tokens"`
	User      PublicUser `json:"user"`
	IsNewUser bool       `json:"is_new_user,omitempty"`
}

func NewSessionData(res auth.SessionResult) SessionData {
	return SessionData{
		Tokens: NewTokensView(res.Tokens),
		User:   NewPublicUser(res.User),
	}
}

type MeData struct {
	User PublicUser `json:"user"`
}

type TokensData struct {
	Tokens TokensView `json:"tokens"`
}

type UserStatusData struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	Active        bool   `json:"active"`
	EmailVerified bool   `json:"email_verified"`
	HasPassword   bool   `json:"has_password"`
	TokenVersion  int64  `json:"token_version"`
}

func NewUserStatusData(u domain.User) UserStatusData {
	return UserStatusData{
		UserID:        u.ID,
		Role:          string(u.Role),
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		HasPassword:   u.HasPassword(),
		TokenVersion:  u.TokenVersion,
	}
}

// StatusData is the small acknowledgement used by admin actions.
type StatusData struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type RevokeSessionsData struct {
	Status       string `json:"status"`
	TokenVersion int64  `json:"token_version"`
}

type OAuthStartData struct {
	AuthURL string `json:"auth_url"`
}
