package auth

import (
	"context"
	"time"

	"github.com/baechuer/storefront-auth/internal/domain"
)

/*
UserRepo
--------
Credential store port. Every mutation that must be atomic with a token
version bump is a single method so the store can do it in one statement.
*/
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByOAuthSubject(ctx context.Context, provider domain.OAuthProvider, subject string) (domain.User, error)
	Create(ctx context.Context, u domain.User) (domain.User, error)
	Delete(ctx context.Context, userID string) error

	UpdateProfile(ctx context.Context, userID, name string) (domain.User, error)
	LinkOAuth(ctx context.Context, userID string, provider domain.OAuthProvider, subject string) error
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error

	// Refresh token bookkeeping. An empty hash clears the stored token.
	SetRefreshTokenHash(ctx context.Context, userID, hash string) error
	// RotateRefreshTokenHash swaps oldHash for newHash only while oldHash is
	// still current and the token version is ver, otherwise it fails with
	// ErrRefreshTokenReused.
	RotateRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string, ver int64) error

	// Verification / reset tokens. Consume* clear the pair in the same
	// statement that checks it and fail with ErrInvalidOrExpiredToken.
	SetVerifyToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	ConsumeVerifyToken(ctx context.Context, userID, hash string, now time.Time) error
	SetResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	PeekResetToken(ctx context.Context, userID, hash string, now time.Time) error
	ConsumeResetToken(ctx context.Context, userID, hash, newPasswordHash string, now time.Time) (int64, error)

	// The following bump token_version and clear the refresh token.
	UpdatePassword(ctx context.Context, userID, newHash string) (int64, error)
	Deactivate(ctx context.Context, userID string) (int64, error)
	SetRole(ctx context.Context, userID string, role domain.Role) (int64, error)
	BumpTokenVersion(ctx context.Context, userID string) (int64, error)

	Activate(ctx context.Context, userID string) error
	// CountByRole counts active accounts holding role.
	CountByRole(ctx context.Context, role domain.Role) (int, error)
}

/*
SessionStateReader
------------------
What the session middleware reads on every request.
*/
type SessionStateReader interface {
	GetSessionState(ctx context.Context, userID string) (domain.SessionState, error)
}

/*
PasswordHasher
--------------
Abstracts bcrypt.
*/
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error // nil if match
}

/*
TokenIssuer
-----------
Signs and verifies access / refresh JWTs. The two kinds use different
secrets, so one can never be replayed as the other.
*/
type TokenClaims struct {
	UserID string
	Email  string
	Role   domain.Role
	Ver    int64
	ID     string // jti, refresh tokens only
	Exp    time.Time
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type TokenIssuer interface {
	IssuePair(u domain.User) (TokenPair, error)
	VerifyAccess(token string) (TokenClaims, error)
	VerifyRefresh(token string) (TokenClaims, error)
}

/*
ActionTokenSigner
-----------------
Signed single-use tokens for email verification and password reset. The
signature only proves origin; single use and expiry are enforced by the
stored hash + expiry on the user row.
*/
type OneTimeTokenKind string

const (
	TokenVerifyEmail   OneTimeTokenKind = "verify_email"
	TokenPasswordReset OneTimeTokenKind = "password_reset"
)

type ActionTokenSigner interface {
	SignActionToken(kind OneTimeTokenKind, userID, email string, ttl time.Duration) (string, error)
	VerifyActionToken(kind OneTimeTokenKind, token string) (TokenClaims, error)
}

/*
EventPublisher
--------------
Publishes notification events. Email delivery lives elsewhere; publishing
is fire-and-forget from the service's point of view.
*/
type EventPublisher interface {
	PublishVerifyEmail(ctx context.Context, evt VerifyEmailEvent) error
	PublishPasswordReset(ctx context.Context, evt PasswordResetEvent) error
	PublishAccountDeactivated(ctx context.Context, evt AccountDeactivatedEvent) error
}

type VerifyEmailEvent struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
}

type PasswordResetEvent struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
}

type AccountDeactivatedEvent struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	ActorID string `json:"actor_id"`
}

/*
OAuth
-----
*/
type OAuthProvider interface {
	IsConfigured() bool
	AuthURL(state, codeChallenge string) string
	FetchProfile(ctx context.Context, code, codeVerifier string) (domain.OAuthProfile, error)
}

type OAuthStateData struct {
	CodeVerifier string `json:"code_verifier"`
	RedirectTo   string `json:"redirect_to"`
	Provider     string `json:"provider"`
}

type OAuthStateStore interface {
	Create(ctx context.Context, state OAuthStateData) (string, error)
	Consume(ctx context.Context, stateToken string) (OAuthStateData, error)
}
