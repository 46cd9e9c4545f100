package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

type Service struct {
	users   UserRepo
	hasher  PasswordHasher
	tokens  TokenIssuer
	actions ActionTokenSigner
	pub     EventPublisher

	providers map[domain.OAuthProvider]OAuthProvider
	states    OAuthStateStore

	accessTTL time.Duration
	audit     func(action string, fields map[string]string)
	now       func() time.Time

	// URLs used to build links sent via the notification pipeline
	verifyEmailBaseURL   string // e.g. https://frontend/verify-email?token=
	passwordResetBaseURL string // e.g. https://frontend/reset-password?token=
	verifyEmailTTL       time.Duration
	passwordResetTTL     time.Duration

	vendorsActiveOnRegister bool
}

type Config struct {
	AccessTTL             time.Duration
	VerifyEmailBaseURL    string
	PasswordResetBaseURL  string
	VerifyEmailTokenTTL   time.Duration
	PasswordResetTokenTTL time.Duration

	// Vendors start inactive until an admin activates them unless this is set.
	VendorsActiveOnRegister bool
}

func NewService(
	users UserRepo,
	hasher PasswordHasher,
	tokens TokenIssuer,
	actions ActionTokenSigner,
	pub EventPublisher,
	cfg Config,
) *Service {
	verifyTTL := cfg.VerifyEmailTokenTTL
	if verifyTTL <= 0 {
		verifyTTL = 24 * time.Hour
	}
	resetTTL := cfg.PasswordResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = 10 * time.Minute
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		actions:   actions,
		pub:       pub,
		providers: map[domain.OAuthProvider]OAuthProvider{},
		audit:     func(string, map[string]string) {},
		now:       time.Now,

		accessTTL: accessTTL,

		verifyEmailBaseURL:   cfg.VerifyEmailBaseURL,
		passwordResetBaseURL: cfg.PasswordResetBaseURL,
		verifyEmailTTL:       verifyTTL,
		passwordResetTTL:     resetTTL,

		vendorsActiveOnRegister: cfg.VendorsActiveOnRegister,
	}
}

// AuthTokens is the common token output for handlers/DTO mapping.
type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64  // seconds
	TokenType    string // "Bearer"
}

// SessionResult is returned by every flow that starts or renews a session.
type SessionResult struct {
	User   domain.User
	Tokens AuthTokens
}

func (s *Service) WithAudit(fn func(action string, fields map[string]string)) *Service {
	if fn != nil {
		s.audit = fn
	}
	return s
}

// WithOAuth enables the OAuth login flow for the given providers.
func (s *Service) WithOAuth(states OAuthStateStore, providers map[domain.OAuthProvider]OAuthProvider) *Service {
	s.states = states
	for name, p := range providers {
		if p != nil {
			s.providers[name] = p
		}
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// issueTokens signs a fresh pair for u and stores the refresh token hash.
func (s *Service) issueTokens(ctx context.Context, u domain.User) (AuthTokens, error) {
	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		return AuthTokens{}, domain.ErrTokenSignFailed(err)
	}

	if err := s.users.SetRefreshTokenHash(ctx, u.ID, HashToken(pair.RefreshToken)); err != nil {
		return AuthTokens{}, err
	}

	return s.toAuthTokens(pair), nil
}

func (s *Service) toAuthTokens(pair TokenPair) AuthTokens {
	return AuthTokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}
}

// markPresence is best effort; a failed presence write never fails a login.
func (s *Service) markPresence(ctx context.Context, userID string, online bool) {
	if err := s.users.SetPresence(ctx, userID, online, s.now()); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Bool("online", online).
			Msg("presence_update_failed")
	}
}

// HashToken is how bearer secrets (refresh, verify, reset) are stored at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RandomToken returns 32 random bytes, base64url encoded. It backs PKCE
// verifiers and OAuth state handles.
func RandomToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", domain.ErrRandomFailed(err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
