package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
)

// JWTIssuer signs the three token kinds the service hands out. Each kind has
// its own secret so an access token can never pass as a refresh token, and
// neither can pass as an email/reset link.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	actionSecret  []byte
	issuer        string

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	ActionSecret  string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewJWTIssuer(cfg JWTConfig) *JWTIssuer {
	return &JWTIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		actionSecret:  []byte(cfg.ActionSecret),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

type accessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Ver    int64  `json:"ver"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Ver    int64  `json:"ver"`
	jwt.RegisteredClaims
}

type actionClaims struct {
	UserID  string `json:"uid"`
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *JWTIssuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", domain.ErrTokenSignFailed(err)
	}
	return signed, nil
}

func (s *JWTIssuer) IssuePair(u domain.User) (auth.TokenPair, error) {
	ac := accessClaims{
		UserID:           u.ID,
		Email:            u.Email,
		Role:             string(u.Role),
		Ver:              u.TokenVersion,
		RegisteredClaims: s.registered(u.ID, s.accessTTL),
	}
	access, err := sign(ac, s.accessSecret)
	if err != nil {
		return auth.TokenPair{}, err
	}

	rc := refreshClaims{
		UserID:           u.ID,
		Email:            u.Email,
		Role:             string(u.Role),
		Ver:              u.TokenVersion,
		RegisteredClaims: s.registered(u.ID, s.refreshTTL),
	}
	refresh, err := sign(rc, s.refreshSecret)
	if err != nil {
		return auth.TokenPair{}, err
	}

	return auth.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.ExpiresAt.Time,
		RefreshExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

func (s *JWTIssuer) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		// prevent alg confusion
		if t.Method != jwt.SigningMethodHS256 {
			return nil, domain.ErrTokenInvalid()
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ErrTokenExpired()
		}
		return domain.ErrTokenInvalid()
	}
	if !parsed.Valid {
		return domain.ErrTokenInvalid()
	}
	return nil
}

func expiry(rc jwt.RegisteredClaims) time.Time {
	if rc.ExpiresAt == nil {
		return time.Time{}
	}
	return rc.ExpiresAt.Time
}

func (s *JWTIssuer) VerifyAccess(token string) (auth.TokenClaims, error) {
	var c accessClaims
	if err := s.parse(token, &c, s.accessSecret); err != nil {
		return auth.TokenClaims{}, err
	}
	if c.UserID == "" || !domain.IsValidRole(c.Role) || c.Ver < domain.InitialTokenVersion {
		return auth.TokenClaims{}, domain.ErrTokenInvalid()
	}
	return auth.TokenClaims{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   domain.Role(c.Role),
		Ver:    c.Ver,
		ID:     c.ID,
		Exp:    expiry(c.RegisteredClaims),
	}, nil
}

func (s *JWTIssuer) VerifyRefresh(token string) (auth.TokenClaims, error) {
	var c refreshClaims
	if err := s.parse(token, &c, s.refreshSecret); err != nil {
		if domain.Is(err, "token_expired") {
			return auth.TokenClaims{}, domain.ErrRefreshTokenExpired()
		}
		return auth.TokenClaims{}, domain.ErrRefreshTokenInvalid()
	}
	if c.UserID == "" || c.ID == "" || !domain.IsValidRole(c.Role) {
		return auth.TokenClaims{}, domain.ErrRefreshTokenInvalid()
	}
	return auth.TokenClaims{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   domain.Role(c.Role),
		Ver:    c.Ver,
		ID:     c.ID,
		Exp:    expiry(c.RegisteredClaims),
	}, nil
}

func (s *JWTIssuer) SignActionToken(kind auth.OneTimeTokenKind, userID, email string, ttl time.Duration) (string, error) {
	return sign(actionClaims{
		UserID:           userID,
		Email:            email,
		Purpose:          string(kind),
		RegisteredClaims: s.registered(userID, ttl),
	}, s.actionSecret)
}

// VerifyActionToken only checks origin and purpose. Whether the token is
// still the current one is decided by the credential store.
func (s *JWTIssuer) VerifyActionToken(kind auth.OneTimeTokenKind, token string) (auth.TokenClaims, error) {
	var c actionClaims
	if err := s.parse(token, &c, s.actionSecret); err != nil {
		return auth.TokenClaims{}, err
	}
	if c.Purpose != string(kind) || c.UserID == "" {
		return auth.TokenClaims{}, domain.ErrTokenInvalid()
	}
	return auth.TokenClaims{
		UserID: c.UserID,
		Email:  c.Email,
		ID:     c.ID,
		Exp:    expiry(c.RegisteredClaims),
	}, nil
}
