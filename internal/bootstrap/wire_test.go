package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/config"
	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/infrastructure/memory"
	"github.com/baechuer/storefront-auth/internal/infrastructure/redis"
	"github.com/baechuer/storefront-auth/internal/infrastructure/security"
)

// --------------------------
// helpers
// --------------------------

func testConfig() *config.Config {
	return &config.Config{
		Env:              "dev",
		HTTPAddr:         ":0",
		JWTAccessSecret:  "access",
		JWTRefreshSecret: "refresh",
		JWTActionSecret:  "action",
		JWTIssuer:        "storefront-auth-test",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  time.Hour,
		BcryptCost:       4,
		DBAddr:           "memory",

		VerifyEmailBaseURL:    "http://shop.test/verify/",
		PasswordResetBaseURL:  "http://shop.test/reset/",
		VerifyEmailTokenTTL:   time.Hour,
		PasswordResetTokenTTL: time.Hour,
		SessionCacheTTL:       30 * time.Second,
		OAuthStateTTL:         time.Minute,

		RateLimit: config.RateLimits{
			Window:        time.Minute,
			Register:      3,
			Login:         5,
			Refresh:       10,
			EmailRequests: 3,
			OAuth:         10,
		},
		FrontendOrigin:   "http://shop.test",
		AllowedRedirects: []string{"/"},
	}
}

type storeSpy struct {
	repo   *memory.UserRepo
	closed bool
}

func (s *storeSpy) open(*config.Config) (Store, error) {
	s.repo = memory.NewUserRepo()
	return Store{
		Users:  s.repo,
		Seeder: s.repo,
		Ping:   func(context.Context) error { return nil },
		Close: func() error {
			s.closed = true
			return nil
		},
	}, nil
}

type fakePublisher struct {
	memory.NoopPublisher
	closed bool
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func depsWith(cfg *config.Config, store *storeSpy) Deps {
	return Deps{
		LoadConfig: func() (*config.Config, error) { return cfg, nil },
		OpenStore:  store.open,
		NewRedis:   redis.New,
	}
}

func call(t *testing.T, h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func accessToken(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"access_token"`
			} `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	require.NotEmpty(t, body.Data.Tokens.AccessToken)
	return body.Data.Tokens.AccessToken
}

// --------------------------
// tests
// --------------------------

func TestNewServer_ConfigLoadFails(t *testing.T) {
	srv, cleanup, err := NewServerWithDeps(Deps{
		LoadConfig: func() (*config.Config, error) { return nil, errors.New("missing env") },
	})
	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Nil(t, cleanup)
}

func TestNewServer_StoreFails(t *testing.T) {
	srv, cleanup, err := NewServerWithDeps(Deps{
		LoadConfig: func() (*config.Config, error) { return testConfig(), nil },
		OpenStore:  func(*config.Config) (Store, error) { return Store{}, errors.New("db down") },
	})
	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Nil(t, cleanup)
}

func TestNewServer_WithoutRedisOrRabbit_ServesAuthFlow(t *testing.T) {
	store := &storeSpy{}
	cfg := testConfig()
	cfg.SeedDevUsers = true

	srv, cleanup, err := NewServerWithDeps(depsWith(cfg, store))
	require.NoError(t, err)
	require.NotNil(t, srv)

	h := srv.Handler
	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/metrics", "", "").Code)

	rr := call(t, h, http.MethodPost, "/auth/v1/register", `{"email":"jane@x.com","password":"Secret123!"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tok := accessToken(t, rr)

	rr = call(t, h, http.MethodGet, "/auth/v1/me", "", tok)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// seeded admin can use admin routes
	rr = call(t, h, http.MethodPost, "/auth/v1/login", `{"email":"admin@example.com","password":"AdminPassword123"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	adminTok := accessToken(t, rr)

	u, err := store.repo.GetByEmail(context.Background(), "jane@x.com")
	require.NoError(t, err)
	rr = call(t, h, http.MethodGet, "/auth/v1/admin/users/"+u.ID, "", adminTok)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	cleanup()
	assert.True(t, store.closed, "cleanup must close the store")
}

func TestNewServer_LoginTokenMatchesStoredRecord(t *testing.T) {
	store := &storeSpy{}
	cfg := testConfig()
	cfg.SeedDevUsers = true

	srv, cleanup, err := NewServerWithDeps(depsWith(cfg, store))
	require.NoError(t, err)
	defer cleanup()
	h := srv.Handler

	issuer := security.NewJWTIssuer(security.JWTConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		ActionSecret:  cfg.JWTActionSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	login := func() auth.TokenClaims {
		t.Helper()
		rr := call(t, h, http.MethodPost, "/auth/v1/login", `{"email":"sam@x.com","password":"Secret123!"}`, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		claims, err := issuer.VerifyAccess(accessToken(t, rr))
		require.NoError(t, err)
		return claims
	}
	stored := func() domain.User {
		t.Helper()
		u, err := store.repo.GetByEmail(context.Background(), "sam@x.com")
		require.NoError(t, err)
		return u
	}

	rr := call(t, h, http.MethodPost, "/auth/v1/register", `{"email":"sam@x.com","password":"Secret123!","role":"vendor"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	claims := login()
	u := stored()
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Email, claims.Email)
	assert.Equal(t, domain.RoleVendor, claims.Role)
	assert.Equal(t, u.Role, claims.Role)
	assert.Equal(t, u.TokenVersion, claims.Ver)

	// an admin role change bumps the version; the next login carries both
	rr = call(t, h, http.MethodPost, "/auth/v1/login", `{"email":"admin@example.com","password":"AdminPassword123"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = call(t, h, http.MethodPost, "/auth/v1/admin/users/"+u.ID+"/role", `{"role":"customer"}`, accessToken(t, rr))
	require.Less(t, rr.Code, 300, rr.Body.String())

	claims = login()
	u = stored()
	assert.Equal(t, domain.RoleCustomer, claims.Role)
	assert.Equal(t, u.TokenVersion, claims.Ver)
	assert.Greater(t, claims.Ver, domain.InitialTokenVersion)
}

func TestNewServer_SeedDisabled(t *testing.T) {
	store := &storeSpy{}
	_, cleanup, err := NewServerWithDeps(depsWith(testConfig(), store))
	require.NoError(t, err)
	defer cleanup()

	_, err = store.repo.GetByEmail(context.Background(), "admin@example.com")
	assert.Error(t, err)
}

func TestNewServer_WithRedis_SharedRateLimitAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.RateLimit.Login = 1

	store := &storeSpy{}
	srv, cleanup, err := NewServerWithDeps(depsWith(cfg, store))
	require.NoError(t, err)
	defer cleanup()

	rr := call(t, srv.Handler, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redis":"ok"`)

	body := `{"email":"ghost@x.com","password":"Secret123!"}`
	rr = call(t, srv.Handler, http.MethodPost, "/auth/v1/login", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = call(t, srv.Handler, http.MethodPost, "/auth/v1/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	keys := mr.Keys()
	found := false
	for _, k := range keys {
		if strings.HasPrefix(k, "rl:login:") {
			found = true
		}
	}
	assert.True(t, found, "expected a redis rate limit key, got %v", keys)
}

func TestNewServer_RedisUnreachable_FallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	srv, cleanup, err := NewServerWithDeps(depsWith(cfg, &storeSpy{}))
	require.NoError(t, err)
	defer cleanup()

	rr := call(t, srv.Handler, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "redis")
}

func TestNewServer_PublisherFailure(t *testing.T) {
	failing := func(string, string) (Publisher, error) { return nil, errors.New("amqp refused") }

	t.Run("dev falls back to noop", func(t *testing.T) {
		cfg := testConfig()
		cfg.RabbitURL = "amqp://localhost:1/"
		d := depsWith(cfg, &storeSpy{})
		d.NewPublisher = failing

		_, cleanup, err := NewServerWithDeps(d)
		require.NoError(t, err)
		cleanup()
	})

	t.Run("prod fails and releases the store", func(t *testing.T) {
		cfg := testConfig()
		cfg.Env = "prod"
		cfg.RabbitURL = "amqp://localhost:1/"
		store := &storeSpy{}
		d := depsWith(cfg, store)
		d.NewPublisher = failing

		srv, cleanup, err := NewServerWithDeps(d)
		require.Error(t, err)
		assert.Nil(t, srv)
		assert.Nil(t, cleanup)
		assert.True(t, store.closed)
	})
}

func TestNewServer_PublisherClosedOnCleanup(t *testing.T) {
	cfg := testConfig()
	cfg.RabbitURL = "amqp://broker/"
	pub := &fakePublisher{}
	d := depsWith(cfg, &storeSpy{})
	d.NewPublisher = func(string, string) (Publisher, error) { return pub, nil }

	_, cleanup, err := NewServerWithDeps(d)
	require.NoError(t, err)
	cleanup()
	assert.True(t, pub.closed)
}

func TestNewServer_OAuthProviderWired(t *testing.T) {
	d := depsWith(testConfig(), &storeSpy{})
	var called bool
	d.NewOAuthProvider = func(*config.Config) auth.OAuthProvider {
		called = true
		return nil
	}

	srv, cleanup, err := NewServerWithDeps(d)
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, called)

	// a nil provider is skipped, so the flow reports not configured
	rr := call(t, srv.Handler, http.MethodGet, "/auth/v1/oauth/google/start", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "oauth_not_configured")
}
