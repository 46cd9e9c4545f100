package http_handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/infrastructure/memory"
	"github.com/baechuer/storefront-auth/internal/infrastructure/security"
	"github.com/baechuer/storefront-auth/internal/transport/http/middleware"
	"github.com/baechuer/storefront-auth/internal/transport/http/response"
	"github.com/baechuer/storefront-auth/internal/transport/http/router"
)

const (
	verifyBase = "https://shop.test/verify/"
	resetBase  = "https://shop.test/reset/"
	goodPass   = "Secret123!"
)

// -------------------------
// fakes
// -------------------------

type recordingPublisher struct {
	mu      sync.Mutex
	verify  []auth.VerifyEmailEvent
	reset   []auth.PasswordResetEvent
	deacted []auth.AccountDeactivatedEvent
}

func (p *recordingPublisher) PublishVerifyEmail(_ context.Context, evt auth.VerifyEmailEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verify = append(p.verify, evt)
	return nil
}

func (p *recordingPublisher) PublishPasswordReset(_ context.Context, evt auth.PasswordResetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset = append(p.reset, evt)
	return nil
}

func (p *recordingPublisher) PublishAccountDeactivated(_ context.Context, evt auth.AccountDeactivatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deacted = append(p.deacted, evt)
	return nil
}

func (p *recordingPublisher) lastVerifyToken(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.verify) == 0 {
		t.Fatalf("no verify email event published")
	}
	return strings.TrimPrefix(p.verify[len(p.verify)-1].URL, verifyBase)
}

func (p *recordingPublisher) lastResetToken(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reset) == 0 {
		t.Fatalf("no password reset event published")
	}
	return strings.TrimPrefix(p.reset[len(p.reset)-1].URL, resetBase)
}

// fakeProvider records the state handed to AuthURL so tests can play the
// provider's redirect back.
type fakeProvider struct {
	mu        sync.Mutex
	lastState string
	profile   domain.OAuthProfile
	err       error
}

func (f *fakeProvider) IsConfigured() bool { return true }

func (f *fakeProvider) AuthURL(state, challenge string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastState = state
	return "https://accounts.test/auth?state=" + url.QueryEscape(state) + "&code_challenge=" + challenge
}

func (f *fakeProvider) FetchProfile(_ context.Context, code, verifier string) (domain.OAuthProfile, error) {
	if f.err != nil {
		return domain.OAuthProfile{}, f.err
	}
	return f.profile, nil
}

func (f *fakeProvider) state() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastState
}

// -------------------------
// harness
// -------------------------

type harness struct {
	t      *testing.T
	repo   *memory.UserRepo
	hasher *security.BcryptHasher
	pub    *recordingPublisher
	google *fakeProvider
	h      http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := memory.NewUserRepo()
	pub := &recordingPublisher{}
	hasher := security.NewBcryptHasher(4)
	issuer := security.NewJWTIssuer(security.JWTConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		ActionSecret:  "action-secret-for-tests",
		Issuer:        "storefront-auth-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	})
	google := &fakeProvider{profile: domain.OAuthProfile{
		Subject:       "g-123",
		Email:         "oauth.user@example.com",
		EmailVerified: true,
		Name:          "OAuth User",
	}}

	svc := auth.NewService(repo, hasher, issuer, issuer, pub, auth.Config{
		AccessTTL:            15 * time.Minute,
		VerifyEmailBaseURL:   verifyBase,
		PasswordResetBaseURL: resetBase,
	}).WithOAuth(memory.NewOAuthStateStore(time.Minute), map[domain.OAuthProvider]auth.OAuthProvider{
		domain.OAuthProviderGoogle: google,
	})

	h, err := router.New(router.Deps{
		Health: NewHealthHandler(nil, nil),
		Auth:   NewAuthHandler(svc, time.Hour, false),
		OAuth: NewOAuthHandler(OAuthHandlerConfig{
			Service:          svc,
			FrontendOrigin:   "https://shop.test",
			AllowedRedirects: []string{"/orders"},
			RefreshTTL:       time.Hour,
		}),
		AuthMW: middleware.Auth(issuer, repo, response.WriteError),
		Require: func(a domain.Action) router.Middleware {
			return middleware.Require(a, response.WriteError)
		},
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	return &harness{t: t, repo: repo, hasher: hasher, pub: pub, google: google, h: h}
}

type reqOpt func(r *http.Request)

func bearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (h *harness) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	h.t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		rd = mustJSONBody(h.t, b)
	}

	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}

	rr := httptest.NewRecorder()
	h.h.ServeHTTP(rr, req)
	return rr
}

type session struct {
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	} `json:"tokens"`
	User struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Role          string `json:"role"`
		Active        bool   `json:"active"`
		EmailVerified bool   `json:"email_verified"`
	} `json:"user"`
}

func (h *harness) register(email, role string) session {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/auth/v1/register", map[string]string{
		"email": email, "password": goodPass, "name": "Jane", "role": role,
	})
	if rr.Code != http.StatusCreated {
		h.t.Fatalf("register %s: expected 201, got %d body=%s", email, rr.Code, rr.Body.String())
	}
	var s session
	mustReadJSON(h.t, rr.Body, &s)
	return s
}

func (h *harness) login(email, password string) session {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/auth/v1/login", map[string]string{"email": email, "password": password})
	if rr.Code != http.StatusOK {
		h.t.Fatalf("login %s: expected 200, got %d body=%s", email, rr.Code, rr.Body.String())
	}
	var s session
	mustReadJSON(h.t, rr.Body, &s)
	return s
}

// seedAdmin creates an active admin directly in the store; admins never
// come through registration.
func (h *harness) seedAdmin(email string) session {
	h.t.Helper()
	hash, err := h.hasher.Hash(goodPass)
	if err != nil {
		h.t.Fatalf("hash: %v", err)
	}
	_, err = h.repo.Create(context.Background(), domain.User{
		ID:            "admin-" + email,
		Email:         email,
		PasswordHash:  hash,
		Role:          domain.RoleAdmin,
		Active:        true,
		EmailVerified: true,
	})
	if err != nil {
		h.t.Fatalf("seed admin: %v", err)
	}
	return h.login(email, goodPass)
}

// -------------------------
// json helpers
// -------------------------

func mustJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	return bytes.NewReader(b)
}

// mustReadJSON decodes the "data" member of the success envelope into out.
func mustReadJSON(t *testing.T, r io.Reader, out any) {
	t.Helper()
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	wrapped := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.Data) == 0 {
		t.Fatalf("decode envelope failed; body=%s", string(raw))
	}
	if err := json.Unmarshal(wrapped.Data, out); err != nil {
		t.Fatalf("decode data failed; body=%s err=%v", string(raw), err)
	}
}

func errCodeOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body response.ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, rr.Body.String())
	}
	return body.Error.Code
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if got := errCodeOf(t, rr); got != code {
		t.Fatalf("expected code %q, got %q", code, got)
	}
}

func readCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
