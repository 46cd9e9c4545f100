package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/storefront-auth/internal/domain"
)

/*
Shared audit capture
*/

type auditEntry struct {
	action string
	fields map[string]string
}

/*
Fakes for ports
*/

type fakeUserRepo struct {
	mu sync.Mutex

	byID map[string]domain.User

	// injected errors (if set, method returns error)
	getByIDErr     error
	getByEmailErr  error
	createErr      error
	presenceErr    error
	countByRoleErr error

	presence []struct {
		id     string
		online bool
	}
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]domain.User{}}
}

func (f *fakeUserRepo) put(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

func (f *fakeUserRepo) get(id string) domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

// mutate applies fn to the stored user under the lock.
func (f *fakeUserRepo) mutate(id string, fn func(u *domain.User) error) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	if err := fn(&u); err != nil {
		return domain.User{}, err
	}
	f.byID[id] = u
	return u, nil
}

func (f *fakeUserRepo) bump(u *domain.User) {
	u.TokenVersion++
	u.RefreshTokenHash = ""
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByEmailErr != nil {
		return domain.User{}, f.getByEmailErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound()
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByIDErr != nil {
		return domain.User{}, f.getByIDErr
	}
	u, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

func (f *fakeUserRepo) GetByOAuthSubject(ctx context.Context, provider domain.OAuthProvider, subject string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if (provider == domain.OAuthProviderGoogle && u.GoogleID == subject) ||
			(provider == domain.OAuthProviderGitHub && u.GitHubID == subject) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound()
}

func (f *fakeUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.User{}, f.createErr
	}
	for _, ex := range f.byID {
		if ex.Email == u.Email {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return domain.ErrUserNotFound()
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, id, name string) (domain.User, error) {
	return f.mutate(id, func(u *domain.User) error {
		u.Name = name
		return nil
	})
}

func (f *fakeUserRepo) LinkOAuth(ctx context.Context, id string, provider domain.OAuthProvider, subject string) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		switch provider {
		case domain.OAuthProviderGoogle:
			u.GoogleID = subject
		case domain.OAuthProviderGitHub:
			u.GitHubID = subject
		}
		return nil
	})
	return err
}

func (f *fakeUserRepo) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	if f.presenceErr != nil {
		return f.presenceErr
	}
	_, err := f.mutate(id, func(u *domain.User) error {
		u.Online = online
		u.LastSeenAt = &at
		return nil
	})
	f.mu.Lock()
	f.presence = append(f.presence, struct {
		id     string
		online bool
	}{id, online})
	f.mu.Unlock()
	return err
}

func (f *fakeUserRepo) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		u.RefreshTokenHash = hash
		return nil
	})
	return err
}

func (f *fakeUserRepo) RotateRefreshTokenHash(ctx context.Context, id, oldHash, newHash string, ver int64) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		if u.RefreshTokenHash != oldHash || u.TokenVersion != ver {
			return domain.ErrRefreshTokenReused()
		}
		u.RefreshTokenHash = newHash
		return nil
	})
	return err
}

func (f *fakeUserRepo) SetVerifyToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		u.VerifyTokenHash = hash
		u.VerifyTokenExpiresAt = &expiresAt
		return nil
	})
	return err
}

func (f *fakeUserRepo) ConsumeVerifyToken(ctx context.Context, id, hash string, now time.Time) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		if u.VerifyTokenHash == "" || u.VerifyTokenHash != hash ||
			u.VerifyTokenExpiresAt == nil || !u.VerifyTokenExpiresAt.After(now) {
			return domain.ErrInvalidOrExpiredToken()
		}
		u.EmailVerified = true
		u.VerifyTokenHash = ""
		u.VerifyTokenExpiresAt = nil
		return nil
	})
	if domain.Is(err, "user_not_found") {
		return domain.ErrInvalidOrExpiredToken()
	}
	return err
}

func (f *fakeUserRepo) SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		u.ResetTokenHash = hash
		u.ResetTokenExpiresAt = &expiresAt
		return nil
	})
	return err
}

func resetTokenMatches(u domain.User, hash string, now time.Time) bool {
	return u.ResetTokenHash != "" && u.ResetTokenHash == hash &&
		u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now)
}

func (f *fakeUserRepo) PeekResetToken(ctx context.Context, id, hash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok && resetTokenMatches(u, hash, now) {
		return nil
	}
	return domain.ErrInvalidOrExpiredToken()
}

func (f *fakeUserRepo) ConsumeResetToken(ctx context.Context, id, hash, newPasswordHash string, now time.Time) (int64, error) {
	u, err := f.mutate(id, func(u *domain.User) error {
		if !resetTokenMatches(*u, hash, now) {
			return domain.ErrInvalidOrExpiredToken()
		}
		u.PasswordHash = newPasswordHash
		u.ResetTokenHash = ""
		u.ResetTokenExpiresAt = nil
		f.bump(u)
		return nil
	})
	if domain.Is(err, "user_not_found") {
		return 0, domain.ErrInvalidOrExpiredToken()
	}
	return u.TokenVersion, err
}

func (f *fakeUserRepo) UpdatePassword(ctx context.Context, id, newHash string) (int64, error) {
	u, err := f.mutate(id, func(u *domain.User) error {
		u.PasswordHash = newHash
		f.bump(u)
		return nil
	})
	return u.TokenVersion, err
}

func (f *fakeUserRepo) Deactivate(ctx context.Context, id string) (int64, error) {
	u, err := f.mutate(id, func(u *domain.User) error {
		u.Active = false
		f.bump(u)
		return nil
	})
	return u.TokenVersion, err
}

func (f *fakeUserRepo) SetRole(ctx context.Context, id string, role domain.Role) (int64, error) {
	u, err := f.mutate(id, func(u *domain.User) error {
		u.Role = role
		f.bump(u)
		return nil
	})
	return u.TokenVersion, err
}

func (f *fakeUserRepo) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	u, err := f.mutate(id, func(u *domain.User) error {
		f.bump(u)
		return nil
	})
	return u.TokenVersion, err
}

func (f *fakeUserRepo) Activate(ctx context.Context, id string) error {
	_, err := f.mutate(id, func(u *domain.User) error {
		u.Active = true
		return nil
	})
	return err
}

func (f *fakeUserRepo) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countByRoleErr != nil {
		return 0, f.countByRoleErr
	}
	n := 0
	for _, u := range f.byID {
		if u.Role == role && u.Active {
			n++
		}
	}
	return n, nil
}

type fakeHasher struct {
	hashFn    func(pw string) (string, error)
	compareFn func(hash, pw string) error
}

func (h *fakeHasher) Hash(pw string) (string, error) {
	if h.hashFn != nil {
		return h.hashFn(pw)
	}
	return "hash:" + pw, nil
}

func (h *fakeHasher) Compare(hash, pw string) error {
	if h.compareFn != nil {
		return h.compareFn(hash, pw)
	}
	if hash != "hash:"+pw {
		return errors.New("mismatch")
	}
	return nil
}

// fakeTokens issues opaque strings and remembers the claims behind them.
type fakeTokens struct {
	mu       sync.Mutex
	n        int
	access   map[string]TokenClaims
	refresh  map[string]TokenClaims
	issueErr error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{access: map[string]TokenClaims{}, refresh: map[string]TokenClaims{}}
}

func (f *fakeTokens) IssuePair(u domain.User) (TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return TokenPair{}, f.issueErr
	}
	f.n++
	c := TokenClaims{UserID: u.ID, Email: u.Email, Role: u.Role, Ver: u.TokenVersion, ID: fmt.Sprintf("jti-%d", f.n)}
	acc := fmt.Sprintf("access-%s-%d", u.ID, f.n)
	ref := fmt.Sprintf("refresh-%s-%d", u.ID, f.n)
	f.access[acc] = c
	f.refresh[ref] = c
	return TokenPair{AccessToken: acc, RefreshToken: ref}, nil
}

func (f *fakeTokens) VerifyAccess(token string) (TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.access[token]
	if !ok {
		return TokenClaims{}, domain.ErrTokenInvalid()
	}
	return c, nil
}

func (f *fakeTokens) VerifyRefresh(token string) (TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.refresh[token]
	if !ok {
		return TokenClaims{}, domain.ErrRefreshTokenInvalid()
	}
	return c, nil
}

type fakeActions struct {
	mu      sync.Mutex
	n       int
	claims  map[string]TokenClaims
	kinds   map[string]OneTimeTokenKind
	expired map[string]bool
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		claims:  map[string]TokenClaims{},
		kinds:   map[string]OneTimeTokenKind{},
		expired: map[string]bool{},
	}
}

func (f *fakeActions) SignActionToken(kind OneTimeTokenKind, userID, email string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	tok := fmt.Sprintf("%s-%s-%d", kind, userID, f.n)
	f.claims[tok] = TokenClaims{UserID: userID, Email: email}
	f.kinds[tok] = kind
	return tok, nil
}

func (f *fakeActions) VerifyActionToken(kind OneTimeTokenKind, token string) (TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[token]
	if !ok || f.kinds[token] != kind {
		return TokenClaims{}, domain.ErrTokenInvalid()
	}
	if f.expired[token] {
		return TokenClaims{}, domain.ErrTokenExpired()
	}
	return c, nil
}

type fakePublisher struct {
	mu          sync.Mutex
	err         error
	verify      []VerifyEmailEvent
	reset       []PasswordResetEvent
	deactivated []AccountDeactivatedEvent
}

func (p *fakePublisher) PublishVerifyEmail(ctx context.Context, evt VerifyEmailEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verify = append(p.verify, evt)
	return p.err
}

func (p *fakePublisher) PublishPasswordReset(ctx context.Context, evt PasswordResetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset = append(p.reset, evt)
	return p.err
}

func (p *fakePublisher) PublishAccountDeactivated(ctx context.Context, evt AccountDeactivatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivated = append(p.deactivated, evt)
	return p.err
}

type fakeOAuthProvider struct {
	configured bool
	profile    domain.OAuthProfile
	err        error

	gotCode     string
	gotVerifier string
}

func (p *fakeOAuthProvider) IsConfigured() bool { return p.configured }

func (p *fakeOAuthProvider) AuthURL(state, challenge string) string {
	return "https://idp.example/auth?state=" + state + "&code_challenge=" + challenge
}

func (p *fakeOAuthProvider) FetchProfile(ctx context.Context, code, verifier string) (domain.OAuthProfile, error) {
	p.gotCode = code
	p.gotVerifier = verifier
	return p.profile, p.err
}

type fakeStateStore struct {
	mu     sync.Mutex
	n      int
	states map[string]OAuthStateData
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: map[string]OAuthStateData{}}
}

func (s *fakeStateStore) Create(ctx context.Context, st OAuthStateData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	tok := fmt.Sprintf("state-%d", s.n)
	s.states[tok] = st
	return tok, nil
}

func (s *fakeStateStore) Consume(ctx context.Context, tok string) (OAuthStateData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[tok]
	if !ok {
		return OAuthStateData{}, errors.New("state not found")
	}
	delete(s.states, tok)
	return st, nil
}

/*
Service under test
*/

type testDeps struct {
	users   *fakeUserRepo
	hasher  *fakeHasher
	tokens  *fakeTokens
	actions *fakeActions
	pub     *fakePublisher
	google  *fakeOAuthProvider
	states  *fakeStateStore
	audits  *[]auditEntry
	now     time.Time
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSvcForTest(t *testing.T) (*Service, *testDeps) {
	t.Helper()

	d := &testDeps{
		users:   newFakeUserRepo(),
		hasher:  &fakeHasher{},
		tokens:  newFakeTokens(),
		actions: newFakeActions(),
		pub:     &fakePublisher{},
		google:  &fakeOAuthProvider{configured: true},
		states:  newFakeStateStore(),
		audits:  &[]auditEntry{},
		now:     testNow,
	}

	cfg := Config{
		AccessTTL:             15 * time.Minute,
		VerifyEmailBaseURL:    "https://fe/verify?token=",
		PasswordResetBaseURL:  "https://fe/reset?token=",
		VerifyEmailTokenTTL:   24 * time.Hour,
		PasswordResetTokenTTL: 30 * time.Minute,
	}

	svc := NewService(d.users, d.hasher, d.tokens, d.actions, d.pub, cfg).
		WithAudit(func(action string, fields map[string]string) {
			cp := map[string]string{}
			for k, v := range fields {
				cp[k] = v
			}
			*d.audits = append(*d.audits, auditEntry{action: action, fields: cp})
		}).
		WithOAuth(d.states, map[domain.OAuthProvider]OAuthProvider{
			domain.OAuthProviderGoogle: d.google,
		}).
		WithClock(func() time.Time { return d.now })

	return svc, d
}

// seedUser stores an active, verified user whose password is pw.
func seedUser(d *testDeps, id string, role domain.Role, pw string) domain.User {
	u := domain.User{
		ID:            id,
		Email:         strings.ToLower(id) + "@example.com",
		Name:          id,
		PasswordHash:  "hash:" + pw,
		Role:          role,
		Active:        true,
		EmailVerified: true,
		TokenVersion:  domain.InitialTokenVersion,
	}
	d.users.put(u)
	return u
}

/*
Small assertions
*/

func requireDomainCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	got := domainCode(err)
	if got != wantCode {
		t.Fatalf("expected domain code %q, got %q (err=%v)", wantCode, got, err)
	}
}

func lastAudit(audits *[]auditEntry) (auditEntry, bool) {
	if audits == nil || len(*audits) == 0 {
		return auditEntry{}, false
	}
	return (*audits)[len(*audits)-1], true
}

func requireAuditAction(t *testing.T, audits *[]auditEntry, wantAction string) auditEntry {
	t.Helper()
	e, ok := lastAudit(audits)
	if !ok {
		t.Fatalf("expected audit entry, got none")
	}
	if e.action != wantAction {
		t.Fatalf("expected audit action %q, got %q", wantAction, e.action)
	}
	return e
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected domain error %q, got %v", code, err)
	}
	if de.Code != code {
		t.Fatalf("expected code %q, got %q (%v)", code, de.Code, err)
	}
}
