package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// UserRepo is the in-process credential store used in dev and tests. Every
// method holds the lock for its whole read-check-write, which gives the same
// atomicity the Postgres store gets from single UPDATE statements.
type UserRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string // email -> userID
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.byID[id], nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

func (r *UserRepo) GetByOAuthSubject(ctx context.Context, provider domain.OAuthProvider, subject string) (domain.User, error) {
	if !domain.IsValidProvider(string(provider)) {
		return domain.User{}, domain.ErrUnsupportedProvider(string(provider))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if subject != "" && oauthSubject(u, provider) == subject {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound()
}

func (r *UserRepo) GetSessionState(ctx context.Context, id string) (domain.SessionState, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.SessionState{}, err
	}
	return u.SessionState(), nil
}

func (r *UserRepo) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, u := range r.byID {
		if u.Role == role && u.Active {
			n++
		}
	}
	return n, nil
}

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = domain.NormalizeEmail(u.Email)
	if u.TokenVersion == 0 {
		u.TokenVersion = domain.InitialTokenVersion
	}
	if err := u.Validate(); err != nil {
		return domain.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return domain.User{}, domain.ErrEmailAlreadyExists()
	}
	if _, exists := r.byID[u.ID]; exists {
		return domain.User{}, domain.ErrInternal(nil)
	}

	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return u, nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	return nil
}

// update applies fn to a copy of the user and stores it when fn succeeds.
func (r *UserRepo) update(id string, fn func(u *domain.User) error) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	if err := fn(&u); err != nil {
		return domain.User{}, err
	}
	u.UpdatedAt = time.Now()
	r.byID[id] = u
	return u, nil
}

func bump(u *domain.User) {
	u.TokenVersion++
	u.RefreshTokenHash = ""
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id, name string) (domain.User, error) {
	return r.update(id, func(u *domain.User) error {
		u.Name = name
		return nil
	})
}

func oauthSubject(u domain.User, provider domain.OAuthProvider) string {
	switch provider {
	case domain.OAuthProviderGoogle:
		return u.GoogleID
	case domain.OAuthProviderGitHub:
		return u.GitHubID
	}
	return ""
}

func (r *UserRepo) LinkOAuth(ctx context.Context, id string, provider domain.OAuthProvider, subject string) error {
	if !domain.IsValidProvider(string(provider)) {
		return domain.ErrUnsupportedProvider(string(provider))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	for otherID, other := range r.byID {
		if otherID != id && oauthSubject(other, provider) == subject {
			return domain.ErrOAuthIdentityTaken(string(provider))
		}
	}
	if provider == domain.OAuthProviderGoogle {
		u.GoogleID = subject
	} else {
		u.GitHubID = subject
	}
	r.byID[id] = u
	return nil
}

func (r *UserRepo) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := r.update(id, func(u *domain.User) error {
		u.Online = online
		u.LastSeenAt = &at
		return nil
	})
	return err
}

func (r *UserRepo) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	_, err := r.update(id, func(u *domain.User) error {
		u.RefreshTokenHash = hash
		return nil
	})
	return err
}

func (r *UserRepo) RotateRefreshTokenHash(ctx context.Context, id, oldHash, newHash string, ver int64) error {
	_, err := r.update(id, func(u *domain.User) error {
		if u.RefreshTokenHash == "" || u.RefreshTokenHash != oldHash || u.TokenVersion != ver {
			return domain.ErrRefreshTokenReused()
		}
		u.RefreshTokenHash = newHash
		return nil
	})
	return err
}

func (r *UserRepo) SetVerifyToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	_, err := r.update(id, func(u *domain.User) error {
		u.VerifyTokenHash = hash
		u.VerifyTokenExpiresAt = &expiresAt
		return nil
	})
	return err
}

func tokenLive(hash string, expiresAt *time.Time, presented string, now time.Time) bool {
	return hash != "" && hash == presented && expiresAt != nil && expiresAt.After(now)
}

func (r *UserRepo) ConsumeVerifyToken(ctx context.Context, id, hash string, now time.Time) error {
	_, err := r.update(id, func(u *domain.User) error {
		if !tokenLive(u.VerifyTokenHash, u.VerifyTokenExpiresAt, hash, now) {
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

func (r *UserRepo) SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	_, err := r.update(id, func(u *domain.User) error {
		u.ResetTokenHash = hash
		u.ResetTokenExpiresAt = &expiresAt
		return nil
	})
	return err
}

func (r *UserRepo) PeekResetToken(ctx context.Context, id, hash string, now time.Time) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok || !tokenLive(u.ResetTokenHash, u.ResetTokenExpiresAt, hash, now) {
		return domain.ErrInvalidOrExpiredToken()
	}
	return nil
}

func (r *UserRepo) ConsumeResetToken(ctx context.Context, id, hash, newPasswordHash string, now time.Time) (int64, error) {
	u, err := r.update(id, func(u *domain.User) error {
		if !tokenLive(u.ResetTokenHash, u.ResetTokenExpiresAt, hash, now) {
			return domain.ErrInvalidOrExpiredToken()
		}
		u.PasswordHash = newPasswordHash
		u.ResetTokenHash = ""
		u.ResetTokenExpiresAt = nil
		bump(u)
		return nil
	})
	if err != nil {
		if domain.Is(err, "user_not_found") {
			return 0, domain.ErrInvalidOrExpiredToken()
		}
		return 0, err
	}
	return u.TokenVersion, nil
}

func (r *UserRepo) bumpWith(id string, fn func(u *domain.User)) (int64, error) {
	u, err := r.update(id, func(u *domain.User) error {
		fn(u)
		bump(u)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return u.TokenVersion, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, newHash string) (int64, error) {
	if newHash == "" {
		return 0, domain.ErrMissingField("password_hash")
	}
	return r.bumpWith(id, func(u *domain.User) { u.PasswordHash = newHash })
}

func (r *UserRepo) Deactivate(ctx context.Context, id string) (int64, error) {
	return r.bumpWith(id, func(u *domain.User) {
		u.Active = false
		u.Online = false
	})
}

func (r *UserRepo) SetRole(ctx context.Context, id string, role domain.Role) (int64, error) {
	if !domain.IsValidRole(string(role)) {
		return 0, domain.ErrInvalidRole(string(role))
	}
	return r.bumpWith(id, func(u *domain.User) { u.Role = role })
}

func (r *UserRepo) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	return r.bumpWith(id, func(*domain.User) {})
}

func (r *UserRepo) Activate(ctx context.Context, id string) error {
	_, err := r.update(id, func(u *domain.User) error {
		u.Active = true
		return nil
	})
	return err
}
