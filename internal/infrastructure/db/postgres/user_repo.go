package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// UserRepo is the Postgres credential store. Every write that has to be
// atomic with a token version bump is a single UPDATE.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// ---------- helpers ----------

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrMissingField("user_id")
	}
	return id, nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`
	ur, err := scanUser(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return toDomainUser(ur), nil
}

// exec runs a single-row UPDATE and maps zero affected rows to missErr.
func (r *UserRepo) exec(ctx context.Context, missErr error, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	if n == 0 {
		return missErr
	}
	return nil
}

// bump runs an UPDATE ... RETURNING token_version.
func (r *UserRepo) bump(ctx context.Context, q string, args ...any) (int64, error) {
	var ver int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&ver); err != nil {
		if isNoRows(err) {
			return 0, domain.ErrUserNotFound()
		}
		return 0, domain.ErrDBUnavailable(err)
	}
	return ver, nil
}

// ---------- reads ----------

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}
	return r.getOne(ctx, `email = $1`, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	id, err := requireID(id)
	if err != nil {
		return domain.User{}, err
	}
	return r.getOne(ctx, `id = $1`, id)
}

func (r *UserRepo) GetByOAuthSubject(ctx context.Context, provider domain.OAuthProvider, subject string) (domain.User, error) {
	if subject == "" {
		return domain.User{}, domain.ErrMissingField("subject")
	}
	switch provider {
	case domain.OAuthProviderGoogle:
		return r.getOne(ctx, `google_id = $1`, subject)
	case domain.OAuthProviderGitHub:
		return r.getOne(ctx, `github_id = $1`, subject)
	default:
		return domain.User{}, domain.ErrUnsupportedProvider(string(provider))
	}
}

// GetSessionState reads the fields the session middleware checks.
func (r *UserRepo) GetSessionState(ctx context.Context, id string) (domain.SessionState, error) {
	id, err := requireID(id)
	if err != nil {
		return domain.SessionState{}, err
	}

	const q = `SELECT id, email, role, active, token_version FROM users WHERE id = $1`

	var st domain.SessionState
	var role string
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&st.UserID, &st.Email, &role, &st.Active, &st.TokenVersion); err != nil {
		if isNoRows(err) {
			return domain.SessionState{}, domain.ErrUserNotFound()
		}
		return domain.SessionState{}, domain.ErrDBUnavailable(err)
	}
	st.Role = domain.Role(role)
	return st, nil
}

func (r *UserRepo) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	if !domain.IsValidRole(string(role)) {
		return 0, domain.ErrInvalidRole(string(role))
	}

	const q = `SELECT COUNT(1) FROM users WHERE role = $1 AND active`

	var n int
	if err := r.db.QueryRowContext(ctx, q, string(role)).Scan(&n); err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	return n, nil
}

// ---------- lifecycle ----------

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = domain.NormalizeEmail(u.Email)
	if u.TokenVersion == 0 {
		u.TokenVersion = domain.InitialTokenVersion
	}
	if err := u.Validate(); err != nil {
		return domain.User{}, err
	}

	q := `
INSERT INTO users (id, email, name, password_hash, role, active, email_verified, token_version, google_id, github_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING ` + userColumns

	ur, err := scanUser(r.db.QueryRowContext(ctx, q,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.Active, u.EmailVerified, u.TokenVersion,
		nullString(u.GoogleID), nullString(u.GitHubID),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return toDomainUser(ur), nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}
	return r.exec(ctx, domain.ErrUserNotFound(), `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id, name string) (domain.User, error) {
	id, err := requireID(id)
	if err != nil {
		return domain.User{}, err
	}

	q := `UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns

	ur, err := scanUser(r.db.QueryRowContext(ctx, q, id, name))
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return toDomainUser(ur), nil
}

func (r *UserRepo) LinkOAuth(ctx context.Context, id string, provider domain.OAuthProvider, subject string) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}

	var col string
	switch provider {
	case domain.OAuthProviderGoogle:
		col = "google_id"
	case domain.OAuthProviderGitHub:
		col = "github_id"
	default:
		return domain.ErrUnsupportedProvider(string(provider))
	}

	err = r.exec(ctx, domain.ErrUserNotFound(),
		`UPDATE users SET `+col+` = $2, updated_at = NOW() WHERE id = $1`, id, subject)
	if isUniqueViolation(err) {
		return domain.ErrOAuthIdentityTaken(string(provider))
	}
	return err
}

func (r *UserRepo) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	return r.exec(ctx, domain.ErrUserNotFound(),
		`UPDATE users SET online = $2, last_seen_at = $3 WHERE id = $1`, id, online, at)
}

// ---------- refresh token ----------

func (r *UserRepo) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}
	return r.exec(ctx, domain.ErrUserNotFound(),
		`UPDATE users SET refresh_token_hash = $2 WHERE id = $1`, id, nullString(hash))
}

func (r *UserRepo) RotateRefreshTokenHash(ctx context.Context, id, oldHash, newHash string, ver int64) error {
	const q = `
UPDATE users
SET refresh_token_hash = $3
WHERE id = $1 AND refresh_token_hash = $2 AND token_version = $4`

	return r.exec(ctx, domain.ErrRefreshTokenReused(), q, id, oldHash, newHash, ver)
}

// ---------- verification / reset ----------

func (r *UserRepo) SetVerifyToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	return r.exec(ctx, domain.ErrUserNotFound(),
		`UPDATE users SET verify_token_hash = $2, verify_token_expires_at = $3 WHERE id = $1`,
		id, hash, expiresAt)
}

func (r *UserRepo) ConsumeVerifyToken(ctx context.Context, id, hash string, now time.Time) error {
	const q = `
UPDATE users
SET email_verified = TRUE,
    verify_token_hash = NULL,
    verify_token_expires_at = NULL,
    updated_at = NOW()
WHERE id = $1 AND verify_token_hash = $2 AND verify_token_expires_at > $3`

	return r.exec(ctx, domain.ErrInvalidOrExpiredToken(), q, id, hash, now)
}

func (r *UserRepo) SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	return r.exec(ctx, domain.ErrUserNotFound(),
		`UPDATE users SET reset_token_hash = $2, reset_token_expires_at = $3 WHERE id = $1`,
		id, hash, expiresAt)
}

func (r *UserRepo) PeekResetToken(ctx context.Context, id, hash string, now time.Time) error {
	const q = `SELECT 1 FROM users WHERE id = $1 AND reset_token_hash = $2 AND reset_token_expires_at > $3`

	var one int
	if err := r.db.QueryRowContext(ctx, q, id, hash, now).Scan(&one); err != nil {
		if isNoRows(err) {
			return domain.ErrInvalidOrExpiredToken()
		}
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

func (r *UserRepo) ConsumeResetToken(ctx context.Context, id, hash, newPasswordHash string, now time.Time) (int64, error) {
	const q = `
UPDATE users
SET password_hash = $4,
    reset_token_hash = NULL,
    reset_token_expires_at = NULL,
    refresh_token_hash = NULL,
    token_version = token_version + 1,
    updated_at = NOW()
WHERE id = $1 AND reset_token_hash = $2 AND reset_token_expires_at > $3
RETURNING token_version`

	ver, err := r.bump(ctx, q, id, hash, now, newPasswordHash)
	if domain.Is(err, "user_not_found") {
		return 0, domain.ErrInvalidOrExpiredToken()
	}
	return ver, err
}

// ---------- token version bumps ----------

func (r *UserRepo) UpdatePassword(ctx context.Context, id, newHash string) (int64, error) {
	id, err := requireID(id)
	if err != nil {
		return 0, err
	}
	if newHash == "" {
		return 0, domain.ErrMissingField("password_hash")
	}

	const q = `
UPDATE users
SET password_hash = $2,
    token_version = token_version + 1,
    refresh_token_hash = NULL,
    updated_at = NOW()
WHERE id = $1
RETURNING token_version`

	return r.bump(ctx, q, id, newHash)
}

func (r *UserRepo) Deactivate(ctx context.Context, id string) (int64, error) {
	id, err := requireID(id)
	if err != nil {
		return 0, err
	}

	const q = `
UPDATE users
SET active = FALSE,
    online = FALSE,
    token_version = token_version + 1,
    refresh_token_hash = NULL,
    updated_at = NOW()
WHERE id = $1
RETURNING token_version`

	return r.bump(ctx, q, id)
}

func (r *UserRepo) SetRole(ctx context.Context, id string, role domain.Role) (int64, error) {
	id, err := requireID(id)
	if err != nil {
		return 0, err
	}
	if !domain.IsValidRole(string(role)) {
		return 0, domain.ErrInvalidRole(string(role))
	}

	const q = `
UPDATE users
SET role = $2,
    token_version = token_version + 1,
    refresh_token_hash = NULL,
    updated_at = NOW()
WHERE id = $1
RETURNING token_version`

	return r.bump(ctx, q, id, string(role))
}

func (r *UserRepo) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	id, err := requireID(id)
	if err != nil {
		return 0, err
	}

	const q = `
UPDATE users
SET token_version = token_version + 1,
    refresh_token_hash = NULL,
    updated_at = NOW()
WHERE id = $1
RETURNING token_version`

	return r.bump(ctx, q, id)
}

func (r *UserRepo) Activate(ctx context.Context, id string) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}
	return r.exec(ctx, domain.ErrUserNotFound(),
		`UPDATE users SET active = TRUE, updated_at = NOW() WHERE id = $1`, id)
}
