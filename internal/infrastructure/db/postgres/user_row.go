package postgres

import (
	"database/sql"
	"time"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// userColumns is the select list every read shares; scanUser expects this
// exact order.
const userColumns = `id, email, name, password_hash, role, active, email_verified, token_version,
online, last_seen_at, google_id, github_id,
verify_token_hash, verify_token_expires_at, reset_token_hash, reset_token_expires_at,
refresh_token_hash, created_at, updated_at`

type userRow struct {
	ID                   string
	Email                string
	Name                 string
	PasswordHash         string
	Role                 string
	Active               bool
	EmailVerified        bool
	TokenVersion         int64
	Online               bool
	LastSeenAt           sql.NullTime
	GoogleID             sql.NullString
	GitHubID             sql.NullString
	VerifyTokenHash      sql.NullString
	VerifyTokenExpiresAt sql.NullTime
	ResetTokenHash       sql.NullString
	ResetTokenExpiresAt  sql.NullTime
	RefreshTokenHash     sql.NullString
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (userRow, error) {
	var ur userRow
	err := row.Scan(
		&ur.ID,
		&ur.Email,
		&ur.Name,
		&ur.PasswordHash,
		&ur.Role,
		&ur.Active,
		&ur.EmailVerified,
		&ur.TokenVersion,
		&ur.Online,
		&ur.LastSeenAt,
		&ur.GoogleID,
		&ur.GitHubID,
		&ur.VerifyTokenHash,
		&ur.VerifyTokenExpiresAt,
		&ur.ResetTokenHash,
		&ur.ResetTokenExpiresAt,
		&ur.RefreshTokenHash,
		&ur.CreatedAt,
		&ur.UpdatedAt,
	)
	return ur, err
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toDomainUser(ur userRow) domain.User {
	return domain.User{
		ID:                   ur.ID,
		Email:                ur.Email,
		Name:                 ur.Name,
		PasswordHash:         ur.PasswordHash,
		Role:                 domain.Role(ur.Role),
		Active:               ur.Active,
		EmailVerified:        ur.EmailVerified,
		TokenVersion:         ur.TokenVersion,
		Online:               ur.Online,
		LastSeenAt:           timePtr(ur.LastSeenAt),
		GoogleID:             ur.GoogleID.String,
		GitHubID:             ur.GitHubID.String,
		VerifyTokenHash:      ur.VerifyTokenHash.String,
		VerifyTokenExpiresAt: timePtr(ur.VerifyTokenExpiresAt),
		ResetTokenHash:       ur.ResetTokenHash.String,
		ResetTokenExpiresAt:  timePtr(ur.ResetTokenExpiresAt),
		RefreshTokenHash:     ur.RefreshTokenHash.String,
		CreatedAt:            ur.CreatedAt,
		UpdatedAt:            ur.UpdatedAt,
	}
}
