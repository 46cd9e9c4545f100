package postgres

import (
	"context"
	"database/sql"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// schema is idempotent; it runs on every start. One statement per entry.
var schema = []string{`
CREATE TABLE IF NOT EXISTS users (
    id                       TEXT PRIMARY KEY,
    email                    TEXT NOT NULL UNIQUE,
    name                     TEXT NOT NULL DEFAULT '',
    password_hash            TEXT NOT NULL DEFAULT '',
    role                     TEXT NOT NULL CHECK (role IN ('customer', 'vendor', 'admin')),
    active                   BOOLEAN NOT NULL DEFAULT TRUE,
    email_verified           BOOLEAN NOT NULL DEFAULT FALSE,
    token_version            BIGINT NOT NULL DEFAULT 1 CHECK (token_version >= 1),
    online                   BOOLEAN NOT NULL DEFAULT FALSE,
    last_seen_at             TIMESTAMPTZ,
    google_id                TEXT UNIQUE,
    github_id                TEXT UNIQUE,
    verify_token_hash        TEXT,
    verify_token_expires_at  TIMESTAMPTZ,
    reset_token_hash         TEXT,
    reset_token_expires_at   TIMESTAMPTZ,
    refresh_token_hash       TEXT,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS users_role_active_idx ON users (role) WHERE active`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return domain.ErrDBUnavailable(err)
		}
	}
	return nil
}
