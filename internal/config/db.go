package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/baechuer/storefront-auth/internal/logger"
)

type DBOptions struct {
	DSN          string
	Debug        bool
	MaxOpenConns int
	MaxIdleConns int
	PingTimeout  time.Duration
}

// DBOptionsFrom picks the pool settings out of the service config.
func DBOptionsFrom(cfg *Config) DBOptions {
	return DBOptions{
		DSN:          cfg.DBAddr,
		Debug:        cfg.DBDebug,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}
}

func (o DBOptions) withDefaults() DBOptions {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 20
	}
	if o.MaxIdleConns <= 0 || o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = o.MaxOpenConns / 2
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 3 * time.Second
	}
	return o
}

// NewDB opens the credential store through the pgx database/sql driver and
// pings it before returning.
func NewDB(opts DBOptions) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("empty DB DSN")
	}
	opts = opts.withDefaults()

	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if opts.Debug {
		var who, dbname, ver string
		_ = db.QueryRowContext(ctx, "SELECT current_user, current_database(), current_setting('server_version')").
			Scan(&who, &dbname, &ver)
		logger.Logger.Debug().
			Str("db_user", who).
			Str("db_name", dbname).
			Str("db_version", ver).
			Int("max_open_conns", opts.MaxOpenConns).
			Msg("db_connected")
	}

	return db, nil
}
