// Package postgres implements the repository interfaces on PostgreSQL via a
// pgx connection pool. It is selected instead of SQLite when DATABASE_URL is set.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB owns the pgx pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies the connection and runs migrations.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Users returns the user store backed by this pool.
func (db *DB) Users() *UserDB {
	return &UserDB{q: db.pool}
}

// Same shape as the SQLite schema: unique email, and (provider, uid) unique
// only for OAuth-linked rows.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			email              TEXT NOT NULL,
			nickname           TEXT NOT NULL DEFAULT '',
			provider           TEXT,
			uid                TEXT,
			first_name         TEXT NOT NULL DEFAULT '',
			last_name          TEXT NOT NULL DEFAULT '',
			picture_url        TEXT NOT NULL DEFAULT '',
			token              TEXT NOT NULL DEFAULT '',
			token_expiry       TIMESTAMPTZ,
			encrypted_password TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider_uid
			ON users(provider, uid) WHERE provider IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}
