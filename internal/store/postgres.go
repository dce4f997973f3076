package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	selectDocument = `SELECT body FROM documents WHERE key = $1`
	upsertDocument = `INSERT INTO documents (key, body, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`
)

// Postgres stores records as JSONB documents.
type Postgres struct {
	Pool *pgxpool.Pool
}

// Get implements Store.
func (s Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	if s.Pool == nil {
		return nil, errors.New("store: postgres pool not configured")
	}
	var body []byte
	if err := s.Pool.QueryRow(ctx, selectDocument, key).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return body, nil
}

// Put implements Store.
func (s Postgres) Put(ctx context.Context, key string, value []byte) error {
	if s.Pool == nil {
		return errors.New("store: postgres pool not configured")
	}
	_, err := s.Pool.Exec(ctx, upsertDocument, key, value)
	return err
}

// Ping implements Store.
func (s Postgres) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return errors.New("store: postgres pool not configured")
	}
	return s.Pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
