package credstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend persists the pair as one row per profile in studydeck.credentials.
// The pool is owned by the caller; Close does not close it.
type PostgresBackend struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPostgresBackend creates a Postgres-backed credential backend.
func NewPostgresBackend(pool *pgxpool.Pool, profile string) *PostgresBackend {
	if profile == "" {
		profile = "default"
	}
	return &PostgresBackend{pool: pool, profile: profile}
}

// EnsureSchema creates the credentials table if it does not exist.
func (s *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS studydeck;
		CREATE TABLE IF NOT EXISTS studydeck.credentials (
			profile    TEXT PRIMARY KEY,
			access     TEXT NOT NULL,
			refresh    TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresBackend) Name() string { return "postgres" }

func (s *PostgresBackend) Load(ctx context.Context) (Pair, bool, error) {
	var p Pair
	err := s.pool.QueryRow(ctx, `
		SELECT access, refresh
		FROM studydeck.credentials
		WHERE profile = $1
	`, s.profile).Scan(&p.Access, &p.Refresh)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pair{}, false, nil
	}
	if err != nil {
		return Pair{}, false, err
	}
	return p, true, nil
}

func (s *PostgresBackend) Save(ctx context.Context, p Pair) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO studydeck.credentials (profile, access, refresh, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (profile) DO UPDATE
		SET access = EXCLUDED.access,
		    refresh = EXCLUDED.refresh,
		    updated_at = EXCLUDED.updated_at
	`, s.profile, p.Access, p.Refresh)
	return err
}

func (s *PostgresBackend) Delete(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM studydeck.credentials WHERE profile = $1`, s.profile)
	return err
}

func (s *PostgresBackend) Close() error { return nil }
