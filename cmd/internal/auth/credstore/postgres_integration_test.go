package credstore

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when STUDYDECK_DATABASE_URL is set.
// An unreachable Postgres skips them.

func TestPostgres_SetLoadClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbURL := os.Getenv("STUDYDECK_DATABASE_URL")
	if dbURL == "" {
		t.Skip("STUDYDECK_DATABASE_URL is not set; skipping Postgres integration test")
	}

	pool := mustPGXPool(ctx, t, dbURL)
	defer pool.Close()

	profile := "test-" + ulid.Make().String()
	b := NewPostgresBackend(pool, profile)
	if err := b.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = b.Delete(context.Background()) })

	s, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("A1", "R1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("A2", "R2"); err != nil {
		t.Fatalf("Set (upsert): %v", err)
	}

	s2, err := Open(ctx, NewPostgresBackend(pool, profile))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.Snapshot(); got != (Pair{Access: "A2", Refresh: "R2"}) {
		t.Fatalf("Snapshot=%+v", got)
	}

	if err := s2.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := b.Load(ctx); err != nil || ok {
		t.Fatalf("Load after Clear ok=%v err=%v", ok, err)
	}
}

func mustPGXPool(ctx context.Context, t *testing.T, dbURL string) *pgxpool.Pool {
	t.Helper()

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		t.Fatalf("pgxpool.ParseConfig: %v", err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool.NewWithConfig: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		var netErr net.Error
		if errors.As(err, &netErr) || os.Getenv("CI") == "" {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("pool.Ping: %v", err)
	}
	return pool
}
