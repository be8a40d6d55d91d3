package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedis_SetClearRoundTrip(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, RedisOptions{Profile: "alice"})

	s, err := Open(context.Background(), b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("A1", "R1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got := mr.HGet("studydeck:credentials:alice", "access"); got != "A1" {
		t.Fatalf("redis access=%q want A1", got)
	}
	if got := mr.HGet("studydeck:credentials:alice", "refresh"); got != "R1" {
		t.Fatalf("redis refresh=%q want R1", got)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists(b.Key()) {
		t.Fatalf("key still exists after Clear")
	}
}

func TestRedis_SaveReplacesStaleFields(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, RedisOptions{})
	mr.HSet(b.Key(), "access", "old", "legacy", "x")

	if err := b.Save(context.Background(), Pair{Access: "A2", Refresh: "R2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if keys, _ := mr.HKeys(b.Key()); len(keys) != 2 {
		t.Fatalf("hash fields=%v want [access refresh]", keys)
	}
}

func TestRedis_TTLApplied(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, RedisOptions{TTL: time.Minute})
	if err := b.Save(context.Background(), Pair{Access: "A1", Refresh: "R1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(b.Key()); ttl != time.Minute {
		t.Fatalf("ttl=%s want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)

	s, err := Open(context.Background(), b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.Snapshot().Empty() {
		t.Fatalf("expired pair loaded: %+v", s.Snapshot())
	}
}

func TestRedis_PartialHashPurged(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, RedisOptions{})
	mr.HSet(b.Key(), "refresh", "R-orphan")

	s, err := Open(context.Background(), b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.Snapshot().Empty() {
		t.Fatalf("partial pair loaded")
	}
	if mr.Exists(b.Key()) {
		t.Fatalf("partial hash not purged")
	}
}

func TestRedis_UnreachableFailsOpen(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Open(ctx, NewRedisBackend(rdb, RedisOptions{})); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}
