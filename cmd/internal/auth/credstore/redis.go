package credstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend persists the pair as one hash at "<prefix>:<profile>".
type RedisBackend struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	owned  bool
}

// RedisOptions configures NewRedisBackend.
type RedisOptions struct {
	Prefix  string
	Profile string
	// TTL expires the hash after the given duration. Zero keeps it until deleted.
	TTL time.Duration
	// CloseClient makes Close also close the client.
	CloseClient bool
}

// NewRedisBackend builds a backend over an existing client.
func NewRedisBackend(client redis.UniversalClient, opts RedisOptions) *RedisBackend {
	if opts.Prefix == "" {
		opts.Prefix = "studydeck:credentials"
	}
	if opts.Profile == "" {
		opts.Profile = "default"
	}
	return &RedisBackend{
		client: client,
		key:    opts.Prefix + ":" + opts.Profile,
		ttl:    opts.TTL,
		owned:  opts.CloseClient,
	}
}

func (r *RedisBackend) Name() string { return "redis" }

// Key returns the redis key holding the pair.
func (r *RedisBackend) Key() string { return r.key }

func (r *RedisBackend) Load(ctx context.Context) (Pair, bool, error) {
	m, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Pair{}, false, err
	}
	if len(m) == 0 {
		return Pair{}, false, nil
	}
	return Pair{Access: m[string(KindAccess)], Refresh: m[string(KindRefresh)]}, true, nil
}

// Save replaces the hash inside MULTI/EXEC so readers never see a mix of old and new fields.
func (r *RedisBackend) Save(ctx context.Context, p Pair) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, string(KindAccess), p.Access, string(KindRefresh), p.Refresh)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisBackend) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
