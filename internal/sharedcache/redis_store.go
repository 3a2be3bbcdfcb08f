package sharedcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore adapts a go-redis client to the Store interface, the way
// the teacher's RedisCacheManager wraps *redis.Client in
// src/infrastructure/data/cache.go, minus the teacher's own JSON
// envelope (sharedcache.Cache owns the envelope so every caller gets
// the same one regardless of which Store backs it).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a RedisStore from a connection URL such as
// "redis://localhost:6379/0", pooled and timed out the way the teacher
// configures its client.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 500 * time.Millisecond

	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Client exposes the underlying redis.Client for components (token
// manager) that need primitives Store doesn't cover — SET NX EX, Lua
// eval for compare-and-delete.
func (r *RedisStore) Client() *redis.Client { return r.client }

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
