// Package sharedcache implements the two-tier cache from spec.md §4.B:
// a remote store (Redis in production) fronted by a process-local TTL
// map, so a remote outage degrades to local freshness instead of
// cascading into upstream fetches. It is grounded on the teacher's
// RedisCacheManager/InMemoryCacheManager pair in
// src/infrastructure/data/cache.go (JSON envelope, graceful remote
// failure) and on internal/infrastructure/datafacade/cache/ttl_cache.go
// for the local-tier bookkeeping.
package sharedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/marketgov/internal/telemetry"
)

// Store is the remote tier's minimal contract, satisfied by a Redis
// client in production and an in-memory fake in tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrNotFound is returned by Store implementations when a key is absent
// (Redis' redis.Nil, translated at the adapter boundary).
var ErrNotFound = fmt.Errorf("sharedcache: key not found")

type localEntry struct {
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e localEntry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// Cache is the two-tier adapter. Get and Set never surface remote
// errors: Get falls back to the local tier, Set still populates the
// local tier even when the remote write fails. Delete returns the
// remote error, after clearing the local tier.
type Cache struct {
	remote Store

	mu    sync.Mutex
	local map[string]localEntry
}

// New wraps a remote Store with a local fallback tier.
func New(remote Store) *Cache {
	return &Cache{remote: remote, local: make(map[string]localEntry)}
}

// Get reads the remote tier first, then the local tier. It returns
// (value, true) on a hit, swallowing every remote error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.remote != nil {
		val, err := c.remote.Get(ctx, key)
		if err == nil {
			telemetry.CacheHits.WithLabelValues("remote").Inc()
			return val, true
		}
		if err != ErrNotFound {
			telemetry.For("sharedcache").Warn().Err(err).Str("key", key).Msg("remote cache read failed, falling back to local tier")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.local[key]
	if !ok {
		telemetry.CacheMisses.Inc()
		return nil, false
	}
	if entry.expired(time.Now()) {
		delete(c.local, key)
		telemetry.CacheMisses.Inc()
		return nil, false
	}

	telemetry.CacheHits.WithLabelValues("local").Inc()
	return entry.value, true
}

// Set writes both tiers. A remote write failure is logged and
// tolerated; the local tier always succeeds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, value, ttl); err != nil {
			telemetry.For("sharedcache").Warn().Err(err).Str("key", key).Msg("remote cache write failed, local tier still populated")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = localEntry{value: value, insertedAt: time.Now(), ttl: ttl}
	return nil
}

// Delete removes a key from both tiers, best-effort on the remote side.
func (c *Cache) Delete(ctx context.Context, key string) error {
	var remoteErr error
	if c.remote != nil {
		remoteErr = c.remote.Delete(ctx, key)
	}
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
	return remoteErr
}

// GetJSON reads a key and unmarshals it into T, matching the JSON
// envelope convention callers use for every cached domain object.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var val T
	if err := json.Unmarshal(raw, &val); err != nil {
		telemetry.For("sharedcache").Warn().Err(err).Str("key", key).Msg("cached value failed schema decode, treating as miss")
		return zero, false
	}
	return val, true
}

// SetJSON marshals value and stores it under key with the given TTL.
func SetJSON[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sharedcache: marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
