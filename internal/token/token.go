// Package token implements the shared credential manager from
// spec.md §4.C: a lazily-fetched OAuth bearer token stored under a
// well-known shared-cache key, refreshed under a distributed mutex so
// that a stampede of concurrent callers triggers exactly one upstream
// OAuth exchange. It is a direct Go port of
// app/services/redis_token_manager.py's refresh_token_with_lock,
// including its pre-check dance, its 3s/100ms poll on lock-acquire
// failure, and its Lua compare-and-delete release.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sawpanic/marketgov/internal/telemetry"
)

// client is the minimal Redis surface Manager needs: plain get/set,
// atomic SET-if-absent with TTL for the lock, delete, and a Lua eval
// hook for the compare-and-delete release. *redis.Client satisfies it
// via redisClientAdapter; tests use an in-memory fake instead of
// spinning up a real Redis server or a mock broker.
type client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	EvalCompareAndDelete(ctx context.Context, key, expected string) error
}

// redisClientAdapter adapts *redis.Client to the client interface.
type redisClientAdapter struct{ c *redis.Client }

// NewRedisClientAdapter wraps a go-redis client for use by Manager.
func NewRedisClientAdapter(c *redis.Client) client { return redisClientAdapter{c: c} }

func (a redisClientAdapter) Get(ctx context.Context, key string) (string, error) {
	return a.c.Get(ctx, key).Result()
}

func (a redisClientAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return a.c.Set(ctx, key, value, ttl).Err()
}

func (a redisClientAdapter) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return a.c.SetNX(ctx, key, value, ttl).Result()
}

func (a redisClientAdapter) Del(ctx context.Context, key string) error {
	return a.c.Del(ctx, key).Err()
}

func (a redisClientAdapter) EvalCompareAndDelete(ctx context.Context, key, expected string) error {
	return a.c.Eval(ctx, releaseScript, []string{key}, expected).Err()
}

const (
	lockTimeout   = 30 * time.Second
	expiryBuffer  = 60 * time.Second
	preCheckTries = 3
	preCheckGap   = 50 * time.Millisecond
	lockPollTries = 30
	lockPollGap   = 100 * time.Millisecond
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Record is the JSON envelope stored under the shared token key,
// matching the {access_token, expires_at, created_at} shape from
// spec.md §3.
type Record struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   float64 `json:"expires_at"`
	CreatedAt   float64 `json:"created_at"`
}

func (r Record) valid(now time.Time) bool {
	return float64(now.Unix()) < r.ExpiresAt-expiryBuffer.Seconds()
}

// Fetcher performs the actual OAuth exchange, returning the new token
// and its lifetime in seconds.
type Fetcher func(ctx context.Context) (accessToken string, expiresIn int, err error)

// Manager owns one shared token + lock key pair against a Redis
// client. A process is expected to hold a single long-lived Manager
// per credential it manages (e.g. one for the broker's bearer token).
type Manager struct {
	rdb      client
	tokenKey string
	lockKey  string
	instance string

	lockValue string // cleared on every release, per spec.md §5's "current lock value" policy
}

// NewManager builds a Manager against tokenKey/lockKey (spec.md §6's
// "kis:access_token" / "kis:token:lock" by default).
func NewManager(rdb *redis.Client, tokenKey, lockKey string) *Manager {
	return newManager(NewRedisClientAdapter(rdb), tokenKey, lockKey)
}

func newManager(rdb client, tokenKey, lockKey string) *Manager {
	return &Manager{
		rdb:      rdb,
		tokenKey: tokenKey,
		lockKey:  lockKey,
		instance: fmt.Sprintf("%p", &struct{}{}),
	}
}

// Get reads the current token without triggering a refresh, returning
// ("", false) if absent or expired.
func (m *Manager) Get(ctx context.Context) (string, bool) {
	raw, err := m.rdb.Get(ctx, m.tokenKey)
	if err != nil {
		return "", false
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		telemetry.For("token").Warn().Err(err).Msg("cached token record failed to decode")
		return "", false
	}
	if !rec.valid(time.Now()) {
		return "", false
	}
	return rec.AccessToken, true
}

// Clear removes the current token, forcing the next Refresh to fetch a
// new one. Used on upstream auth failures (spec.md §4.F: "invalidates
// the cached token and retries once").
func (m *Manager) Clear(ctx context.Context) {
	if err := m.rdb.Del(ctx, m.tokenKey); err != nil {
		telemetry.For("token").Warn().Err(err).Msg("failed to clear token")
	}
}

// Refresh returns a valid access token, calling fetch at most once per
// refresh epoch even under a stampede of concurrent callers across
// process replicas. See spec.md §4.C for the full state machine.
func (m *Manager) Refresh(ctx context.Context, fetch Fetcher) (string, error) {
	for attempt := 0; attempt < preCheckTries; attempt++ {
		if tok, ok := m.Get(ctx); ok {
			return tok, nil
		}
		if attempt < preCheckTries-1 {
			time.Sleep(preCheckGap)
		}
	}

	acquired, err := m.acquireLock(ctx)
	if err != nil {
		telemetry.For("token").Warn().Err(err).Msg("lock acquire attempt errored")
	}

	if !acquired {
		time.Sleep(200 * time.Millisecond)
		if tok, ok := m.Get(ctx); ok {
			return tok, nil
		}

		for i := 0; i < lockPollTries; i++ {
			time.Sleep(lockPollGap)
			if tok, ok := m.Get(ctx); ok {
				return tok, nil
			}
		}
		return "", fmt.Errorf("refresh lock acquisition failed")
	}

	defer m.releaseLock(ctx)

	if tok, ok := m.Get(ctx); ok {
		return tok, nil
	}

	telemetry.TokenRefreshes.Inc()
	accessToken, expiresIn, err := fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("token fetch failed: %w", err)
	}

	if err := m.save(ctx, accessToken, expiresIn); err != nil {
		telemetry.For("token").Warn().Err(err).Msg("failed to persist refreshed token")
	}

	return accessToken, nil
}

func (m *Manager) save(ctx context.Context, accessToken string, expiresIn int) error {
	now := time.Now()
	rec := Record{
		AccessToken: accessToken,
		ExpiresAt:   float64(now.Unix() + int64(expiresIn)),
		CreatedAt:   float64(now.Unix()),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Duration(expiresIn)*time.Second + expiryBuffer
	return m.rdb.Set(ctx, m.tokenKey, string(raw), ttl)
}

func (m *Manager) acquireLock(ctx context.Context) (bool, error) {
	value := fmt.Sprintf("%d:%s:%d", time.Now().UnixNano(), m.instance, os.Getpid())

	ok, err := m.rdb.SetNX(ctx, m.lockKey, value, lockTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	// Confirm our value actually landed (a racing process could in
	// principle win a subsequent NX within the same tick if TTLs are
	// misconfigured); matches the source's defensive re-read.
	current, err := m.rdb.Get(ctx, m.lockKey)
	if err != nil || current != value {
		return false, nil
	}

	m.lockValue = value
	return true, nil
}

func (m *Manager) releaseLock(ctx context.Context) {
	if m.lockValue == "" {
		telemetry.For("token").Warn().Msg("release called with no stored lock value")
		return
	}
	value := m.lockValue
	m.lockValue = ""

	if err := m.rdb.EvalCompareAndDelete(ctx, m.lockKey, value); err != nil {
		telemetry.For("token").Warn().Err(err).Msg("lock release failed, relying on TTL expiry")
	}
}
