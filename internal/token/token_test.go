package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory stand-in for the client interface, good
// enough to exercise Refresh's lock dance without a live Redis server.
type fakeClient struct {
	mu   sync.Mutex
	kv   map[string]string
	ttls map[string]time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{kv: make(map[string]string), ttls: make(map[string]time.Time)}
}

func (f *fakeClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exp, ok := f.ttls[key]; ok && time.Now().After(exp) {
		delete(f.kv, key)
		delete(f.ttls, key)
	}
	val, ok := f.kv[key]
	if !ok {
		return "", errors.New("not found")
	}
	return val, nil
}

func (f *fakeClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	f.ttls[key] = time.Now().Add(ttl)
	return nil
}

func (f *fakeClient) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exp, ok := f.ttls[key]; ok && time.Now().After(exp) {
		delete(f.kv, key)
		delete(f.ttls, key)
	}
	if _, exists := f.kv[key]; exists {
		return false, nil
	}
	f.kv[key] = value
	f.ttls[key] = time.Now().Add(ttl)
	return true, nil
}

func (f *fakeClient) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.kv, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeClient) EvalCompareAndDelete(_ context.Context, key, expected string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kv[key] == expected {
		delete(f.kv, key)
		delete(f.ttls, key)
	}
	return nil
}

func TestRefresh_FetchesOnceAndCachesToken(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (string, int, error) {
		atomic.AddInt32(&calls, 1)
		return "T", 3600, nil
	}

	tok, err := m.Refresh(ctx, fetch)
	require.NoError(t, err)
	assert.Equal(t, "T", tok)
	assert.Equal(t, int32(1), calls)

	cached, ok := m.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "T", cached)
}

func TestRefresh_StampedeOfConcurrentCallersFetchesOnce(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (string, int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "T", 3600, nil
	}

	const n = 50
	results := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Refresh(ctx, fetch)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls, "fetch must run exactly once under a stampede")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "T", results[i])
	}
}

func TestRefresh_SecondCallAfterCacheIsWarmSkipsFetch(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (string, int, error) {
		atomic.AddInt32(&calls, 1)
		return "T", 3600, nil
	}

	_, err := m.Refresh(ctx, fetch)
	require.NoError(t, err)
	_, err = m.Refresh(ctx, fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
}

func TestRefresh_PropagatesFetchError(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	fetch := func(ctx context.Context) (string, int, error) {
		return "", 0, errors.New("upstream unavailable")
	}

	_, err := m.Refresh(ctx, fetch)
	assert.Error(t, err)
}

func TestGet_AbsentTokenReportsMiss(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")

	_, ok := m.Get(context.Background())
	assert.False(t, ok)
}

func TestGet_TokenWithinExpiryBufferReportsMiss(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	require.NoError(t, m.save(ctx, "T", 30)) // expires in 30s, buffer is 60s

	_, ok := m.Get(ctx)
	assert.False(t, ok, "token expiring within the buffer window must not be reused")
}

func TestClear_ForcesSubsequentRefreshToFetch(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (string, int, error) {
		atomic.AddInt32(&calls, 1)
		return "T", 3600, nil
	}

	_, err := m.Refresh(ctx, fetch)
	require.NoError(t, err)
	m.Clear(ctx)

	_, err = m.Refresh(ctx, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestAcquireLock_SecondAcquirerFailsWhileHeld(t *testing.T) {
	fc := newFakeClient()
	m1 := newManager(fc, "tok", "tok:lock")
	m2 := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	ok1, err := m1.acquireLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := m2.acquireLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestReleaseLock_CompareAndDeleteOnlyRemovesOwnValue(t *testing.T) {
	fc := newFakeClient()
	m1 := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	ok, err := m1.acquireLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale handle to the same lock key with a different value must
	// not be able to delete the real owner's lock.
	require.NoError(t, fc.EvalCompareAndDelete(ctx, "tok:lock", "someone-elses-value"))
	_, err = fc.Get(ctx, "tok:lock")
	require.NoError(t, err, "lock must still be held after a non-matching compare-and-delete")

	m1.releaseLock(ctx)
	_, err = fc.Get(ctx, "tok:lock")
	assert.Error(t, err, "lock must be gone after the owner releases it")
}

func TestReleaseLock_WithoutPriorAcquireIsANoop(t *testing.T) {
	fc := newFakeClient()
	m := newManager(fc, "tok", "tok:lock")
	assert.NotPanics(t, func() { m.releaseLock(context.Background()) })
}

func TestRefresh_LockPollFallbackPicksUpTokenSavedByWinner(t *testing.T) {
	fc := newFakeClient()
	winner := newManager(fc, "tok", "tok:lock")
	loser := newManager(fc, "tok", "tok:lock")
	ctx := context.Background()

	ok, err := winner.acquireLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, winner.save(ctx, "T", 3600))
		winner.releaseLock(ctx)
	}()

	tok, err := loser.Refresh(ctx, func(ctx context.Context) (string, int, error) {
		return "", 0, fmt.Errorf("loser should never fetch")
	})
	require.NoError(t, err)
	assert.Equal(t, "T", tok)
}
