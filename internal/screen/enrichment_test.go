package screen

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/marketgov/internal/errs"
)

func TestEnrich_ZeroRowsReturnsEmptyMeta(t *testing.T) {
	meta := Enrich(context.Background(), 0, func(context.Context, int) EnrichmentStatus {
		t.Fatal("fn must not be called for n=0")
		return StatusSuccess
	})
	assert.Equal(t, RSIEnrichmentMeta{Attempted: 0}, meta)
}

func TestEnrich_CountsEachStatusBucket(t *testing.T) {
	statuses := []EnrichmentStatus{StatusSuccess, StatusError, StatusRateLimited, StatusSuccess}
	meta := Enrich(context.Background(), len(statuses), func(_ context.Context, i int) EnrichmentStatus {
		return statuses[i]
	})
	assert.Equal(t, 4, meta.Attempted)
	assert.Equal(t, 2, meta.Succeeded)
	assert.Equal(t, 1, meta.Failed)
	assert.Equal(t, 1, meta.RateLimited)
	assert.Equal(t, 0, meta.Timeout)
}

func TestEnrich_NeverExceedsConfiguredConcurrency(t *testing.T) {
	t.Cleanup(func() { Configure(defaultEnrichmentConcurrency, defaultEnrichmentTimeout) })
	Configure(2, defaultEnrichmentTimeout)

	var inFlight, maxInFlight int32
	n := 20
	Enrich(context.Background(), n, func(ctx context.Context, i int) EnrichmentStatus {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if cur <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return StatusSuccess
	})

	assert.LessOrEqual(t, int(maxInFlight), 2)
}

func TestEnrich_GlobalTimeoutMarksPendingRowsAsTimeout(t *testing.T) {
	t.Cleanup(func() { Configure(defaultEnrichmentConcurrency, defaultEnrichmentTimeout) })
	Configure(1, 10*time.Millisecond)

	meta := Enrich(context.Background(), 3, func(ctx context.Context, i int) EnrichmentStatus {
		select {
		case <-time.After(50 * time.Millisecond):
			return StatusSuccess
		case <-ctx.Done():
			return StatusTimeout
		}
	})

	assert.Greater(t, meta.Timeout, 0)
	msg, ok := rsiTimeoutWarning(meta)
	assert.True(t, ok)
	assert.Contains(t, msg, "timed out")
}

func TestConfigure_IgnoresNonPositiveValues(t *testing.T) {
	t.Cleanup(func() { Configure(defaultEnrichmentConcurrency, defaultEnrichmentTimeout) })
	Configure(7, 5*time.Second)
	Configure(0, -1)
	assert.Equal(t, 7, enrichmentConcurrency)
	assert.Equal(t, 5*time.Second, enrichmentTimeout)
}

func TestClassifyEnrichError_MapsClassifiedKinds(t *testing.T) {
	assert.Equal(t, StatusSuccess, classifyEnrichError(nil))
	assert.Equal(t, StatusTimeout, classifyEnrichError(errs.New(errs.KindTimeout, "test", "slow", nil)))
	assert.Equal(t, StatusRateLimited, classifyEnrichError(errs.New(errs.KindRateLimitExhausted, "test", "throttled", nil)))
	assert.Equal(t, StatusError, classifyEnrichError(errors.New("boom")))
}
