package tradingdate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	date string
	ok   bool
	err  error
}

func (f fakeBroker) LatestWorkingDate(ctx context.Context) (string, bool, error) {
	return f.date, f.ok, f.err
}

func withFixedNow(r *Resolver, t time.Time) *Resolver {
	r.now = func() time.Time { return t }
	return r
}

func TestCandidates_ExplicitDateShortCircuits(t *testing.T) {
	r := New(nil)
	explicit := "20260115"
	got := r.Candidates(context.Background(), &explicit)
	assert.Equal(t, []string{"20260115"}, got)
}

func TestCandidates_NoBrokerReturnsWeekdayWalkOnly(t *testing.T) {
	// 2026-08-01 is a Saturday in KST.
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, kst)
	r := withFixedNow(New(nil), fixed)

	got := r.Candidates(context.Background(), nil)
	require.Len(t, got, maxLookback)
	for _, d := range got {
		parsed, err := time.ParseInLocation("20060102", d, kst)
		require.NoError(t, err)
		assert.NotEqual(t, time.Saturday, parsed.Weekday())
		assert.NotEqual(t, time.Sunday, parsed.Weekday())
	}
	// Most recent weekday before/at the Saturday anchor is Friday 2026-07-31.
	assert.Equal(t, "20260731", got[0])
}

func TestCandidates_BrokerDateIsPrependedAndDeduped(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, kst)
	broker := fakeBroker{date: "20260731", ok: true}
	r := withFixedNow(New(broker), fixed)

	got := r.Candidates(context.Background(), nil)
	assert.Equal(t, "20260731", got[0])

	count := 0
	for _, d := range got {
		if d == "20260731" {
			count++
		}
	}
	assert.Equal(t, 1, count, "broker date must not be duplicated from the weekday walk")
	assert.Len(t, got, maxLookback)
}

func TestCandidates_BrokerDateDistinctFromWalkIsPrependedWithoutDrop(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, kst)
	broker := fakeBroker{date: "20260615", ok: true}
	r := withFixedNow(New(broker), fixed)

	got := r.Candidates(context.Background(), nil)
	assert.Equal(t, "20260615", got[0])
	assert.Len(t, got, maxLookback+1)
}

func TestCandidates_BrokerUnreachableFallsBackToWeekdays(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, kst)
	broker := fakeBroker{err: errors.New("broker timeout")}
	r := withFixedNow(New(broker), fixed)

	got := r.Candidates(context.Background(), nil)
	assert.Len(t, got, maxLookback)
	assert.Equal(t, "20260731", got[0])
}

func TestCandidates_BrokerOkFalseFallsBackToWeekdays(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, kst)
	broker := fakeBroker{ok: false}
	r := withFixedNow(New(broker), fixed)

	got := r.Candidates(context.Background(), nil)
	assert.Len(t, got, maxLookback)
}

func TestRecentWeekdays_StartsFromAWeekday(t *testing.T) {
	// 2026-07-29 is a Wednesday.
	from := time.Date(2026, 7, 29, 0, 0, 0, 0, kst)
	got := recentWeekdays(from, 5)
	require.Len(t, got, 5)
	assert.Equal(t, "20260729", got[0])
}
