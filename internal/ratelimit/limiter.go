// Package ratelimit implements the sliding-window request governor
// described in spec.md §4.A. It is modelled line-for-line on
// AsyncSlidingWindowRateLimiter in the original Python service
// (app/core/async_rate_limiter.py): a deque of monotonic timestamps
// under a mutex, a 50ms slack on every computed wait, and a registry
// keyed by "<provider>|<key>" with double-checked-locking creation.
//
// Go has no single-threaded event loop, so the mutex here is a real
// sync.Mutex rather than an asyncio.Lock, but the release-around-sleep
// discipline from the source is preserved exactly: the lock is held
// only while inspecting/mutating the timestamp deque, and is released
// before the blocking callback and before the sleep.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/marketgov/internal/telemetry"
)

const slack = 50 * time.Millisecond

// Stats is a point-in-time snapshot of a Limiter's counters. Callers
// never see the live struct, only copies, so concurrent reads never
// race with Acquire.
type Stats struct {
	Name               string
	Rate               int
	Period             time.Duration
	TotalRequests      int64
	ThrottledRequests  int64
	TotalWaitTime      time.Duration
	CurrentWindowCount int
}

// Limiter enforces "at most Rate events per Period" using an exact
// sliding window: a price is never paid for crossing a fixed boundary,
// only for exceeding the rate over any trailing Period.
type Limiter struct {
	rate   int
	period time.Duration
	name   string

	mu         sync.Mutex
	timestamps []time.Time

	totalRequests     int64
	throttledRequests int64
	totalWaitTime     time.Duration
}

// New constructs a Limiter. rate and period must be positive; the
// registry is the only intended construction path in production code,
// but tests may call this directly.
func New(rate int, period time.Duration, name string) *Limiter {
	if rate <= 0 {
		panic("ratelimit: rate must be positive")
	}
	if period <= 0 {
		panic("ratelimit: period must be positive")
	}
	return &Limiter{rate: rate, period: period, name: name}
}

// Acquire blocks until the caller may proceed under the sliding window.
// It never refuses admission — only delays it — matching spec.md §4.A:
// "Returns success indefinitely". The only error path is the supplied
// context being cancelled while waiting, a Go-native addition for
// cooperative shutdown that the source's fire-and-forget event loop
// does not need.
//
// onBlock, if non-nil, is invoked with the computed wait duration each
// time admission is deferred; its panics are recovered and logged, and
// the mutex is not held while it runs.
func (l *Limiter) Acquire(ctx context.Context, onBlock func(time.Duration)) error {
	for {
		wait, ok := l.tryAdmit()
		if ok {
			return nil
		}

		if onBlock != nil {
			invokeOnBlock(l.name, onBlock, wait)
		}

		telemetry.RateLimiterWaitSeconds.WithLabelValues(l.provider(), l.key()).Observe(wait.Seconds())

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// tryAdmit prunes expired timestamps, admits the caller if the window
// has room, and otherwise returns the wait duration required before
// the oldest timestamp falls out of the window (plus slack).
func (l *Limiter) tryAdmit() (wait time.Duration, admitted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.period)

	i := 0
	for i < len(l.timestamps) && l.timestamps[i].Before(windowStart) {
		i++
	}
	if i > 0 {
		l.timestamps = l.timestamps[i:]
	}

	if len(l.timestamps) < l.rate {
		l.timestamps = append(l.timestamps, now)
		l.totalRequests++
		return 0, true
	}

	oldest := l.timestamps[0]
	wait = oldest.Add(l.period).Sub(now) + slack
	if wait < 0 {
		wait = 0
	}
	l.throttledRequests++
	l.totalWaitTime += wait
	telemetry.RateLimiterThrottled.WithLabelValues(l.provider(), l.key()).Inc()
	return wait, false
}

func invokeOnBlock(name string, onBlock func(time.Duration), wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.For("ratelimit").Warn().
				Str("limiter", name).
				Interface("panic", r).
				Msg("onBlock callback panicked")
		}
	}()
	onBlock(wait)
}

// Stats returns a snapshot copy of the limiter's counters and live
// window occupancy.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.period)
	live := 0
	for _, ts := range l.timestamps {
		if !ts.Before(windowStart) {
			live++
		}
	}

	return Stats{
		Name:               l.name,
		Rate:               l.rate,
		Period:             l.period,
		TotalRequests:      l.totalRequests,
		ThrottledRequests:  l.throttledRequests,
		TotalWaitTime:      l.totalWaitTime,
		CurrentWindowCount: live,
	}
}

// ResetStats clears the counters without disturbing the live window.
func (l *Limiter) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalRequests = 0
	l.throttledRequests = 0
	l.totalWaitTime = 0
}

func (l *Limiter) provider() string {
	p, _ := splitRegistryKey(l.name)
	return p
}

func (l *Limiter) key() string {
	_, k := splitRegistryKey(l.name)
	return k
}
