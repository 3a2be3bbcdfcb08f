package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// defaultRate holds the provider defaults from spec.md §4.A: kis gets
// 19 requests/second, upbit gets 10/second, anything unknown falls
// back to the kis numbers ("Safe fallback" in the source).
type defaultRate struct {
	rate   int
	period time.Duration
}

var providerDefaults = map[string]defaultRate{
	"kis":   {19, time.Second},
	"upbit": {10, time.Second},
}

var fallbackDefault = defaultRate{19, time.Second}

// Registry maps "<provider>|<key>" to a Limiter, created lazily and
// exactly once under double-checked locking — mirroring get_limiter()
// in async_rate_limiter.py, with a fast read-locked lookup path.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry returns an empty registry. A process normally owns one
// long-lived Registry; tests construct fresh ones for isolation.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Option customizes a limiter at creation time. Unused if the limiter
// already exists in the registry.
type Option func(*createOpts)

type createOpts struct {
	rate   *int
	period *time.Duration
}

// WithRate overrides the provider default rate for a newly created limiter.
func WithRate(rate int) Option {
	return func(o *createOpts) { o.rate = &rate }
}

// WithPeriod overrides the provider default period for a newly created limiter.
func WithPeriod(period time.Duration) Option {
	return func(o *createOpts) { o.period = &period }
}

func registryKey(provider, key string) string {
	return provider + "|" + key
}

func splitRegistryKey(name string) (provider, key string) {
	provider, key, found := strings.Cut(name, "|")
	if !found {
		return name, ""
	}
	return provider, key
}

// Get returns the existing Limiter for (provider, key) or creates one
// under the registry mutex. Concurrent Get calls for the same key
// return the same instance; calls for distinct keys never collide.
func (r *Registry) Get(provider, key string, opts ...Option) *Limiter {
	name := registryKey(provider, key)

	r.mu.RLock()
	if l, ok := r.limiters[name]; ok {
		r.mu.RUnlock()
		return l
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}

	def, ok := providerDefaults[provider]
	if !ok {
		def = fallbackDefault
	}

	o := createOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	rate := def.rate
	if o.rate != nil {
		rate = *o.rate
	}
	period := def.period
	if o.period != nil {
		period = *o.period
	}

	l := New(rate, period, name)
	r.limiters[name] = l
	return l
}

// Reset clears the registry. Test-only, mirroring reset_limiters() in
// the source, which exists purely to give test suites a clean slate.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = make(map[string]*Limiter)
}

// All returns a snapshot copy of every registered limiter, keyed by
// "<provider>|<key>", for monitoring/diagnostics.
func (r *Registry) All() map[string]*Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Limiter, len(r.limiters))
	for k, v := range r.limiters {
		out[k] = v
	}
	return out
}
