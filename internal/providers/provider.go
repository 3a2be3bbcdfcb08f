// Package providers defines the uniform adapter contract from spec.md
// §4.F/§9: every upstream (broker REST, crypto exchange, US screener,
// bulk portal, scraped pages, disclosures) satisfies the same
// capability set, so the screening pipeline can hold a plain map from
// market identifier to Adapter instead of switching on provider type.
// Grounded on the teacher's Provider interface in
// src/infrastructure/providers/ and its rate limiter + circuit breaker
// wiring.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/ratelimit"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

// burstLimit and burstWindow size the token-bucket assist in front of
// the sliding-window registry: enough headroom that a well-behaved
// caller never notices it, just a backstop against a goroutine storm
// hammering DoJSON faster than the OS scheduler can context-switch.
const (
	burstLimit  = 20
	burstWindow = 200 * time.Millisecond
)

// Adapter is the capability set every provider satisfies: fetch a
// named resource with typed parameters, or invalidate any cached
// credentials after an auth failure.
type Adapter interface {
	Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error)
	InvalidateCredentials()
}

// HTTPClient is the shared transport every adapter wraps with a
// circuit breaker and a rate-governed round trip, per spec.md §4.F
// step 1-3.
type HTTPClient struct {
	Name     string
	BaseURL  string
	Client   *http.Client
	Limiter  *ratelimit.Registry
	Provider string

	breaker *gobreaker.CircuitBreaker
	burst   *rate.Limiter
}

// NewHTTPClient builds a shared transport for one provider, with a
// per-provider circuit breaker mirroring infra/breakers.New: trip
// after 3 consecutive failures, or a >5% failure rate once at least 20
// requests have been observed in the rolling interval.
func NewHTTPClient(provider, baseURL string, timeout time.Duration, limiter *ratelimit.Registry) *HTTPClient {
	settings := gobreaker.Settings{
		Name:     provider,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			telemetry.For("providers").Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}

	return &HTTPClient{
		Name:     provider,
		BaseURL:  baseURL,
		Provider: provider,
		Client:   &http.Client{Timeout: timeout},
		Limiter:  limiter,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		burst:    rate.NewLimiter(rate.Every(burstWindow/burstLimit), burstLimit),
	}
}

// DoJSON acquires a rate-limit slot keyed by (provider, endpointKey),
// executes req under the circuit breaker, and decodes a JSON body.
// Non-2xx responses and transport errors are classified into
// errs.Classified so callers can distinguish auth failures from
// generic upstream unavailability.
func (h *HTTPClient) DoJSON(ctx context.Context, endpointKey string, req *http.Request) (json.RawMessage, error) {
	if err := h.burst.Wait(ctx); err != nil {
		return nil, errs.New(errs.KindTimeout, h.Provider, "burst limiter wait cancelled", err)
	}

	limiter := h.Limiter.Get(h.Provider, endpointKey)
	if err := limiter.Acquire(ctx, func(wait time.Duration) {
		telemetry.For("providers").Debug().Str("provider", h.Provider).Str("endpoint", endpointKey).Dur("wait", wait).Msg("rate governor delaying request")
	}); err != nil {
		return nil, errs.New(errs.KindTimeout, h.Provider, "rate governor wait cancelled", err)
	}

	result, err := h.breaker.Execute(func() (interface{}, error) {
		resp, err := h.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, errs.New(errs.KindUpstreamAuth, h.Provider, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, errs.New(errs.KindUpstreamUnavailable, h.Provider, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, errs.New(errs.KindUpstreamUnavailable, h.Provider, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)), nil)
		}

		return json.RawMessage(body), nil
	})
	if err != nil {
		if _, ok := err.(*errs.Classified); ok {
			return nil, err
		}
		return nil, errs.New(errs.KindUpstreamUnavailable, h.Provider, err.Error(), err)
	}

	return result.(json.RawMessage), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
