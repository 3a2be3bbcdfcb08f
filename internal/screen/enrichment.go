package screen

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

const (
	defaultEnrichmentConcurrency = 10
	defaultEnrichmentTimeout     = 30 * time.Second
	maxErrorSamples              = 3
	maxErrorSampleLen            = 100
)

// enrichmentConcurrency and enrichmentTimeout are package-level
// tunables rather than per-pipeline fields: every KR/US/crypto
// pipeline in one process shares the same enrichment budget, set once
// at startup from the Screening config block (Configure), so there is
// no meaningful per-pipeline override to thread through three
// constructors.
var (
	enrichmentConcurrency = defaultEnrichmentConcurrency
	enrichmentTimeout     = defaultEnrichmentTimeout
)

// Configure applies the operator-tunable enrichment concurrency and
// timeout from config.Config's Screening block. Zero/negative values
// are ignored so an incomplete config still falls back to the
// defaults above rather than disabling enrichment outright.
func Configure(concurrency int, timeout time.Duration) {
	if concurrency > 0 {
		enrichmentConcurrency = concurrency
	}
	if timeout > 0 {
		enrichmentTimeout = timeout
	}
}

// EnrichmentStatus classifies the outcome of one symbol's RSI fetch.
type EnrichmentStatus string

const (
	StatusSuccess     EnrichmentStatus = "success"
	StatusError       EnrichmentStatus = "error"
	StatusRateLimited EnrichmentStatus = "rate_limited"
	StatusTimeout     EnrichmentStatus = "timeout"
)

// RSIEnrichmentMeta is the diagnostics block attached to every
// ScreenResult, per spec.md §6.
type RSIEnrichmentMeta struct {
	Attempted     int      `json:"attempted"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	RateLimited   int      `json:"rate_limited"`
	Timeout       int      `json:"timeout"`
	ErrorSamples  []string `json:"error_samples"`
}

// EnrichFunc fetches and assigns RSI (and any other per-symbol
// indicator fields) for row i, returning the outcome status.
type EnrichFunc func(ctx context.Context, i int) EnrichmentStatus

// Enrich runs fn over [0, n) with bounded concurrency and a global
// timeout, per spec.md §4.H step 4 / §5's cancellation rules: a
// writer for row i never affects row j≠i, input order is preserved
// (callers write into their own row slice by index), and a fired
// timeout converts any still-pending rows to StatusTimeout without
// returning an error.
func Enrich(ctx context.Context, n int, fn EnrichFunc) RSIEnrichmentMeta {
	meta := RSIEnrichmentMeta{Attempted: n}
	if n == 0 {
		return meta
	}

	ctx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()

	sem := make(chan struct{}, enrichmentConcurrency)
	statuses := make([]EnrichmentStatus, n)
	errSamples := make([]string, 0, maxErrorSamples)
	seenSamples := make(map[string]bool)

	var mu sync.Mutex
	var wg sync.WaitGroup

	recordSample := func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		if len(msg) > maxErrorSampleLen {
			msg = msg[:maxErrorSampleLen]
		}
		if seenSamples[msg] || len(errSamples) >= maxErrorSamples {
			return
		}
		seenSamples[msg] = true
		errSamples = append(errSamples, msg)
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			statuses[i] = StatusTimeout
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			done := make(chan EnrichmentStatus, 1)
			go func() { done <- fn(ctx, i) }()

			select {
			case status := <-done:
				statuses[i] = status
				if status == StatusError {
					recordSample("enrichment failed for row")
				} else if status == StatusRateLimited {
					recordSample("rate limited")
				}
			case <-ctx.Done():
				statuses[i] = StatusTimeout
			}
		}(i)
	}

	wg.Wait()

	for _, s := range statuses {
		switch s {
		case StatusSuccess:
			meta.Succeeded++
		case StatusRateLimited:
			meta.RateLimited++
		case StatusTimeout:
			meta.Timeout++
		default:
			meta.Failed++
		}
	}
	meta.ErrorSamples = errSamples

	if meta.Timeout > 0 {
		telemetry.For("screen").Warn().Int("timed_out", meta.Timeout).Msg("RSI enrichment global timeout fired, returning partial results")
	}

	return meta
}

// rsiTimeoutWarning builds the warning callers append when the global
// enrichment timeout fires, matching the required
// /timed out/i and /partial results/i substrings from spec.md §8.
func rsiTimeoutWarning(meta RSIEnrichmentMeta) (string, bool) {
	if meta.Timeout == 0 {
		return "", false
	}
	return "RSI enrichment timed out for some symbols; returning partial results", true
}

// classifyEnrichError maps an error from a provider call into an
// enrichment status, used by callers building their EnrichFunc.
func classifyEnrichError(err error) EnrichmentStatus {
	if err == nil {
		return StatusSuccess
	}
	if c, ok := err.(*errs.Classified); ok {
		switch c.Kind {
		case errs.KindTimeout:
			return StatusTimeout
		case errs.KindRateLimitExhausted:
			return StatusRateLimited
		}
	}
	return StatusError
}
