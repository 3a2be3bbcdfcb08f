package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the counters and histograms the rate governor, cache,
// token manager, and screening pipeline report into. The spec's
// Non-goals exclude telemetry exporters as a consumer surface, but the
// ambient stack (structured logging, metrics) is carried regardless —
// only the dashboard/alerting side is out of scope.
var (
	RateLimiterThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketgov",
		Subsystem: "ratelimit",
		Name:      "throttled_total",
		Help:      "Requests that had to wait for the sliding window to admit them.",
	}, []string{"provider", "key"})

	RateLimiterWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketgov",
		Subsystem: "ratelimit",
		Name:      "wait_seconds",
		Help:      "Observed wait duration when a request was throttled.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "key"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketgov",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache hits by tier.",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketgov",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache misses across both tiers.",
	})

	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketgov",
		Subsystem: "token",
		Name:      "refreshes_total",
		Help:      "Number of times token_fetcher was actually invoked (should be ~1 per stampede).",
	})

	RSIEnrichmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketgov",
		Subsystem: "screen",
		Name:      "rsi_enrichment_seconds",
		Help:      "Wall-clock time spent in bounded-parallel RSI enrichment.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"market"})

	ScreenRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketgov",
		Subsystem: "screen",
		Name:      "requests_total",
		Help:      "Screening requests by market and outcome.",
	}, []string{"market", "outcome"})
)
