package screen

import "time"

// Row is one screened symbol's output record. Fields vary by market,
// so it's a flexible map rather than a fixed struct, mirroring the
// teacher's datafacade adapters which shape heterogeneous
// provider-specific payloads the same way.
type Row map[string]interface{}

// Meta is ScreenResult's diagnostics block, extended per market (KR/US
// populate only RSIEnrichment; crypto also populates the crash/warning
// filter counters and the market-cap snapshot freshness fields).
type Meta struct {
	RSIEnrichment       RSIEnrichmentMeta `json:"rsi_enrichment"`
	TotalMarkets        *int              `json:"total_markets,omitempty"`
	TopByVolume         *int              `json:"top_by_volume,omitempty"`
	FilteredByWarning   *int              `json:"filtered_by_warning,omitempty"`
	FilteredByCrash     *int              `json:"filtered_by_crash,omitempty"`
	RSIEnriched         *int              `json:"rsi_enriched,omitempty"`
	FinalCount          *int              `json:"final_count,omitempty"`
	CoingeckoCached     *bool             `json:"coingecko_cached,omitempty"`
	CoingeckoAgeSeconds *int              `json:"coingecko_age_seconds,omitempty"`
}

// Result is the uniform screening response shape from spec.md §3's
// ScreenResult entity.
type Result struct {
	Results        []Row           `json:"results"`
	TotalCount     int             `json:"total_count"`
	ReturnedCount  int             `json:"returned_count"`
	FiltersApplied ResolvedFilters `json:"filters_applied"`
	Market         string          `json:"market"`
	Meta           Meta            `json:"meta"`
	Timestamp      time.Time       `json:"timestamp"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// ErrorResult is the "no partial rows" error payload used by
// §8 scenario 3: source + message, zero results.
type ErrorResult struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

func (e *ErrorResult) Error() string { return e.Source + ": " + e.Message }
