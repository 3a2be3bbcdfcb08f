// Package screen implements the market-specific screening pipelines
// from spec.md §4.H: KR, US, and Crypto, each merging universe +
// valuation + indicator data, applying filters, sorting, paginating,
// and emitting diagnostics. Grounded on the teacher's pipeline
// orchestration style in src/application/pipeline/momentum.go.
package screen

import (
	"fmt"
	"strings"

	"github.com/sawpanic/marketgov/internal/errs"
)

// Filters is the resolved input to every screening entry point,
// mirroring spec.md §4.H's screen_stocks(...) argument list.
type Filters struct {
	Market           string
	AssetType        *string
	Category         *string
	Strategy         *string
	SortBy           string
	SortOrder        string
	MinMarketCap     *float64
	MaxPER           *float64
	MaxPBR           *float64
	MinDividendYield *float64
	MaxRSI           *float64
	Limit            int
}

const (
	maxLimit          = 50
	enrichmentFanout  = 3
	enrichmentMaxRows = 150
)

var cryptoForbiddenSortBy = map[string]bool{"volume": true, "dividend_yield": true}
var nonCryptoForbiddenSortBy = map[string]bool{"rsi": true, "trade_amount": true}

// applyStrategyPreset overrides SortBy/SortOrder/MaxRSI defaults
// before validation, per spec.md §4.H's named strategy presets.
func applyStrategyPreset(f *Filters) {
	if f.Strategy == nil {
		return
	}
	switch *f.Strategy {
	case "oversold":
		maxRSI := 30.0
		f.MaxRSI = &maxRSI
		f.SortBy = "volume"
		f.SortOrder = "desc"
	case "momentum":
		f.SortBy = "change_rate"
		f.SortOrder = "desc"
	case "high_volume":
		f.SortBy = "volume"
		f.SortOrder = "desc"
	}
}

// ResolvedFilters is the echo of the post-validation filter state
// returned in ScreenResult.FiltersApplied, including the normalised
// dividend-yield pair and any forced sort-order override.
type ResolvedFilters struct {
	Market                   string   `json:"market"`
	AssetType                *string  `json:"asset_type,omitempty"`
	Category                 *string  `json:"category,omitempty"`
	SortBy                   string   `json:"sort_by"`
	SortOrder                string   `json:"sort_order"`
	MinMarketCap             *float64 `json:"min_market_cap,omitempty"`
	MaxPER                   *float64 `json:"max_per,omitempty"`
	MaxPBR                   *float64 `json:"max_pbr,omitempty"`
	MinDividendYieldInput    *float64 `json:"min_dividend_yield_input,omitempty"`
	MinDividendYieldNormalized *float64 `json:"min_dividend_yield_normalized,omitempty"`
	MaxRSI                   *float64 `json:"max_rsi,omitempty"`
	Limit                    int      `json:"limit"`
}

// validateAndResolve applies strategy presets, clamps/validates Limit,
// rejects market/asset-type combinations the target market can't
// serve, normalises dividend yield, and returns the resolved filter
// echo plus any warnings from non-fatal overrides.
func validateAndResolve(f Filters, isCrypto, isKR bool) (ResolvedFilters, []string, error) {
	applyStrategyPreset(&f)

	var warnings []string

	if f.Limit == 0 {
		return ResolvedFilters{}, nil, errs.NewValidation("limit", "must be in [1, 50]")
	}
	if f.Limit < 0 {
		return ResolvedFilters{}, nil, errs.NewValidation("limit", "must be in [1, 50]")
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}

	if isCrypto {
		if f.MaxPER != nil {
			return ResolvedFilters{}, nil, errs.NewValidation("max_per", "not applicable to crypto")
		}
		if f.MinDividendYield != nil {
			return ResolvedFilters{}, nil, errs.NewValidation("min_dividend_yield", "not applicable to crypto")
		}
		if cryptoForbiddenSortBy[f.SortBy] {
			return ResolvedFilters{}, nil, errs.NewValidation("sort_by", fmt.Sprintf("%q not supported for crypto; use trade_amount or rsi", f.SortBy))
		}
	} else {
		if nonCryptoForbiddenSortBy[f.SortBy] {
			return ResolvedFilters{}, nil, errs.NewValidation("sort_by", fmt.Sprintf("%q only supported for crypto", f.SortBy))
		}
	}

	if isKR && f.AssetType != nil && *f.AssetType == "etn" {
		return ResolvedFilters{}, nil, errs.NewValidation("asset_type", "etn not supported for KR markets")
	}

	resolved := ResolvedFilters{
		Market:       f.Market,
		AssetType:    f.AssetType,
		Category:     f.Category,
		SortBy:       f.SortBy,
		SortOrder:    strings.ToLower(f.SortOrder),
		MinMarketCap: f.MinMarketCap,
		MaxPER:       f.MaxPER,
		MaxPBR:       f.MaxPBR,
		MaxRSI:       f.MaxRSI,
		Limit:        f.Limit,
	}

	if f.MinDividendYield != nil {
		input := *f.MinDividendYield
		normalized := input
		if input >= 1 {
			normalized = input / 100
		}
		resolved.MinDividendYieldInput = &input
		resolved.MinDividendYieldNormalized = &normalized
	}

	if isCrypto && resolved.SortBy == "rsi" && resolved.SortOrder != "asc" {
		warnings = append(warnings, fmt.Sprintf("sort_order %q forced to \"asc\" for rsi sorting", resolved.SortOrder))
		resolved.SortOrder = "asc"
	}

	return resolved, warnings, nil
}

// enrichmentSubsetSize caps the pre-enrichment candidate pool at
// limit*3, itself capped at enrichmentMaxRows.
func enrichmentSubsetSize(limit int) int {
	size := limit * enrichmentFanout
	if size > enrichmentMaxRows {
		return enrichmentMaxRows
	}
	return size
}
