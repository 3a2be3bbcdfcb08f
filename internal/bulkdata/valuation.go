package bulkdata

import (
	"context"
	"fmt"

	"github.com/sawpanic/marketgov/internal/sharedcache"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

// Valuation is one normalised daily PER/PBR/dividend-yield record,
// keyed by stock code in the map ValuationAll returns.
type Valuation struct {
	Code            string   `json:"code"`
	PER             *float64 `json:"per"`
	PBR             *float64 `json:"pbr"`
	DividendYield   *float64 `json:"dividend_yield"`
}

// ValuationAll fetches the valuation table for market ("STK", "KSQ",
// or "ALL") on the first usable trading-date candidate, with the
// cache schema-tolerance rule from spec.md §4.E: cached records
// missing ISU_SRT_CD are discarded on read, and if every cached
// record is invalid the whole entry is treated as a miss so a fresh
// fetch can populate it under the current schema.
func (f *Fetchers) ValuationAll(ctx context.Context, market string, explicit *string) (map[string]Valuation, error) {
	candidates := f.resolver.Candidates(ctx, explicit)

	for _, date := range candidates {
		key := fmt.Sprintf("krx:valuation:%s:%s", market, date)

		if cached, ok := sharedcache.GetJSON[[]rawRow](ctx, f.cache, key); ok {
			valid := filterValidValuationRows(cached)
			if len(valid) > 0 {
				return valuationsByCode(valid), nil
			}
			telemetry.For("bulkdata").Warn().Str("date", date).Msg("cached valuation entries all missing ISU_SRT_CD, re-fetching")
		}

		raw, err := f.provider.Fetch(ctx, "valuation_all", map[string]string{"market": market, "date": date})
		if err != nil {
			telemetry.For("bulkdata").Warn().Err(err).Str("date", date).Msg("valuation fetch failed, trying next candidate date")
			continue
		}
		rows, err := decodeRows(raw)
		if err != nil {
			telemetry.For("bulkdata").Warn().Err(err).Str("date", date).Msg("valuation response decode failed, trying next candidate date")
			continue
		}
		if len(rows) == 0 {
			continue
		}

		valid := filterValidValuationRows(rows)
		if len(valid) == 0 {
			continue
		}

		if err := sharedcache.SetJSON(ctx, f.cache, key, rows, bulkTTL); err != nil {
			telemetry.For("bulkdata").Warn().Err(err).Msg("failed to cache valuation result")
		}
		return valuationsByCode(valid), nil
	}

	return map[string]Valuation{}, nil
}

func filterValidValuationRows(rows []rawRow) []rawRow {
	valid := make([]rawRow, 0, len(rows))
	for _, r := range rows {
		if r["ISU_SRT_CD"] == "" {
			telemetry.For("bulkdata").Warn().Msg("valuation record missing ISU_SRT_CD, discarding")
			continue
		}
		valid = append(valid, r)
	}
	return valid
}

func valuationsByCode(rows []rawRow) map[string]Valuation {
	out := make(map[string]Valuation, len(rows))
	for _, r := range rows {
		code := r["ISU_SRT_CD"]
		out[code] = Valuation{
			Code:          code,
			PER:           perPbr(r["PER"]),
			PBR:           perPbr(r["PBR"]),
			DividendYield: dividendYieldDecimal(r["DVD_YLD"]),
		}
	}
	return out
}
