package screen

// filterRows applies every basic filter except max_rsi (which can only
// be evaluated after RSI enrichment), per spec.md §4.H step 3.
func filterRows(rows []Row, f ResolvedFilters) []Row {
	out := rows[:0:0]
	for _, r := range rows {
		if f.MinMarketCap != nil {
			marketCap, ok := r["market_cap"].(*float64)
			if !ok || marketCap == nil || *marketCap < *f.MinMarketCap {
				continue
			}
		}
		if f.MaxPER != nil {
			per, ok := r["per"].(*float64)
			if !ok || per == nil || *per > *f.MaxPER {
				continue
			}
		}
		if f.MaxPBR != nil {
			pbr, ok := r["pbr"].(*float64)
			if !ok || pbr == nil || *pbr > *f.MaxPBR {
				continue
			}
		}
		if f.MinDividendYieldNormalized != nil {
			dy, ok := r["dividend_yield"].(*float64)
			if !ok || dy == nil || *dy < *f.MinDividendYieldNormalized {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// rowFloatKey returns a key extractor for sortByField's supported
// sort_by values. Unknown fields sort as all-null (stable, no-op).
func rowFloatKey(field string) func(Row) *float64 {
	return func(r Row) *float64 {
		v, ok := r[field].(*float64)
		if !ok {
			return nil
		}
		return v
	}
}

func sortByField(rows []Row, sortBy, sortOrder string) {
	descending := sortOrder == "desc"
	sortRows(rows, rowFloatKey(sortBy), descending)
}
