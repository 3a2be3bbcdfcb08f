package recommend

// scoreByStrategy assigns each candidate's strategyScore in place,
// per the per-strategy predicates reconstructed from the MCP tool
// handlers (spec.md §4.I is a one-paragraph summary; the strategy
// weighting itself is a supplemented feature): value favors low
// PER/PBR, income favors dividend yield, growth favors momentum and
// oversold RSI, balanced blends all three plus the composite score
// where available.
func scoreByStrategy(strategy string, candidates []Candidate) {
	valueScores := normalize(candidates, valueRawScore)
	incomeScores := normalize(candidates, incomeRawScore)
	growthScores := normalize(candidates, growthRawScore)

	for i := range candidates {
		switch strategy {
		case "value":
			candidates[i].strategyScore = valueScores[i]
		case "income":
			candidates[i].strategyScore = incomeScores[i]
		case "growth":
			candidates[i].strategyScore = growthScores[i]
		default: // balanced
			blend := (valueScores[i] + incomeScores[i] + growthScores[i]) / 3
			if candidates[i].CompositeScore != nil {
				blend = (blend + *candidates[i].CompositeScore) / 2
			}
			candidates[i].strategyScore = blend
		}
	}
}

// valueRawScore rewards low PER/PBR; missing or non-positive valuation
// data abstains, so normalize gives it the midpoint (50) rather than
// excluding the candidate outright.
func valueRawScore(c Candidate) (float64, bool) {
	if c.PER == nil || c.PBR == nil || *c.PER <= 0 || *c.PBR <= 0 {
		return 0, false
	}
	return -(*c.PER + *c.PBR), true
}

func incomeRawScore(c Candidate) (float64, bool) {
	if c.DividendYield == nil {
		return 0, false
	}
	return *c.DividendYield, true
}

// growthRawScore rewards positive momentum and discounts overbought
// RSI readings.
func growthRawScore(c Candidate) (float64, bool) {
	if c.ChangeRate == nil {
		return 0, false
	}
	score := *c.ChangeRate
	if c.RSI != nil {
		score += (70 - *c.RSI) * 0.1
	}
	return score, true
}

// normalize min-max scales a raw-score function's output to [0, 100]
// across the candidate set; candidates the raw function abstains on
// (ok == false) get the midpoint, 50, so they neither dominate nor get
// unfairly excluded from a blended score.
func normalize(candidates []Candidate, raw func(Candidate) (float64, bool)) []float64 {
	values := make([]float64, len(candidates))
	present := make([]bool, len(candidates))
	min, max := 0.0, 0.0
	first := true
	for i, c := range candidates {
		v, ok := raw(c)
		values[i] = v
		present[i] = ok
		if !ok {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(candidates))
	spread := max - min
	for i := range candidates {
		if !present[i] {
			out[i] = 50
			continue
		}
		if spread == 0 {
			out[i] = 50
			continue
		}
		out[i] = (values[i] - min) / spread * 100
	}
	return out
}
