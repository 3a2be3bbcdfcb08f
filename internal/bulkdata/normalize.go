package bulkdata

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// parseNumber strips thousands-separator commas and parses a decimal,
// treating "-" or an empty string as null, per spec.md §4.E.
func parseNumber(raw string) *float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "-" {
		return nil
	}
	cleaned := strings.ReplaceAll(trimmed, ",", "")
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &val
}

// eokDivisor and percentDivisor drive the decimal-safe conversions
// below; plain float64 division of KRW market caps (routinely 15+
// digits) by 1e8 loses precision binary floats can't represent
// exactly, so the divide runs through shopspring/decimal instead.
var (
	eokDivisor    = decimal.NewFromInt(100_000_000)
	percentDivisor = decimal.NewFromInt(100)
)

// marketCapEok converts the provider's raw KRW market cap into "억
// KRW" units (divide by 10^8). Null propagates.
func marketCapEok(raw string) *float64 {
	val := parseNumber(raw)
	if val == nil {
		return nil
	}
	eok, _ := decimal.NewFromFloat(*val).DivRound(eokDivisor, 8).Float64()
	return &eok
}

// signedChangeRate applies the provider's direction code to an
// unsigned magnitude: "2" (down) negates, "1" (up) and "3" (flat, and
// anything else/missing) pass through unchanged. A missing direction
// code is treated as "no sign flip" per spec.md §9's open-question
// resolution for the analogous FLUC_TP_CD field.
func signedChangeRate(magnitude, directionCode string) *float64 {
	val := parseNumber(magnitude)
	if val == nil {
		return nil
	}
	if directionCode == "2" {
		negated := -*val
		return &negated
	}
	return val
}

// dividendYieldDecimal converts the provider's percentage figure
// (e.g. "2.56") into a decimal fraction (0.0256). Values are always
// treated as percent here since this field is never ambiguous the way
// the screening filter's min_dividend_yield input is.
func dividendYieldDecimal(raw string) *float64 {
	val := parseNumber(raw)
	if val == nil {
		return nil
	}
	fraction, _ := decimal.NewFromFloat(*val).DivRound(percentDivisor, 8).Float64()
	return &fraction
}

// perPbr treats a zero or missing PER/PBR as null: these ratios are
// never legitimately zero, so a zero value means "not computable" in
// the provider's encoding.
func perPbr(raw string) *float64 {
	val := parseNumber(raw)
	if val == nil || *val == 0 {
		return nil
	}
	return val
}
