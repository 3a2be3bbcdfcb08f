// Package indicator implements the pure numeric kernel from spec.md
// §4.G: RSI, ADX/DI, candle-pattern classification, and the composite
// score that blends them. Every routine here is deterministic and
// allocation-light; none performs I/O or logging, matching the
// teacher's pkg/domain/indicators.go split between pure math and the
// orchestration layer that calls it.
package indicator

import "math"

// CandleType classifies a single OHLC candle.
type CandleType string

const (
	Bullish       CandleType = "bullish"
	Hammer        CandleType = "hammer"
	BearishStrong CandleType = "bearish_strong"
	BearishNormal CandleType = "bearish_normal"
	Flat          CandleType = "flat"
)

// ADXResult bundles ADX(14) with its directional components. Any field
// may be nil when the input series is too short.
type ADXResult struct {
	ADX     *float64
	PlusDI  *float64
	MinusDI *float64
}

// RSI14 computes Wilder-smoothed RSI over closes, returning nil when
// fewer than 15 closes are supplied (14 deltas needed to seed the
// smoothing).
func RSI14(closes []float64) *float64 {
	const period = 14
	if len(closes) < period+1 {
		return nil
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / period
	avgLoss := lossSum / period

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(period-1) + gain) / period
		avgLoss = (avgLoss*(period-1) + loss) / period
	}

	if avgLoss == 0 {
		rsi := 100.0
		return &rsi
	}
	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	return &rsi
}

// ADX14 computes the standard Wilder ADX/+DI/-DI formulation over
// parallel high/low/close series. Returns a result with nil fields
// when the three series differ in length or fewer than 28 bars are
// available (14 to seed the DI smoothing, then 14 DX values to seed ADX).
func ADX14(highs, lows, closes []float64) ADXResult {
	const period = 14
	n := len(highs)
	if n < period+1 || len(lows) != n || len(closes) != n {
		return ADXResult{}
	}

	trs := make([]float64, 0, n-1)
	plusDMs := make([]float64, 0, n-1)
	minusDMs := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		var plusDM, minusDM float64
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)

		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		trs = append(trs, tr)
	}

	smoothedTR := wilderSeed(trs, period)
	smoothedPlusDM := wilderSeed(plusDMs, period)
	smoothedMinusDM := wilderSeed(minusDMs, period)

	dxs := make([]float64, 0, len(trs)-period+1)
	for i := period - 1; i < len(trs); i++ {
		if i > period-1 {
			smoothedTR = wilderNext(smoothedTR, trs[i], period)
			smoothedPlusDM = wilderNext(smoothedPlusDM, plusDMs[i], period)
			smoothedMinusDM = wilderNext(smoothedMinusDM, minusDMs[i], period)
		}

		if smoothedTR == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI := 100 * smoothedPlusDM / smoothedTR
		minusDI := 100 * smoothedMinusDM / smoothedTR
		sum := plusDI + minusDI
		var dx float64
		if sum != 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}
		dxs = append(dxs, dx)
	}

	if len(dxs) < period {
		return ADXResult{}
	}

	adx := average(dxs[:period])
	for i := period; i < len(dxs); i++ {
		adx = (adx*(period-1) + dxs[i]) / period
	}

	finalPlusDI := 100 * smoothedPlusDM / smoothedTR
	finalMinusDI := 100 * smoothedMinusDM / smoothedTR

	return ADXResult{ADX: &adx, PlusDI: &finalPlusDI, MinusDI: &finalMinusDI}
}

func wilderSeed(values []float64, period int) float64 {
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	return sum
}

func wilderNext(prev, value float64, period int) float64 {
	return prev - prev/float64(period) + value
}

func average(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CandleCoefficient classifies one OHLC candle and returns its volume
// multiplier, evaluating bullish before hammer so a long-lower-shadow
// bullish candle is never misclassified.
func CandleCoefficient(o, h, l, c float64) (float64, CandleType) {
	totalRange := h - l
	if totalRange <= 0 {
		return 0.5, Flat
	}

	if c > o {
		return 1.0, Bullish
	}

	body := math.Abs(c - o)
	lowerShadow := math.Min(o, c) - l

	if lowerShadow > 2*body {
		return 0.8, Hammer
	}
	if body > 0.7*totalRange {
		return 0.0, BearishStrong
	}
	return 0.5, BearishNormal
}

// VolumeScore scales today's volume against its 20-day average,
// capped at 100. Missing or non-positive inputs yield 0.
func VolumeScore(todayVolume, avg20dVolume *float64) float64 {
	if todayVolume == nil || avg20dVolume == nil || *avg20dVolume <= 0 {
		return 0
	}
	score := 33.3 * (*todayVolume) / (*avg20dVolume)
	return math.Min(100, score)
}

// TrendScore buckets directional-movement strength into a discrete
// scale.
func TrendScore(plusDI, minusDI, adx *float64) float64 {
	if plusDI != nil && minusDI != nil && *plusDI > *minusDI {
		return 90
	}
	if adx == nil {
		return 30
	}
	switch {
	case *adx < 35:
		return 60
	case *adx <= 50:
		return 30
	default:
		return 10
	}
}

// RSIScore inverts RSI so oversold conditions score highest; a missing
// RSI is treated as neutral (50).
func RSIScore(rsi *float64) float64 {
	if rsi == nil {
		return 50
	}
	return 100 - *rsi
}

// Composite blends the RSI, volume, candle, and trend scores into the
// crypto-specific ranking scalar, clamped to [0, 100] and rounded to 2
// decimals.
func Composite(rsiScore, volScore, candleCoef, trendScore float64) float64 {
	raw := 0.4*rsiScore + 0.3*volScore*candleCoef + 0.3*trendScore
	clamped := math.Max(0, math.Min(100, raw))
	return math.Round(clamped*100) / 100
}

// Result bundles the per-symbol indicator outputs used downstream by
// the screening and recommendation pipelines.
type Result struct {
	RSI         *float64
	ADX         *float64
	PlusDI      *float64
	MinusDI     *float64
	CandleCoef  float64
	CandleType  CandleType
	Volume24h   *float64
	VolumeRatio *float64
	Score       float64
}

// Evaluate runs the full kernel over one symbol's inputs, producing a
// Result whose Score is always defined.
func Evaluate(closes, highs, lows []float64, o, h, l, c float64, todayVolume, avg20dVolume *float64) Result {
	rsi := RSI14(closes)
	adxResult := ADX14(highs, lows, closes)
	candleCoef, candleType := CandleCoefficient(o, h, l, c)
	volScore := VolumeScore(todayVolume, avg20dVolume)
	trendScore := TrendScore(adxResult.PlusDI, adxResult.MinusDI, adxResult.ADX)
	rsiScore := RSIScore(rsi)
	score := Composite(rsiScore, volScore, candleCoef, trendScore)

	var volumeRatio *float64
	if todayVolume != nil && avg20dVolume != nil && *avg20dVolume > 0 {
		ratio := *todayVolume / *avg20dVolume
		volumeRatio = &ratio
	}

	return Result{
		RSI:         rsi,
		ADX:         adxResult.ADX,
		PlusDI:      adxResult.PlusDI,
		MinusDI:     adxResult.MinusDI,
		CandleCoef:  candleCoef,
		CandleType:  candleType,
		Volume24h:   todayVolume,
		VolumeRatio: volumeRatio,
		Score:       score,
	}
}
