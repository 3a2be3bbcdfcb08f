package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func floatPtr(v float64) *float64 { return &v }

func TestRSI14_TooShortReturnsNil(t *testing.T) {
	closes := make([]float64, 10)
	assert.Nil(t, RSI14(closes))
}

func TestRSI14_StrictlyIncreasingSeriesExceeds70(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	rsi := RSI14(closes)
	require.NotNil(t, rsi)
	assert.Greater(t, *rsi, 70.0)
}

func TestRSI14_StrictlyDecreasingSeriesBelow30(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(200 - i)
	}
	rsi := RSI14(closes)
	require.NotNil(t, rsi)
	assert.Less(t, *rsi, 30.0)
}

func TestRSI14_InRangeForFiniteInputs(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 99, 98, 104, 105, 103, 102, 101, 100, 99, 98, 97, 96}
	rsi := RSI14(closes)
	require.NotNil(t, rsi)
	assert.GreaterOrEqual(t, *rsi, 0.0)
	assert.LessOrEqual(t, *rsi, 100.0)
}

func TestADX14_TooShortReturnsAllNil(t *testing.T) {
	highs := make([]float64, 5)
	lows := make([]float64, 5)
	closes := make([]float64, 5)
	res := ADX14(highs, lows, closes)
	assert.Nil(t, res.ADX)
	assert.Nil(t, res.PlusDI)
	assert.Nil(t, res.MinusDI)
}

func TestADX14_TrendingSeriesProducesPositiveADX(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := float64(100 + i)
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}
	res := ADX14(highs, lows, closes)
	require.NotNil(t, res.ADX)
	require.NotNil(t, res.PlusDI)
	require.NotNil(t, res.MinusDI)
	assert.Greater(t, *res.PlusDI, *res.MinusDI)
}

func TestCandleCoefficient_FlatRangeReturnsFlat(t *testing.T) {
	coef, typ := CandleCoefficient(100, 100, 100, 100)
	assert.Equal(t, 0.5, coef)
	assert.Equal(t, Flat, typ)
}

func TestCandleCoefficient_BullishBeatsHammerWithLongLowerShadow(t *testing.T) {
	coef, typ := CandleCoefficient(100, 105, 80, 101)
	assert.Equal(t, 1.0, coef)
	assert.Equal(t, Bullish, typ)
}

func TestCandleCoefficient_HammerWhenBearishWithLongLowerShadow(t *testing.T) {
	coef, typ := CandleCoefficient(101, 105, 80, 100)
	assert.Equal(t, 0.8, coef)
	assert.Equal(t, Hammer, typ)
}

func TestCandleCoefficient_BearishStrongOnLargeBody(t *testing.T) {
	coef, typ := CandleCoefficient(110, 111, 100, 100.5)
	assert.Equal(t, 0.0, coef)
	assert.Equal(t, BearishStrong, typ)
}

func TestCandleCoefficient_BearishNormalOtherwise(t *testing.T) {
	coef, typ := CandleCoefficient(105, 110, 100, 103)
	assert.Equal(t, 0.5, coef)
	assert.Equal(t, BearishNormal, typ)
}

func TestVolumeScore_MissingInputsYieldZero(t *testing.T) {
	assert.Equal(t, 0.0, VolumeScore(nil, floatPtr(100)))
	assert.Equal(t, 0.0, VolumeScore(floatPtr(100), nil))
	assert.Equal(t, 0.0, VolumeScore(floatPtr(100), floatPtr(0)))
}

func TestVolumeScore_CapsAt100(t *testing.T) {
	score := VolumeScore(floatPtr(1000), floatPtr(10))
	assert.Equal(t, 100.0, score)
}

func TestTrendScore_DirectionalDominancePrecedesADXBuckets(t *testing.T) {
	assert.Equal(t, 90.0, TrendScore(floatPtr(30), floatPtr(10), floatPtr(60)))
}

func TestTrendScore_NilADXFallsBackTo30(t *testing.T) {
	assert.Equal(t, 30.0, TrendScore(floatPtr(10), floatPtr(30), nil))
}

func TestTrendScore_ADXBuckets(t *testing.T) {
	assert.Equal(t, 60.0, TrendScore(floatPtr(10), floatPtr(30), floatPtr(20)))
	assert.Equal(t, 30.0, TrendScore(floatPtr(10), floatPtr(30), floatPtr(40)))
	assert.Equal(t, 10.0, TrendScore(floatPtr(10), floatPtr(30), floatPtr(60)))
}

func TestRSIScore_NilRSIIsNeutral(t *testing.T) {
	assert.Equal(t, 50.0, RSIScore(nil))
}

func TestRSIScore_Inverts(t *testing.T) {
	assert.Equal(t, 30.0, RSIScore(floatPtr(70)))
}

func TestComposite_AlwaysInRange(t *testing.T) {
	cases := [][4]float64{
		{0, 0, 0, 0},
		{100, 100, 1, 100},
		{50, 50, 0.5, 50},
		{-999, -999, -999, -999},
		{999, 999, 999, 999},
	}
	for _, c := range cases {
		score := Composite(c[0], c[1], c[2], c[3])
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestComposite_RoundedToTwoDecimals(t *testing.T) {
	score := Composite(33.333, 66.666, 0.8, 12.345)
	scaled := score * 100
	assert.True(t, math.Abs(scaled-math.Round(scaled)) < 1e-9)
}

// TestRSI14_SeedAverageMatchesGonumMean cross-checks the hand-rolled
// Wilder seed (a plain arithmetic mean of the first 14 gains/losses)
// against gonum's stat.Mean on the same deltas, independent of RSI14's
// own summation loop.
func TestRSI14_SeedAverageMatchesGonumMean(t *testing.T) {
	closes := []float64{100, 102, 101, 104, 103, 106, 105, 108, 107, 110, 109, 112, 111, 114, 113}
	require.Len(t, closes, 15)

	var gains, losses []float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	avgGain := stat.Mean(gains, nil)
	avgLoss := stat.Mean(losses, nil)
	var wantRSI float64
	if avgLoss == 0 {
		wantRSI = 100
	} else {
		rs := avgGain / avgLoss
		wantRSI = 100 - (100 / (1 + rs))
	}

	got := RSI14(closes)
	require.NotNil(t, got)
	assert.InDelta(t, wantRSI, *got, 1e-9)
}

func TestEvaluate_ScoreAlwaysDefinedEvenWithMissingInputs(t *testing.T) {
	res := Evaluate(nil, nil, nil, 100, 105, 95, 102, nil, nil)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 100.0)
	assert.Nil(t, res.RSI)
	assert.Nil(t, res.ADX)
}
