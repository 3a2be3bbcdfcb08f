package screen

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketgov/internal/sharedcache"
)

type fakeCryptoExchange struct {
	markets json.RawMessage
	tickers json.RawMessage
}

func (f *fakeCryptoExchange) Fetch(_ context.Context, resource string, _ map[string]string) (json.RawMessage, error) {
	switch resource {
	case "markets":
		return f.markets, nil
	case "ticker":
		return f.tickers, nil
	default:
		return json.RawMessage(`[]`), nil
	}
}

type flatPrices struct{}

func (flatPrices) DailyCloses(_ context.Context, _ string) ([]float64, error) {
	return []float64{100, 101, 102, 101, 100, 99, 98, 99, 100, 101, 102, 103, 104, 105, 106}, nil
}

type fakeMarketCapSource struct {
	snapshot map[string]float64
	err      error
}

func (f *fakeMarketCapSource) Snapshot(_ context.Context) (map[string]float64, error) {
	return f.snapshot, f.err
}

func newCryptoPipeline(exchange CryptoExchangeProvider, marketCaps MarketCapSource) *CryptoPipeline {
	return NewCryptoPipeline(exchange, flatPrices{}, marketCaps, sharedcache.New(nil), CryptoConfig{
		TopByVolume:   10,
		DropThreshold: -0.1,
		MarketPanic:   -0.05,
	})
}

func TestCryptoScreen_FiltersFlaggedWarningMarkets(t *testing.T) {
	exchange := &fakeCryptoExchange{
		markets: json.RawMessage(`[{"market":"KRW-BTC","market_warning":"NONE"},{"market":"KRW-XYZ","market_warning":"CAUTION"}]`),
		tickers: json.RawMessage(`[
			{"market":"KRW-BTC","signed_change_rate":0.01,"acc_trade_price_24h":1000000},
			{"market":"KRW-XYZ","signed_change_rate":0.02,"acc_trade_price_24h":500000}
		]`),
	}
	p := newCryptoPipeline(exchange, &fakeMarketCapSource{snapshot: map[string]float64{}})

	result, err := p.Screen(context.Background(), Filters{Market: "crypto", SortBy: "trade_amount", SortOrder: "desc", Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "KRW-BTC", result.Results[0]["code"])
	assert.Equal(t, 1, *result.Meta.FilteredByWarning)
}

// TestCryptoScreen_FiltersIndividuallyCrashedCoinsWhenBTCIsCalm verifies
// the drop-threshold filter only bites while the broader market (BTC)
// is not itself panicking: an altcoin crashing alone gets dropped, but
// BTC's own calm change rate keeps it in the result set.
func TestCryptoScreen_FiltersIndividuallyCrashedCoinsWhenBTCIsCalm(t *testing.T) {
	exchange := &fakeCryptoExchange{
		markets: json.RawMessage(`[{"market":"KRW-BTC","market_warning":"NONE"},{"market":"KRW-ETH","market_warning":"NONE"}]`),
		tickers: json.RawMessage(`[
			{"market":"KRW-BTC","signed_change_rate":0.01,"acc_trade_price_24h":1000000},
			{"market":"KRW-ETH","signed_change_rate":-0.15,"acc_trade_price_24h":500000}
		]`),
	}
	p := newCryptoPipeline(exchange, &fakeMarketCapSource{snapshot: map[string]float64{}})

	result, err := p.Screen(context.Background(), Filters{Market: "crypto", SortBy: "trade_amount", SortOrder: "desc", Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "KRW-BTC", result.Results[0]["code"])
	assert.Equal(t, 1, *result.Meta.FilteredByCrash)
}

func TestCryptoScreen_MarketCapSnapshotFailureEmitsWarningAndNullsField(t *testing.T) {
	exchange := &fakeCryptoExchange{
		markets: json.RawMessage(`[{"market":"KRW-BTC","market_warning":"NONE"}]`),
		tickers: json.RawMessage(`[{"market":"KRW-BTC","signed_change_rate":0.01,"acc_trade_price_24h":1000000}]`),
	}
	p := newCryptoPipeline(exchange, &fakeMarketCapSource{err: assert.AnError})

	result, err := p.Screen(context.Background(), Filters{Market: "crypto", SortBy: "trade_amount", SortOrder: "desc", Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Nil(t, result.Results[0]["market_cap"].(*float64))
	assert.Contains(t, result.Warnings, "market-cap snapshot unavailable, market_cap fields set to null")
}

func TestCryptoScreen_MissingUpstreamMarketsIsErrorResult(t *testing.T) {
	exchange := &fakeCryptoExchange{markets: nil, tickers: nil}
	p := newCryptoPipeline(exchange, &fakeMarketCapSource{snapshot: map[string]float64{}})

	_, err := p.Screen(context.Background(), Filters{Market: "crypto", SortBy: "trade_amount", SortOrder: "desc", Limit: 10})
	require.Error(t, err)
	var er *ErrorResult
	require.ErrorAs(t, err, &er)
	assert.Equal(t, "upbit", er.Source)
}
