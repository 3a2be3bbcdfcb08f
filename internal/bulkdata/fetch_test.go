package bulkdata

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketgov/internal/sharedcache"
	"github.com/sawpanic/marketgov/internal/tradingdate"
)

type fakeProvider struct {
	calls     int
	responses map[string]json.RawMessage // keyed by date, consumed in order per resource
	queue     []json.RawMessage
	err       error
}

func (f *fakeProvider) Fetch(_ context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) == 0 {
		return json.RawMessage(`{"OutBlock_1":[]}`), nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, nil
}

func newFetchers(provider Provider) *Fetchers {
	cache := sharedcache.New(nil)
	resolver := tradingdate.New(nil)
	return New(provider, cache, resolver)
}

func explicitDate(d string) *string { return &d }

func TestStockAll_NormalisesFieldsAndCaches(t *testing.T) {
	provider := &fakeProvider{queue: []json.RawMessage{
		json.RawMessage(`{"OutBlock_1":[{"ISU_SRT_CD":"005930","ISU_ABBRV":"Samsung","TDD_CLSPRC":"70,000","FLUC_RT":"1.20","FLUC_TP_CD":"2","ACC_TRDVOL":"1,000","ACC_TRDVAL":"70,000,000","MKTCAP":"480000000000000"}]}`),
	}}
	f := newFetchers(provider)
	date := explicitDate("20260731")

	stocks, err := f.StockAll(context.Background(), "STK", date)
	require.NoError(t, err)
	require.Len(t, stocks, 1)

	s := stocks[0]
	assert.Equal(t, "005930", s.Code)
	require.NotNil(t, s.Close)
	assert.Equal(t, 70000.0, *s.Close)
	require.NotNil(t, s.ChangeRate)
	assert.Equal(t, -1.20, *s.ChangeRate)
	require.NotNil(t, s.MarketCapEok)
	assert.Equal(t, 4800000.0, *s.MarketCapEok)

	assert.Equal(t, 1, provider.calls)

	// Second call should hit cache, not the provider again.
	_, err = f.StockAll(context.Background(), "STK", date)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestStockAll_EmptyResponseAdvancesToNextCandidateDate(t *testing.T) {
	provider := &fakeProvider{queue: []json.RawMessage{
		json.RawMessage(`{"OutBlock_1":[]}`),
	}}
	f := newFetchers(provider)

	// No explicit date: resolver walks weekdays. We can't control
	// "now" here, so just assert the loop doesn't error and the
	// provider is consulted at least once.
	_, err := f.StockAll(context.Background(), "STK", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, provider.calls, 1)
}

func TestETFAll_IncludesClassificationCodeInCacheKeyAndOutput(t *testing.T) {
	provider := &fakeProvider{queue: []json.RawMessage{
		json.RawMessage(`{"OutBlock_1":[{"ISU_SRT_CD":"069500","ISU_ABBRV":"KODEX 200","TDD_CLSPRC":"30,000","FLUC_RT":"0.50","FLUC_TP_CD":"1","ACC_TRDVOL":"500","MKTCAP":"1000000000000","IDX_CLS_CD":"300"}]}`),
	}}
	f := newFetchers(provider)
	idx := "300"
	date := explicitDate("20260731")

	etfs, err := f.ETFAll(context.Background(), &idx, date)
	require.NoError(t, err)
	require.Len(t, etfs, 1)
	assert.Equal(t, "300", etfs[0].IdxClsCd)
}

func TestValuationAll_DropsRowsMissingStockCode(t *testing.T) {
	provider := &fakeProvider{queue: []json.RawMessage{
		json.RawMessage(`{"OutBlock_1":[{"ISU_SRT_CD":"005930","PER":"15.2","PBR":"1.8","DVD_YLD":"2.56"},{"ISU_SRT_CD":"","PER":"10.0"}]}`),
	}}
	f := newFetchers(provider)
	date := explicitDate("20260731")

	vals, err := f.ValuationAll(context.Background(), "STK", date)
	require.NoError(t, err)
	require.Len(t, vals, 1)

	v, ok := vals["005930"]
	require.True(t, ok)
	require.NotNil(t, v.PER)
	assert.Equal(t, 15.2, *v.PER)
	require.NotNil(t, v.DividendYield)
	assert.InDelta(t, 0.0256, *v.DividendYield, 1e-9)
}

func TestValuationAll_PerPbrZeroBecomesNull(t *testing.T) {
	provider := &fakeProvider{queue: []json.RawMessage{
		json.RawMessage(`{"OutBlock_1":[{"ISU_SRT_CD":"000660","PER":"0","PBR":"0","DVD_YLD":"0"}]}`),
	}}
	f := newFetchers(provider)
	date := explicitDate("20260731")

	vals, err := f.ValuationAll(context.Background(), "STK", date)
	require.NoError(t, err)
	v := vals["000660"]
	assert.Nil(t, v.PER)
	assert.Nil(t, v.PBR)
}
