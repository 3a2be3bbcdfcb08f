package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketgov/internal/providers/scrape"
	"github.com/sawpanic/marketgov/internal/recommend"
	"github.com/sawpanic/marketgov/internal/screen"
)

type fakePipeline struct {
	result screen.Result
	err    error
}

func (f *fakePipeline) Screen(ctx context.Context, filters screen.Filters) (screen.Result, error) {
	return f.result, f.err
}

func newTestServer(kospi ScreenPipeline) *Server {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.Kospi = kospi
	cfg.Recommend = recommend.Recommend
	return NewServer(cfg)
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleScreen_UnknownMarketReturns400(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/screen?market=mars", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScreen_ProxiesToPipelineAndReturns200(t *testing.T) {
	pipeline := &fakePipeline{result: screen.Result{Market: "kospi", TotalCount: 1, ReturnedCount: 1}}
	s := newTestServer(pipeline)
	req := httptest.NewRequest(http.MethodGet, "/screen?market=kospi&sort_by=market_cap&limit=10", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded screen.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "kospi", decoded.Market)
}

func TestHandleScreen_ErrorResultMapsTo502(t *testing.T) {
	pipeline := &fakePipeline{err: &screen.ErrorResult{Source: "kis", Message: "no results"}}
	s := newTestServer(pipeline)
	req := httptest.NewRequest(http.MethodGet, "/screen?market=kospi", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleRecommend_RejectsInvalidBody(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodPost, "/recommend", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecommend_ScreensEachMarketAndRecommends(t *testing.T) {
	pipeline := &fakePipeline{result: screen.Result{
		Market: "kospi",
		Results: []screen.Row{
			{"code": "005930", "dividend_yield": floatPtrTest(0.03)},
		},
	}}
	s := newTestServer(pipeline)

	body := `{"markets":["kospi"],"strategy":"income","budget":1000000,"max_positions":5}`
	req := httptest.NewRequest(http.MethodPost, "/recommend", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded recommend.RecommendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Len(t, decoded.Allocations, 1)
	assert.Equal(t, "005930", decoded.Allocations[0].Symbol)
}

func floatPtrTest(v float64) *float64 { return &v }

type fakeDetailProvider struct{}

func (fakeDetailProvider) Profile(ctx context.Context, code string) (scrape.Profile, error) {
	return scrape.Profile{Name: "Samsung Electronics"}, nil
}

func (fakeDetailProvider) Financials(ctx context.Context, code string) (scrape.Financials, error) {
	return scrape.Financials{PER: 12.5}, nil
}

func (fakeDetailProvider) Opinions(ctx context.Context, code string) ([]scrape.Opinion, error) {
	return []scrape.Opinion{{Firm: "Mirae Asset", Rating: "Buy"}}, nil
}

func TestHandleDetail_UnconfiguredReturns503(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/detail/005930", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleDetail_ComposesScrapedViews(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kospi = &fakePipeline{}
	cfg.Recommend = recommend.Recommend
	cfg.Detail = fakeDetailProvider{}
	s := NewServer(cfg)

	req := httptest.NewRequest(http.MethodGet, "/detail/005930", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded detailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "005930", decoded.Code)
}
