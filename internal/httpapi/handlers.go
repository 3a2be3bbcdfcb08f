package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/recommend"
	"github.com/sawpanic/marketgov/internal/screen"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

// handleScreen proxies GET /screen?market=...&... into the matching
// pipeline's screen.Filters.
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	market := q.Get("market")

	pipeline, ok := s.pipelineFor(market)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_market", "market must be one of kospi, kosdaq, us, crypto")
		return
	}

	filters := screen.Filters{
		Market:           market,
		AssetType:        optionalString(q, "asset_type"),
		Category:         optionalString(q, "category"),
		Strategy:         optionalString(q, "strategy"),
		SortBy:           q.Get("sort_by"),
		SortOrder:        defaultString(q.Get("sort_order"), "desc"),
		MinMarketCap:     optionalFloat(q, "min_market_cap"),
		MaxPER:           optionalFloat(q, "max_per"),
		MaxPBR:           optionalFloat(q, "max_pbr"),
		MinDividendYield: optionalFloat(q, "min_dividend_yield"),
		MaxRSI:           optionalFloat(q, "max_rsi"),
		Limit:            intOrDefault(q.Get("limit"), 20),
	}

	result, err := pipeline.Screen(r.Context(), filters)
	if err != nil {
		writeScreenError(w, r, err)
		return
	}

	s.hub.broadcast(result)
	writeJSON(w, http.StatusOK, result)
}

func writeScreenError(w http.ResponseWriter, r *http.Request, err error) {
	var errResult *screen.ErrorResult
	if errors.As(err, &errResult) {
		writeError(w, r, http.StatusBadGateway, "upstream_unavailable", errResult.Message)
		return
	}
	var validation *errs.Validation
	if errors.As(err, &validation) {
		writeError(w, r, http.StatusBadRequest, "validation_failed", validation.Error())
		return
	}
	var classified *errs.Classified
	if errors.As(err, &classified) {
		writeError(w, r, http.StatusBadGateway, string(classified.Kind), classified.Error())
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
}

type recommendRequest struct {
	Markets      []string   `json:"markets"`
	Holdings     []string   `json:"holdings"`
	Strategy     string     `json:"strategy"`
	Budget       float64    `json:"budget"`
	MaxPositions int        `json:"max_positions"`
	ExcludeHeld  bool       `json:"exclude_held"`
	Filters      screen.Filters `json:"filters"`
}

// handleRecommend proxies POST /recommend, screening each requested
// market with the shared filters and feeding the combined results
// into the recommender.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.MaxPositions == 0 {
		req.MaxPositions = 5
	}

	var results []screen.Result
	for _, market := range req.Markets {
		pipeline, ok := s.pipelineFor(market)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "invalid_market", "unknown market: "+market)
			return
		}
		filters := req.Filters
		filters.Market = market
		if filters.SortBy == "" {
			filters.SortBy = "market_cap"
		}
		if filters.SortOrder == "" {
			filters.SortOrder = "desc"
		}
		if filters.Limit == 0 {
			filters.Limit = 50
		}
		result, err := pipeline.Screen(r.Context(), filters)
		if err != nil {
			writeScreenError(w, r, err)
			return
		}
		results = append(results, result)
	}

	holdings := make([]recommend.Position, 0, len(req.Holdings))
	for _, symbol := range req.Holdings {
		holdings = append(holdings, recommend.Position{Symbol: symbol})
	}

	result, err := s.cfg.Recommend(r.Context(), results, holdings, req.Strategy, req.Budget, req.MaxPositions, req.ExcludeHeld, s.cfg.Prices)
	if err != nil {
		writeScreenError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type detailResponse struct {
	Code       string           `json:"code"`
	Profile    interface{}      `json:"profile"`
	Financials interface{}      `json:"financials"`
	Opinions   interface{}      `json:"opinions"`
}

// handleDetail proxies GET /detail/{code} to the scraped
// Korean-finance pages, composing the profile/financials/opinions
// views into one response. Returns 503 if no DetailProvider is
// configured (crypto/US-only deployments may omit it).
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Detail == nil {
		writeError(w, r, http.StatusServiceUnavailable, "detail_unavailable", "scraped detail pages are not configured")
		return
	}
	code := mux.Vars(r)["code"]

	profile, err := s.cfg.Detail.Profile(r.Context(), code)
	if err != nil {
		writeScreenError(w, r, err)
		return
	}
	financials, err := s.cfg.Detail.Financials(r.Context(), code)
	if err != nil {
		writeScreenError(w, r, err)
		return
	}
	opinions, err := s.cfg.Detail.Opinions(r.Context(), code)
	if err != nil {
		writeScreenError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detailResponse{Code: code, Profile: profile, Financials: financials, Opinions: opinions})
}

func (s *Server) pipelineFor(market string) (ScreenPipeline, bool) {
	switch market {
	case "kospi":
		return s.cfg.Kospi, s.cfg.Kospi != nil
	case "kosdaq":
		return s.cfg.Kosdaq, s.cfg.Kosdaq != nil
	case "us":
		return s.cfg.US, s.cfg.US != nil
	case "crypto":
		return s.cfg.Crypto, s.cfg.Crypto != nil
	default:
		return nil, false
	}
}

func optionalString(q map[string][]string, key string) *string {
	v, ok := q[key]
	if !ok || len(v) == 0 || v[0] == "" {
		return nil
	}
	return &v[0]
}

func optionalFloat(q map[string][]string, key string) *float64 {
	v, ok := q[key]
	if !ok || len(v) == 0 || v[0] == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(v[0], 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
