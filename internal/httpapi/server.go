// Package httpapi is the thin, read-only REST surface over the
// screening and recommendation engines. It intentionally carries no
// templates or admin UI: it proxies query parameters into
// screen.Filters / recommend.Recommend and serialises the result,
// plus a single best-effort WebSocket fan-out of screen.Result for
// live dashboards. Grounded on the teacher's
// internal/interfaces/http/server.go (mux router, middleware chain,
// request-ID correlation).
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sawpanic/marketgov/internal/providers/scrape"
	"github.com/sawpanic/marketgov/internal/recommend"
	"github.com/sawpanic/marketgov/internal/screen"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// ScreenPipeline is the common shape of screen.KRPipeline,
// screen.USPipeline, and screen.CryptoPipeline.
type ScreenPipeline interface {
	Screen(ctx context.Context, f screen.Filters) (screen.Result, error)
}

// Recommender is the subset of recommend.Recommend the HTTP layer
// calls, narrowed for testability.
type Recommender func(ctx context.Context, results []screen.Result, holdings []recommend.Position, strategy string, budget float64, maxPositions int, excludeHeld bool, prices recommend.OHLCVProvider) (recommend.RecommendResult, error)

// DetailProvider supplies the scraped Korean-finance detail pages
// behind GET /detail/{code}, implemented by *scrape.Adapter.
type DetailProvider interface {
	Profile(ctx context.Context, code string) (scrape.Profile, error)
	Financials(ctx context.Context, code string) (scrape.Financials, error)
	Opinions(ctx context.Context, code string) ([]scrape.Opinion, error)
}

// Config wires the pipelines this server proxies to.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Kospi  ScreenPipeline
	Kosdaq ScreenPipeline
	US     ScreenPipeline
	Crypto ScreenPipeline

	Recommend Recommender
	Prices    recommend.OHLCVProvider
	Detail    DetailProvider
}

// DefaultConfig returns local-only defaults; the caller fills in the
// pipeline fields.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the read-only market-data HTTP surface.
type Server struct {
	router *mux.Router
	server *http.Server
	hub    *hub
	cfg    Config
}

// NewServer builds a Server bound to addr but does not start listening.
func NewServer(cfg Config) *Server {
	router := mux.NewRouter()
	s := &Server{router: router, hub: newHub(), cfg: cfg}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/screen", s.handleScreen).Methods(http.MethodGet)
	s.router.HandleFunc("/recommend", s.handleRecommend).Methods(http.MethodPost)
	s.router.HandleFunc("/detail/{code}", s.handleDetail).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/screen", s.handleWS).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		telemetry.For("httpapi").Info().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start blocks serving HTTP until the listener errors or Shutdown is
// called.
func (s *Server) Start() error {
	telemetry.For("httpapi").Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.server.Shutdown(ctx)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
