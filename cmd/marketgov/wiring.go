package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sawpanic/marketgov/internal/bulkdata"
	"github.com/sawpanic/marketgov/internal/config"
	"github.com/sawpanic/marketgov/internal/providers/coingecko"
	"github.com/sawpanic/marketgov/internal/providers/dart"
	"github.com/sawpanic/marketgov/internal/providers/kis"
	"github.com/sawpanic/marketgov/internal/providers/krx"
	"github.com/sawpanic/marketgov/internal/providers/scrape"
	"github.com/sawpanic/marketgov/internal/providers/upbit"
	"github.com/sawpanic/marketgov/internal/providers/usscreen"
	"github.com/sawpanic/marketgov/internal/ratelimit"
	"github.com/sawpanic/marketgov/internal/recommend"
	"github.com/sawpanic/marketgov/internal/screen"
	"github.com/sawpanic/marketgov/internal/sharedcache"
	"github.com/sawpanic/marketgov/internal/store"
	"github.com/sawpanic/marketgov/internal/token"
	"github.com/sawpanic/marketgov/internal/tradingdate"
)

// deps is the fully wired dependency graph every subcommand runs
// against. Built once in main from the resolved config, the way the
// teacher's runDefaultEntry wires its application layer before
// dispatching to a subcommand.
type deps struct {
	cfg *config.Config

	limiter  *ratelimit.Registry
	cache    *sharedcache.Cache
	resolver *tradingdate.Resolver

	kis       *kis.Adapter
	upbitAPI  *upbit.Adapter
	krxAPI    *krx.Adapter
	usAPI     *usscreen.Adapter
	scrapeAPI *scrape.Adapter
	dartAPI   *dart.Adapter
	cgAPI     *coingecko.Adapter

	bulk *bulkdata.Fetchers

	kospi  *screen.KRPipeline
	kosdaq *screen.KRPipeline
	us     *screen.USPipeline
	crypto *screen.CryptoPipeline

	store *store.Store
}

// buildDeps wires every adapter, pipeline, and the optional
// persistence layer from cfg. Shared across serve/screen/probe/tokens
// so every subcommand sees the identical dependency graph.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	screen.Configure(cfg.Screening.EnrichmentConcurrency, cfg.Screening.EnrichmentTimeout)

	limiter := ratelimit.NewRegistry()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	tokenClient := redis.NewClient(redisOpts)
	tokenMgr := token.NewManager(tokenClient, "marketgov:kis:token", "marketgov:kis:token:lock")

	remoteCache, err := sharedcache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("build redis cache: %w", err)
	}
	cache := sharedcache.New(remoteCache)

	kisAdapter := kis.New(cfg.KIS.BaseURL, cfg.KIS.AppKey, cfg.KIS.AppSecret, tokenMgr, limiter)
	upbitAdapter := upbit.New(cfg.Upbit.BaseURL, limiter)
	krxAdapter := krx.New(cfg.KRX.BaseURL, limiter)
	usAdapter := usscreen.New(cfg.USScreen.BaseURL, limiter)
	scrapeAdapter := scrape.New(cfg.Scrape.BaseURL, limiter)
	dartAdapter := dart.New(cfg.DART.BaseURL, cfg.DART.APIKey, limiter)
	cgAdapter := coingecko.New(cfg.CoinGecko.BaseURL, limiter)

	resolver := tradingdate.New(kisAdapter)
	bulk := bulkdata.New(krxAdapter, cache, resolver)

	kospi := screen.NewKRPipeline(bulk, kisAdapter)
	kosdaq := screen.NewKRPipeline(bulk, kisAdapter)
	us := screen.NewUSPipeline(usAdapter, usAdapter)
	crypto := screen.NewCryptoPipeline(upbitAdapter, upbitAdapter, cgAdapter, cache, screen.CryptoConfig{
		TopByVolume:   cfg.Crypto.TopByVolume,
		DropThreshold: cfg.Crypto.DropThreshold,
		MarketPanic:   cfg.Crypto.MarketPanic,
	})

	st, err := store.Open(store.Config{DSN: cfg.Postgres.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &deps{
		cfg:       cfg,
		limiter:   limiter,
		cache:     cache,
		resolver:  resolver,
		kis:       kisAdapter,
		upbitAPI:  upbitAdapter,
		krxAPI:    krxAdapter,
		usAPI:     usAdapter,
		scrapeAPI: scrapeAdapter,
		dartAPI:   dartAdapter,
		cgAPI:     cgAdapter,
		bulk:      bulk,
		kospi:     kospi,
		kosdaq:    kosdaq,
		us:        us,
		crypto:    crypto,
		store:     st,
	}, nil
}

// close releases the store's connection pool. Safe to call on a
// nil-backed store since store.Store methods are nil-receiver-safe.
func (d *deps) close() {
	_ = d.store.Close()
}

// pipelineFor dispatches on the generic market name the same way
// internal/httpapi's handler does, kept in sync so the CLI's `screen`
// subcommand and the HTTP surface route identically.
func (d *deps) pipelineFor(market string) (interface {
	Screen(ctx context.Context, f screen.Filters) (screen.Result, error)
}, bool) {
	switch market {
	case "kospi":
		return d.kospi, true
	case "kosdaq":
		return d.kosdaq, true
	case "us":
		return d.us, true
	case "crypto":
		return d.crypto, true
	default:
		return nil, false
	}
}

// ohlcvProvider adapts the per-market PriceHistoryProvider adapters
// into recommend.OHLCVProvider. The only series every adapter exposes
// uniformly is a daily-close history, so highs and lows are both set to
// the close series: ADX is computed from close-to-close moves, and the
// last bar has High = Low = Close, so the candle coefficient always
// reports a flat candle (0.5). Composite scoring still runs rather than
// failing outright.
type ohlcvProvider struct {
	kr     screen.PriceHistoryProvider
	us     screen.PriceHistoryProvider
	crypto screen.PriceHistoryProvider
}

func (p *ohlcvProvider) providerFor(symbol string) screen.PriceHistoryProvider {
	switch {
	case strings.HasPrefix(symbol, "KRW-"):
		return p.crypto
	case len(symbol) == 6:
		return p.kr
	default:
		return p.us
	}
}

func (p *ohlcvProvider) OHLCV(ctx context.Context, symbol string) (recommend.OHLCVBars, error) {
	closes, err := p.providerFor(symbol).DailyCloses(ctx, symbol)
	if err != nil {
		return recommend.OHLCVBars{}, err
	}
	if len(closes) == 0 {
		return recommend.OHLCVBars{}, fmt.Errorf("no close history for %s", symbol)
	}

	last := closes[len(closes)-1]
	open := last
	if len(closes) > 1 {
		open = closes[len(closes)-2]
	}
	return recommend.OHLCVBars{
		Closes: closes,
		Highs:  closes,
		Lows:   closes,
		Open:   open,
		High:   last,
		Low:    last,
		Close:  last,
	}, nil
}
