package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketgov/internal/httpapi"
	"github.com/sawpanic/marketgov/internal/recommend"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP screening and recommendation API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	d, closeDeps, err := loadDeps(cmd)
	if err != nil {
		return err
	}
	defer closeDeps()

	prices := &ohlcvProvider{kr: d.kis, us: d.usAPI, crypto: d.upbitAPI}

	server := httpapi.NewServer(httpapi.Config{
		Host:         d.cfg.HTTP.Host,
		Port:         d.cfg.HTTP.Port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Kospi:        d.kospi,
		Kosdaq:       d.kosdaq,
		US:           d.us,
		Crypto:       d.crypto,
		Recommend:    recommend.Recommend,
		Prices:       prices,
		Detail:       d.scrapeAPI,
	})

	scheduler := newScheduler(d)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	errCh := make(chan error, 1)
	go func() {
		telemetry.For("serve").Info().Str("addr", d.cfg.HTTP.Host).Int("port", d.cfg.HTTP.Port).Msg("starting http server")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		telemetry.For("serve").Info().Msg("shutdown signal received, draining")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// newScheduler builds the background cron that keeps the KIS bearer
// token warm and primes the day's KRX bulk-portal cache ahead of the
// first screen request, so neither cost lands on a user-facing call.
func newScheduler(d *deps) *cron.Cron {
	c := cron.New()
	log := telemetry.For("scheduler")

	// Every 20 minutes: KIS bearer tokens are short-lived, and an
	// idle server would otherwise pay the OAuth round trip on the
	// first screen/recommend call of a new session.
	if _, err := c.AddFunc("*/20 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, _, err := d.kis.LatestWorkingDate(ctx); err != nil {
			log.Warn().Err(err).Msg("token pre-warm failed")
		}
	}); err != nil {
		log.Error().Err(err).Msg("failed to register token pre-warm job")
	}

	// Every hour, on the hour, around the clock: warm StockAll for both
	// KOSPI and KOSDAQ so the bulk-date fallback chain in
	// internal/bulkdata already has a cache hit by the time a real
	// screen request arrives.
	if _, err := c.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, market := range []string{"STK", "KSQ"} {
			if _, err := d.bulk.StockAll(ctx, market, nil); err != nil {
				log.Warn().Err(err).Str("market", market).Msg("bulk-date refresh failed")
			}
		}
	}); err != nil {
		log.Error().Err(err).Msg("failed to register bulk-date refresh job")
	}

	return c
}
