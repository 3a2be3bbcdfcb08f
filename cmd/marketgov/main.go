// Command marketgov serves and drives the market-data acquisition and
// screening engine described across internal/{providers,bulkdata,
// screen,recommend,httpapi}: a KOSPI/KOSDAQ/US/crypto screener with a
// strategy-based position recommender, fronted by a thin REST/WebSocket
// API. Grounded on the teacher's cmd/cryptorun/main.go root-command
// wiring, right-sized to this system's four subcommands rather than the
// teacher's interactive-menu surface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketgov/internal/config"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

const appName = "marketgov"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	root := &cobra.Command{
		Use:   appName,
		Short: "Market-data acquisition, screening, and recommendation service",
		Long: `marketgov screens KOSPI, KOSDAQ, US equities, and the Upbit KRW
crypto market behind a uniform filter surface, enriches candidates with
an RSI/ADX composite score, and sizes strategy-based position
recommendations against a budget.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			telemetry.Init(cfg.LogLevel, isTTY())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/marketgov.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(),
		newScreenCmd(),
		newProbeCmd(),
		newTokensCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		telemetry.Logger.Fatal().Err(err).Msg("marketgov exited with error")
		os.Exit(1)
	}
}

func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// loadDeps re-resolves config (PersistentPreRunE already validated it
// loads cleanly) and wires every subsystem, shared by every subcommand
// below.
func loadDeps(cmd *cobra.Command) (*deps, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("load config: %w", err)
	}
	d, err := buildDeps(cmd.Context(), cfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("wire dependencies: %w", err)
	}
	return d, d.close, nil
}
