package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// probeResult is one provider's connectivity check outcome, printed as
// a JSON array so probe output composes with jq/CI assertions the way
// the teacher's health command's --json flag does.
type probeResult struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	LatencyMS int64 `json:"latency_ms"`
	Error    string `json:"error,omitempty"`
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity to every upstream provider and print a JSON health report",
		RunE:  runProbe,
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	d, closeDeps, err := loadDeps(cmd)
	if err != nil {
		return err
	}
	defer closeDeps()

	ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
	defer cancel()

	checks := []struct {
		name string
		run  func(context.Context) error
	}{
		{"kis", func(ctx context.Context) error {
			_, _, err := d.kis.LatestWorkingDate(ctx)
			return err
		}},
		{"upbit", func(ctx context.Context) error {
			_, err := d.upbitAPI.Fetch(ctx, "markets", nil)
			return err
		}},
		{"krx", func(ctx context.Context) error {
			_, err := d.krxAPI.Fetch(ctx, "stock_all", map[string]string{"market": "STK", "date": time.Now().Format("20060102")})
			return err
		}},
		{"usscreen", func(ctx context.Context) error {
			_, err := d.usAPI.Fetch(ctx, "most_active", map[string]string{"count": "1"})
			return err
		}},
		{"dart", func(ctx context.Context) error {
			_, err := d.dartAPI.Fetch(ctx, "filing_list", map[string]string{"corp_code": "00126380"})
			return err
		}},
		{"coingecko", func(ctx context.Context) error {
			_, err := d.cgAPI.Snapshot(ctx)
			return err
		}},
	}

	results := make([]probeResult, 0, len(checks))
	for _, c := range checks {
		start := time.Now()
		err := c.run(ctx)
		r := probeResult{Provider: c.name, OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
		printProbeLine(cmd.ErrOrStderr(), r)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// printProbeLine writes a colorized one-line diagnostic to w (stderr,
// by convention, so stdout stays pure JSON for scripting); the JSON
// report above is the payload, this is just a human glance-at-it aid.
func printProbeLine(w io.Writer, r probeResult) {
	status := color.New(color.FgGreen, color.Bold).Sprint("OK  ")
	if !r.OK {
		status = color.New(color.FgRed, color.Bold).Sprint("FAIL")
	}
	fmt.Fprintf(w, "%s  %-10s %5dms\n", status, r.Provider, r.LatencyMS)
}
