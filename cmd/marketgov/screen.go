package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketgov/internal/screen"
)

func newScreenCmd() *cobra.Command {
	var (
		market    string
		sortBy    string
		sortOrder string
		limit     int
		maxRSI    float64
		hasMaxRSI bool
	)

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Run one screening pass against kospi, kosdaq, us, or crypto and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeDeps, err := loadDeps(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()

			pipeline, ok := d.pipelineFor(market)
			if !ok {
				return fmt.Errorf("unknown market %q: want one of kospi, kosdaq, us, crypto", market)
			}

			filters := screen.Filters{Market: market, SortBy: sortBy, SortOrder: sortOrder, Limit: limit}
			if hasMaxRSI {
				filters.MaxRSI = &maxRSI
			}

			result, err := pipeline.Screen(cmd.Context(), filters)
			if err != nil {
				return fmt.Errorf("screen %s: %w", market, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&market, "market", "kospi", "kospi|kosdaq|us|crypto")
	cmd.Flags().StringVar(&sortBy, "sort-by", "volume", "field to sort by")
	cmd.Flags().StringVar(&sortOrder, "sort-order", "desc", "asc|desc")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to return")
	cmd.Flags().Float64Var(&maxRSI, "max-rsi", 0, "drop rows with RSI above this ceiling")
	cmd.Flags().BoolVar(&hasMaxRSI, "enable-max-rsi", false, "apply --max-rsi (triggers RSI enrichment)")

	return cmd
}
