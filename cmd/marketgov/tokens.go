package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage the broker OAuth bearer token",
	}
	cmd.AddCommand(newTokensRefreshCmd(), newTokensClearCmd())
	return cmd
}

func newTokensRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a broker token exchange, bypassing the distributed-lock cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeDeps, err := loadDeps(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()

			d.kis.InvalidateCredentials()
			if _, _, err := d.kis.LatestWorkingDate(cmd.Context()); err != nil {
				return fmt.Errorf("refresh broker token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "broker token refreshed")
			return nil
		},
	}
}

func newTokensClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached broker token, forcing the next request to re-authenticate",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeDeps, err := loadDeps(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()

			d.kis.InvalidateCredentials()
			fmt.Fprintln(cmd.OutOrStdout(), "broker token cleared")
			return nil
		},
	}
}
