package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"SentiTrader/internal/di"
)

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace local positions with the brokerage's open positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		portfolio, cleanup, err := di.InitializePortfolio(cfg)
		if err != nil {
			return fmt.Errorf("portfolio initialization failed: %w", err)
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
		defer cancel()

		n, err := portfolio.SyncWithBrokerage(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d positions\n", n)
		return nil
	},
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 30*time.Second, "overall sync timeout")
	rootCmd.AddCommand(syncCmd)
}
