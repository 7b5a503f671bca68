package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"SentiTrader/internal/di"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ClickHouse and Postgres tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := di.ProvideBaseLogger(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		return di.Migrate(ctx, cfg, l)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
