package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SentiTrader/pkg/config"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "SentiTrader turns social sentiment into risk-checked paper trades",
	Long: `SentiTrader aggregates sentiment events into rolling windows, generates
BUY/SELL signals, validates them against portfolio guardrails and executes
the accepted ones through the brokerage.

Without a subcommand the full pipeline is started (same as "trader run").`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment overrides")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
