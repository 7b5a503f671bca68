package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SentiTrader/internal/di"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the API and the enabled pipeline stages",
	Long: `Start the operations API and every stage enabled under "stages" in the
config. The executor and reconciler stages need brokerage credentials
(ALPACA_API_KEY / ALPACA_SECRET_KEY) and are skipped without them.

Example:
  trader run --config config/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	return app.Run()
}
