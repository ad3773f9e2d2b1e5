package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/stayscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stayscan",
	Short: "Stratified hotel listing and review acquisition",
	Long:  "Walks a region/zone/price-tier sampling plan against the booking site, collects listings with elastic quota backfill, and drains prioritized review-fetch tasks under human-paced interaction.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
