package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lionlai1989/sat-bundleadjust/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sat-ba",
	Short: "Multi-date bundle adjustment for satellite image time series",
	Long:  "Groups satellite acquisitions into a date timeline, feeds each date to the external optimization core per the chosen strategy and tracks adjusted camera models across runs.",
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
