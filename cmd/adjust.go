package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	adjustStrategy string
	adjustIndices  []int
	adjustReset    bool
	adjustNoReset  bool
)

var adjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Adjust the camera models of a scene",
	Long:  "Loads the configured scene, derives its date timeline and runs the bundle adjustment per the selected strategy. Already adjusted dates are skipped unless the strategy output is reset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if adjustStrategy != "" {
			cfg.Scene.Strategy = adjustStrategy
		}
		if len(adjustIndices) > 0 {
			cfg.Scene.TimelineIndices = adjustIndices
		}
		if adjustReset {
			cfg.Scene.Reset = true
		}
		if adjustNoReset {
			cfg.Scene.Reset = false
		}

		s, st, err := initScene(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return s.Run(ctx)
	},
}

func init() {
	adjustCmd.Flags().StringVar(&adjustStrategy, "strategy", "", "adjustment strategy: sequential, global or bruteforce (default from config)")
	adjustCmd.Flags().IntSliceVar(&adjustIndices, "dates", nil, "timeline indices to adjust (default all)")
	adjustCmd.Flags().BoolVar(&adjustReset, "reset", false, "discard previous output of this strategy first")
	adjustCmd.Flags().BoolVar(&adjustNoReset, "no-reset", false, "keep previous output and resume")
	rootCmd.AddCommand(adjustCmd)
}
