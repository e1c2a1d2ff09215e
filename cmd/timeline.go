package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lionlai1989/sat-bundleadjust/internal/scene"
	"github.com/lionlai1989/sat-bundleadjust/internal/solver"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the acquisition date timeline of the scene",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := scene.Load(ctx, cfg.Scene, solver.New(cfg.Solver), nil, os.Stdout)
		if err != nil {
			return err
		}

		s.PrintTimeline(nil)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(timelineCmd)
}
