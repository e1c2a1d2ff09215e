package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lionlai1989/sat-bundleadjust/internal/scene"
)

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard previous adjustment output",
	Long:  "Removes the output subtree of the configured strategy so the next adjust run starts from the initial camera models. --all wipes every strategy at once.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetAll {
			for _, s := range []scene.Strategy{scene.StrategySequential, scene.StrategyGlobal, scene.StrategyBruteforce} {
				if err := removeStrategyDir(s); err != nil {
					return err
				}
			}
			return nil
		}

		s, err := scene.ParseStrategy(cfg.Scene.Strategy)
		if err != nil {
			return err
		}
		return removeStrategyDir(s)
	},
}

func removeStrategyDir(s scene.Strategy) error {
	dir := filepath.Join(cfg.Scene.OutputDir, s.Dir())
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Printf("%s: nothing to remove\n", dir)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return eris.Wrapf(err, "reset %s", dir)
	}
	fmt.Printf("%s removed\n", dir)
	return nil
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "remove the output of every strategy")
	rootCmd.AddCommand(resetCmd)
}
