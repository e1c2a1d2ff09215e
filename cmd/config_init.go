package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a config.yaml seeded with the current settings",
	Long:  "Renders the effective configuration, defaults plus SATBA_* environment overrides, into ./config.yaml as a starting point.",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "config.yaml"
		if !configInitForce {
			if _, err := os.Stat(path); err == nil {
				return eris.Errorf("%s already exists, use --force to overwrite", path)
			}
		}

		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "config-init: encode")
		}
		header := "# sat-ba configuration. Every key can also be set through the\n" +
			"# environment with a SATBA_ prefix, e.g. SATBA_SCENE_OUTPUT_DIR.\n"
		if err := os.WriteFile(path, append([]byte(header), raw...), 0o644); err != nil {
			return eris.Wrap(err, "config-init: write")
		}

		fmt.Printf("%s written\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(configInitCmd)
}
