package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lionlai1989/sat-bundleadjust/internal/footprint"
	"github.com/lionlai1989/sat-bundleadjust/internal/scene"
	"github.com/lionlai1989/sat-bundleadjust/internal/solver"
)

var aoiShapefile bool

var aoiCmd = &cobra.Command{
	Use:   "aoi",
	Short: "Derive the area of interest from the image footprints",
	Long:  "Localizes the corners of every image with its initial camera model, writes the resulting area of interest as geojson and optionally exports per-image footprints as a shapefile.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := scene.Load(ctx, cfg.Scene, solver.New(cfg.Solver), nil, os.Stdout)
		if err != nil {
			return err
		}

		res, err := s.Footprints(ctx)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			fmt.Fprintf(os.Stderr, "%d image footprints could not be computed\n", res.Failed)
		}

		aoi := s.AOI()
		fmt.Printf("%d footprints, AOI center at lon %.6f lat %.6f\n",
			len(res.Footprints), aoi.Center[0], aoi.Center[1])

		if aoiShapefile {
			path := filepath.Join(cfg.Scene.OutputDir, "footprints.shp")
			if err := footprint.ExportShapefile(path, res.Footprints); err != nil {
				return err
			}
			fmt.Printf("footprints written to %s\n", path)
		}
		return nil
	},
}

func init() {
	aoiCmd.Flags().BoolVar(&aoiShapefile, "shp", false, "also export per-image footprints as a shapefile")
	rootCmd.AddCommand(aoiCmd)
}
