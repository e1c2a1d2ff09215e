// Package scene orchestrates multi-date bundle adjustment of satellite image
// collections: it loads a scene from disk, groups the images into an
// acquisition-date timeline, selects which images each iteration adjusts and
// which it anchors on, and drives the external optimization core per the
// configured strategy.
package scene

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionlai1989/sat-bundleadjust/internal/config"
	"github.com/lionlai1989/sat-bundleadjust/internal/footprint"
	"github.com/lionlai1989/sat-bundleadjust/internal/raster"
	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
	"github.com/lionlai1989/sat-bundleadjust/internal/store"
	"github.com/lionlai1989/sat-bundleadjust/internal/timeline"
)

// aoiFileName is where the scene persists its derived area of interest.
const aoiFileName = "AOI_init.json"

type imageMeta struct {
	path   string
	width  int
	height int
}

// Scene is a loaded image collection ready for adjustment: timeline, initial
// camera models on disk and an area of interest.
type Scene struct {
	cfg      config.SceneConfig
	strategy Strategy
	pipeline Pipeline
	stats    *store.Store
	rpcs     *rpc.Store
	entries  []timeline.Entry
	meta     map[string]imageMeta
	aoi      *footprint.AOI
	aoiPath  string
	out      io.Writer
}

// Load builds a Scene from the configured directories: it discovers the
// geotiffs, reads their acquisition dates and initial RPC models, persists
// the initial models under the output directory, clusters the timeline and
// derives the area of interest. stats may be nil when run bookkeeping is not
// wanted.
func Load(ctx context.Context, cfg config.SceneConfig, p Pipeline, stats *store.Store, out io.Writer) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	paths, err := findGeotiffs(cfg.GeotiffDir, cfg.GeotiffLabel)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("scene: no geotiffs found under %s", cfg.GeotiffDir)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "scene: create output dir")
	}

	s := &Scene{
		cfg:      cfg,
		strategy: strategy,
		pipeline: p,
		stats:    stats,
		rpcs:     rpc.NewStore(cfg.OutputDir, strategy.Dir()),
		meta:     make(map[string]imageMeta, len(paths)),
		aoiPath:  filepath.Join(cfg.OutputDir, aoiFileName),
		out:      out,
	}

	images := make([]timeline.Image, 0, len(paths))
	for _, path := range paths {
		id := raster.ID(path)
		if _, dup := s.meta[id]; dup {
			return nil, eris.Errorf("scene: duplicate image identifier %q", id)
		}
		dt, err := raster.AcquisitionDate(path)
		if err != nil {
			return nil, err
		}
		w, h, err := raster.Size(path)
		if err != nil {
			return nil, err
		}
		m, err := loadInitialModel(cfg, path, id)
		if err != nil {
			return nil, err
		}
		if err := s.rpcs.Save(id, m, rpc.StageInitial); err != nil {
			return nil, err
		}
		s.meta[id] = imageMeta{path: path, width: w, height: h}
		images = append(images, timeline.Image{ID: id, Datetime: dt})
	}

	s.entries = timeline.Cluster(images)
	if err := s.loadAOI(ctx); err != nil {
		return nil, err
	}

	zap.L().Info("scene loaded",
		zap.Int("images", len(images)),
		zap.Int("dates", len(s.entries)),
		zap.String("strategy", strategy.String()),
	)
	return s, nil
}

// Timeline returns the scene's acquisition-date clusters in chronological
// order.
func (s *Scene) Timeline() []timeline.Entry { return s.entries }

// AOI returns the scene's area of interest.
func (s *Scene) AOI() *footprint.AOI { return s.aoi }

// Footprints recomputes the per-image ground footprints from the initial
// camera models.
func (s *Scene) Footprints(ctx context.Context) (footprint.Result, error) {
	return footprint.Compute(ctx, s.footprintImages(nil))
}

// footprintImages lists the footprint inputs for the given ids, or for every
// image when ids is nil.
func (s *Scene) footprintImages(ids []string) []footprint.Image {
	if ids == nil {
		for _, e := range s.entries {
			ids = append(ids, e.Images...)
		}
	}
	out := make([]footprint.Image, 0, len(ids))
	for _, id := range ids {
		m, err := s.rpcs.LoadOne(id, rpc.StageInitial)
		if err != nil {
			// the model was written during Load; a read failure here
			// means the output dir was tampered with mid-run
			zap.L().Warn("initial model unreadable", zap.String("image", id), zap.Error(err))
			continue
		}
		meta := s.meta[id]
		out = append(out, footprint.Image{ID: id, Model: m, Width: meta.width, Height: meta.height})
	}
	return out
}

// loadAOI loads the configured AOI geojson, or derives one from the image
// footprints and persists it next to the adjusted models.
func (s *Scene) loadAOI(ctx context.Context) error {
	if s.cfg.AOIGeoJSON != "" {
		aoi, err := footprint.LoadAOI(s.cfg.AOIGeoJSON)
		if err != nil {
			return err
		}
		s.aoi = aoi
		s.aoiPath = s.cfg.AOIGeoJSON
		return nil
	}

	res, err := footprint.Compute(ctx, s.footprintImages(nil))
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		zap.L().Warn("some footprints could not be computed", zap.Int("failed", res.Failed))
	}
	aoi, err := footprint.FromFootprints(res.Footprints)
	if err != nil {
		return err
	}
	s.aoi = aoi
	return aoi.Save(s.aoiPath)
}

// findGeotiffs walks dir collecting geotiff paths, optionally restricted to
// file names containing label. The result is sorted for determinism.
func findGeotiffs(dir, label string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tif", ".tiff":
		default:
			return nil
		}
		if label != "" && !strings.Contains(filepath.Base(path), label) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scene: scan %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadInitialModel reads an image's initial RPC model from the configured
// source: embedded geotiff tags, a per-image json file or a per-image RPC00B
// text file.
func loadInitialModel(cfg config.SceneConfig, path, id string) (*rpc.Model, error) {
	switch cfg.RPCSource {
	case "geotiff":
		vals, err := raster.RPCCoefficients(path)
		if err != nil {
			return nil, err
		}
		return rpc.FromTagValues(vals)
	case "json":
		return readModelFile(filepath.Join(cfg.RPCDir, id+".json"), rpc.ReadJSON)
	case "txt":
		return readModelFile(filepath.Join(cfg.RPCDir, id+".rpc"), rpc.ReadText)
	default:
		return nil, eris.Errorf("scene: unknown rpc source %q", cfg.RPCSource)
	}
}

func readModelFile(path string, decode func(io.Reader) (*rpc.Model, error)) (*rpc.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scene: open rpc model %s", path)
	}
	defer f.Close()
	m, err := decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "scene: %s", path)
	}
	return m, nil
}

// PrintTimeline writes the timeline table for the given cluster indices, or
// the full timeline when indices is nil.
func (s *Scene) PrintTimeline(indices []int) {
	if indices == nil {
		indices = timeline.AllIndices(s.entries)
	}
	fmt.Fprintln(s.out, timeline.FormatTable(s.entries, indices))
}
