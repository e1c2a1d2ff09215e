// Package footprint computes ground footprints of satellite images from
// their RPC models and derives the scene's area of interest. Footprints are
// geographic polygons obtained by localizing the four image corners at the
// model's reference altitude.
package footprint

import (
	"context"
	"runtime"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
)

// Image is one input to footprint computation.
type Image struct {
	ID     string
	Model  *rpc.Model
	Width  int
	Height int
}

// Footprint is a computed ground footprint: a closed lon/lat ring.
type Footprint struct {
	ID   string
	Ring []geom.Coord
}

// Result aggregates per-image footprints. Images whose RPC localization does
// not converge are dropped and counted in Failed rather than failing the
// scene load.
type Result struct {
	Footprints []Footprint
	Failed     int
}

// Compute localizes the corners of every image. Images are independent, so
// the work is spread over the available CPUs; the per-image order of the
// input is preserved in the output. It fails only when every single image
// fails.
func Compute(ctx context.Context, images []Image) (Result, error) {
	if len(images) == 0 {
		return Result{}, nil
	}

	out := make([]*Footprint, len(images))
	var mu sync.Mutex
	failed := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, img := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fp, err := one(img)
			if err != nil {
				zap.L().Debug("footprint: localization failed",
					zap.String("image", img.ID),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			out[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, eris.Wrap(err, "footprint: compute")
	}

	res := Result{Failed: failed}
	for _, fp := range out {
		if fp != nil {
			res.Footprints = append(res.Footprints, *fp)
		}
	}
	if len(res.Footprints) == 0 {
		return Result{}, eris.Errorf("footprint: all %d images failed localization", len(images))
	}
	if failed > 0 {
		zap.L().Warn("footprint: some images failed localization",
			zap.Int("failed", failed),
			zap.Int("total", len(images)),
		)
	}
	return res, nil
}

// one localizes the four corners of a single image at the RPC reference
// altitude, which stands in for the ground level of the scene.
func one(img Image) (*Footprint, error) {
	w, h := float64(img.Width), float64(img.Height)
	corners := [][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}}
	alt := img.Model.AltOffset

	ring := make([]geom.Coord, 0, 5)
	for _, c := range corners {
		lon, lat, err := img.Model.Localization(c[0], c[1], alt)
		if err != nil {
			return nil, err
		}
		ring = append(ring, geom.Coord{lon, lat})
	}
	ring = append(ring, ring[0]) // close the ring

	return &Footprint{ID: img.ID, Ring: ring}, nil
}
