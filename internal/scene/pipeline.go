package scene

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lionlai1989/sat-bundleadjust/internal/pairs"
	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
	"github.com/lionlai1989/sat-bundleadjust/internal/validate"
)

// Image is one camera handed to the optimization core: a geotiff path plus
// its current RPC model. Anchor images carry models adjusted by a previous
// date and are held as reference; new images are the ones being corrected.
type Image struct {
	ID       string
	Path     string
	Model    *rpc.Model
	Adjusted bool
}

// AdjustConfig is the per-run solver configuration forwarded opaquely to the
// optimization core.
type AdjustConfig struct {
	CamModel          string   `json:"cam_model"`
	CorrectionParams  []string `json:"correction_params"`
	PredefinedMatches bool     `json:"predefined_matches"`
	FixRefCam         bool     `json:"fix_ref_cam"`
	RefCamWeight      float64  `json:"ref_cam_weight"`
	CleanOutliers     bool     `json:"clean_outliers"`
	AOIPath           string   `json:"aoi_path,omitempty"`
}

// Input is the bundle of data for one orchestration iteration. It is rebuilt
// from scratch per iteration and never retained between iterations.
type Input struct {
	Anchors []Image
	New     []Image
	// Pairs optionally restricts the correspondence search; empty means
	// exhaustive search. Indices refer to Images() positions.
	Pairs     []pairs.Pair
	Config    AdjustConfig
	InputDir  string
	OutputDir string
}

// Images returns anchors followed by new images, the index order used by
// Pairs and the observation table.
func (in *Input) Images() []Image {
	out := make([]Image, 0, len(in.Anchors)+len(in.New))
	out = append(out, in.Anchors...)
	out = append(out, in.New...)
	return out
}

// Validate enforces the input invariant: no image identifier may appear both
// as anchor and as new image, or twice at all.
func (in *Input) Validate() error {
	seen := make(map[string]bool, len(in.Anchors)+len(in.New))
	for _, img := range in.Images() {
		if seen[img.ID] {
			return eris.Errorf("scene: duplicate image %q in adjustment input", img.ID)
		}
		seen[img.ID] = true
	}
	return nil
}

// Result is what the optimization core reports back for one iteration.
type Result struct {
	// Adjusted maps image id to the corrected camera model. The
	// orchestrator persists the entries belonging to new images.
	Adjusted map[string]*rpc.Model
	// Tracks is the number of triangulated feature tracks.
	Tracks int
	// Iterations is the solver iteration count.
	Iterations int
	// ErrBefore and ErrAfter are the solver's own mean reprojection errors.
	// In sequential mode ErrBefore is not meaningful (anchor models are not
	// the original ones) and is recomputed by the validator.
	ErrBefore float64
	ErrAfter  float64
	// FeatureSecs is the time spent building feature tracks.
	FeatureSecs float64
	// Observations is the track observation table, camera order matching
	// Input.Images().
	Observations *validate.Table
	// TriPairs are the camera pairs the core used for triangulation.
	TriPairs []pairs.Pair
}

// Pipeline is the opaque bundle-adjustment optimization core. Implementations
// receive a fully prepared input and return adjusted models plus residual
// statistics; everything numerical happens behind this boundary.
type Pipeline interface {
	Run(ctx context.Context, in *Input) (*Result, error)
}
