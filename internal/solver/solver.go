// Package solver drives the external bundle-adjustment binary. The
// orchestrator hands it a prepared input set; the solver serializes it to a
// JSON manifest, execs the configured command and reads the adjusted camera
// models back from a result file. Keeping the numerical core out of process
// lets it be swapped or upgraded without touching the orchestration.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionlai1989/sat-bundleadjust/internal/config"
	"github.com/lionlai1989/sat-bundleadjust/internal/pairs"
	"github.com/lionlai1989/sat-bundleadjust/internal/retry"
	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
	"github.com/lionlai1989/sat-bundleadjust/internal/scene"
	"github.com/lionlai1989/sat-bundleadjust/internal/validate"
)

const (
	manifestName = "manifest.json"
	resultName   = "result.json"
)

// retryBackoff is the base delay between solver attempts, shortened in tests.
var retryBackoff = 5 * time.Second

// Solver is the exec-based scene.Pipeline implementation.
type Solver struct {
	cfg config.SolverConfig
}

var _ scene.Pipeline = (*Solver)(nil)

func New(cfg config.SolverConfig) *Solver {
	return &Solver{cfg: cfg}
}

// manifestImage is one camera in the wire manifest.
type manifestImage struct {
	ID       string     `json:"id"`
	Path     string     `json:"path"`
	RPC      *rpc.Model `json:"rpc"`
	Adjusted bool       `json:"adjusted"`
}

// manifest is the JSON document handed to the solver binary.
type manifest struct {
	Images    []manifestImage    `json:"images"`
	Pairs     []pairs.Pair       `json:"pairs,omitempty"`
	Config    scene.AdjustConfig `json:"config"`
	InputDir  string             `json:"input_dir"`
	OutputDir string             `json:"output_dir"`
}

// observation is one image measurement of a track point. Sparse lists travel
// better than matrices: JSON has no NaN to mark unobserved cells.
type observation struct {
	Cam int     `json:"cam"`
	Pt  int     `json:"pt"`
	Col float64 `json:"col"`
	Row float64 `json:"row"`
}

// result is the JSON document the solver binary writes back.
type result struct {
	Adjusted     map[string]*rpc.Model `json:"adjusted"`
	Tracks       int                   `json:"tracks"`
	Iterations   int                   `json:"iterations"`
	ErrBefore    float64               `json:"err_before"`
	ErrAfter     float64               `json:"err_after"`
	FeatureSecs  float64               `json:"feature_secs"`
	Observations []observation         `json:"observations,omitempty"`
	TriPairs     []pairs.Pair          `json:"tri_pairs,omitempty"`
}

// Run serializes the input, execs the solver binary and decodes its result.
func (s *Solver) Run(ctx context.Context, in *scene.Input) (*scene.Result, error) {
	if s.cfg.Command == "" {
		return nil, eris.New("solver: no command configured")
	}
	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "solver: create output dir")
	}

	manifestPath := filepath.Join(in.OutputDir, manifestName)
	resultPath := filepath.Join(in.OutputDir, resultName)
	if err := writeManifest(manifestPath, in); err != nil {
		return nil, err
	}

	if s.cfg.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSecs)*time.Second)
		defer cancel()
	}

	args := append(append([]string(nil), s.cfg.Args...), "--manifest", manifestPath, "--result", resultPath)

	start := time.Now()
	zap.L().Info("running solver",
		zap.String("command", s.cfg.Command),
		zap.Int("images", len(in.Anchors)+len(in.New)),
	)
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:    s.cfg.MaxAttempts,
		InitialBackoff: retryBackoff,
		JitterFraction: 0.25,
		ShouldRetry:    transientExec,
	}, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return eris.Wrapf(ctx.Err(), "solver: %s", s.cfg.Command)
			}
			return wrapExec(err, eris.Errorf("solver: %s failed: %s", s.cfg.Command, stderrTail(stderr.String())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("solver finished", zap.Duration("elapsed", time.Since(start)))

	return readResult(resultPath, len(in.Anchors)+len(in.New))
}

// execError pairs the raw exec failure with its user-facing wrap so the retry
// policy can still inspect the process state.
type execError struct {
	cause   error
	wrapped error
}

func (e *execError) Error() string { return e.wrapped.Error() }
func (e *execError) Unwrap() error { return e.cause }

func wrapExec(cause, wrapped error) error {
	return &execError{cause: cause, wrapped: wrapped}
}

// transientExec retries only deaths by signal, typically the OOM killer. A
// solver that exits on its own reached a deterministic verdict; rerunning it
// changes nothing.
func transientExec(err error) bool {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return false
	}
	ws, ok := ee.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}

func writeManifest(path string, in *scene.Input) error {
	m := manifest{
		Pairs:     in.Pairs,
		Config:    in.Config,
		InputDir:  in.InputDir,
		OutputDir: in.OutputDir,
	}
	for _, img := range in.Images() {
		m.Images = append(m.Images, manifestImage{
			ID:       img.ID,
			Path:     img.Path,
			RPC:      img.Model,
			Adjusted: img.Adjusted,
		})
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "solver: encode manifest")
	}
	return eris.Wrap(os.WriteFile(path, raw, 0o644), "solver: write manifest")
}

func readResult(path string, cameras int) (*scene.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "solver: read result")
	}
	var r result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "solver: decode result")
	}

	out := &scene.Result{
		Adjusted:    r.Adjusted,
		Tracks:      r.Tracks,
		Iterations:  r.Iterations,
		ErrBefore:   r.ErrBefore,
		ErrAfter:    r.ErrAfter,
		FeatureSecs: r.FeatureSecs,
		TriPairs:    r.TriPairs,
	}
	if len(r.Observations) > 0 {
		table, err := observationTable(r.Observations, cameras)
		if err != nil {
			return nil, err
		}
		out.Observations = table
	}
	return out, nil
}

// observationTable turns the sparse observation list into the validation
// table, sizing the point dimension from the largest index seen.
func observationTable(obs []observation, cameras int) (*validate.Table, error) {
	points := 0
	for _, o := range obs {
		if o.Cam < 0 || o.Cam >= cameras {
			return nil, eris.Errorf("solver: observation camera %d out of range [0, %d)", o.Cam, cameras)
		}
		if o.Pt < 0 {
			return nil, eris.Errorf("solver: negative track point %d", o.Pt)
		}
		if o.Pt+1 > points {
			points = o.Pt + 1
		}
	}
	table := validate.NewTable(cameras, points)
	for _, o := range obs {
		table.Add(o.Cam, o.Pt, o.Col, o.Row)
	}
	return table, nil
}

// stderrTail keeps error messages readable when the binary dumps a long
// trace: only the last few lines say what went wrong.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(no stderr)"
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
