package rpc

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Stage distinguishes the two kinds of persisted camera models.
type Stage string

const (
	// StageInitial holds the models as delivered with the imagery.
	StageInitial Stage = "initial"
	// StageAdjusted holds the models produced by bundle adjustment.
	StageAdjusted Stage = "adjusted"
)

const (
	initialDir  = "rpcs_init"
	adjustedDir = "rpcs_adj"
	initialExt  = ".rpc"
	adjustedExt = ".rpc_adj"
)

// ErrMissingModel marks a required camera model file that is absent on disk.
// A load that hits it is fatal for the whole orchestration call.
var ErrMissingModel = eris.New("rpc: camera model file missing")

// Store persists camera models under a scene output directory, keyed by image
// identifier and stage. Initial models live in rpcs_init/, adjusted models in
// <strategyDir>/rpcs_adj/. The store never caches: every Load re-reads the
// files, which is what makes interrupted runs resumable across processes.
type Store struct {
	root        string
	strategyDir string
}

// NewStore returns a store rooted at the scene output directory. strategyDir
// is the per-strategy subdirectory that owns the adjusted models.
func NewStore(root, strategyDir string) *Store {
	return &Store{root: root, strategyDir: strategyDir}
}

// Dir returns the directory holding models of the given stage.
func (s *Store) Dir(stage Stage) string {
	if stage == StageAdjusted {
		return filepath.Join(s.root, s.strategyDir, adjustedDir)
	}
	return filepath.Join(s.root, initialDir)
}

// Path returns the file path for one image's model at the given stage.
func (s *Store) Path(id string, stage Stage) string {
	ext := initialExt
	if stage == StageAdjusted {
		ext = adjustedExt
	}
	return filepath.Join(s.Dir(stage), id+ext)
}

// Save persists one model. The write goes to a temporary file in the target
// directory first and is renamed into place, so a crash mid-write can never
// be misread as a completed model by a later run.
func (s *Store) Save(id string, m *Model, stage Stage) error {
	dir := s.Dir(stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "rpc: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, id+".tmp*")
	if err != nil {
		return eris.Wrapf(err, "rpc: temp file for %s", id)
	}
	defer os.Remove(tmp.Name())

	if err := WriteText(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "rpc: close temp file for %s", id)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), s.Path(id, stage)), "rpc: rename model %s", id)
}

// Load reads the models for each identifier, in order. Any absent file fails
// the whole call with ErrMissingModel: partial camera data cannot be safely
// optimized.
func (s *Store) Load(ids []string, stage Stage) ([]*Model, error) {
	models := make([]*Model, 0, len(ids))
	for _, id := range ids {
		m, err := s.LoadOne(id, stage)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// LoadOne reads a single model.
func (s *Store) LoadOne(id string, stage Stage) (*Model, error) {
	path := s.Path(id, stage)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrMissingModel, "%s", path)
		}
		return nil, eris.Wrapf(err, "rpc: open %s", path)
	}
	defer f.Close()

	m, err := ReadText(f)
	if err != nil {
		return nil, eris.Wrapf(err, "rpc: load %s", path)
	}
	return m, nil
}

// AdjustedIDs lists the image identifiers that have an adjusted model on
// disk. A missing adjusted directory is simply an empty result, not an error.
func (s *Store) AdjustedIDs() ([]string, error) {
	entries, err := os.ReadDir(s.Dir(StageAdjusted))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "rpc: list adjusted models")
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, adjustedExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, adjustedExt))
	}
	return ids, nil
}
