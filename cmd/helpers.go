package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/lionlai1989/sat-bundleadjust/internal/scene"
	"github.com/lionlai1989/sat-bundleadjust/internal/solver"
	"github.com/lionlai1989/sat-bundleadjust/internal/store"
)

// statsDBName is the run bookkeeping database, kept next to the adjusted
// models.
const statsDBName = "runs.db"

// initStore opens and migrates the run database under the output directory.
func initStore(ctx context.Context) (*store.Store, error) {
	if err := os.MkdirAll(cfg.Scene.OutputDir, 0o755); err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(cfg.Scene.OutputDir, statsDBName))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initScene loads the scene with the exec solver and the run database wired
// in. The caller owns the returned store.
func initScene(ctx context.Context) (*scene.Scene, *store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := scene.Load(ctx, cfg.Scene, solver.New(cfg.Solver), st, os.Stdout)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}
	return s, st, nil
}
