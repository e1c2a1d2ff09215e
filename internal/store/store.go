// Package store records bundle-adjustment runs and their per-date statistics
// in a SQLite database kept inside the scene output directory. The database
// is reporting state only: resumability is decided from the camera model
// files on disk, never from here.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run is one orchestrator invocation over a scene.
type Run struct {
	ID         string     `json:"id"`
	Strategy   string     `json:"strategy"`
	Dates      int        `json:"dates"`
	Images     int        `json:"images"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ErrBefore  float64    `json:"err_before"`
	ErrAfter   float64    `json:"err_after"`
}

// DateStat is the outcome of adjusting one acquisition date within a run.
type DateStat struct {
	RunID     string  `json:"run_id"`
	DateID    string  `json:"date_id"`
	Images    int     `json:"images"`
	Tracks    int     `json:"tracks"`
	Elapsed   float64 `json:"elapsed_secs"`
	ErrBefore float64 `json:"err_before"`
	ErrAfter  float64 `json:"err_after"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the statistics database at path and
// configures WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	strategy    TEXT NOT NULL,
	dates       INTEGER NOT NULL,
	images      INTEGER NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	err_before  REAL NOT NULL DEFAULT 0,
	err_after   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS date_stats (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	date_id    TEXT NOT NULL,
	images     INTEGER NOT NULL,
	tracks     INTEGER NOT NULL,
	elapsed    REAL NOT NULL,
	err_before REAL NOT NULL,
	err_after  REAL NOT NULL,
	PRIMARY KEY (run_id, date_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy);
CREATE INDEX IF NOT EXISTS idx_date_stats_run_id ON date_stats(run_id);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record and returns it.
func (s *Store) CreateRun(ctx context.Context, strategy string, dates, images int) (*Run, error) {
	r := &Run{
		ID:        uuid.New().String(),
		Strategy:  strategy,
		Dates:     dates,
		Images:    images,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, dates, images, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Strategy, r.Dates, r.Images, r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert run")
	}
	return r, nil
}

// FinishRun marks a run complete with its aggregate errors.
func (s *Store) FinishRun(ctx context.Context, runID string, errBefore, errAfter float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, err_before = ?, err_after = ? WHERE id = ?`,
		time.Now().UTC(), errBefore, errAfter, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "store: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// AddDateStat records one adjusted date of a run.
func (s *Store) AddDateStat(ctx context.Context, st DateStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO date_stats (run_id, date_id, images, tracks, elapsed, err_before, err_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, st.DateID, st.Images, st.Tracks, st.Elapsed, st.ErrBefore, st.ErrAfter,
	)
	return eris.Wrapf(err, "store: insert date stat %s", st.DateID)
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, strategy, dates, images, started_at, finished_at, err_before, err_after
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns runs most recent first, capped at limit (default 50).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy, dates, images, started_at, finished_at, err_before, err_after
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "store: list runs iterate")
}

// ListDateStats returns the per-date statistics of a run in insertion order.
func (s *Store) ListDateStats(ctx context.Context, runID string) ([]DateStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, date_id, images, tracks, elapsed, err_before, err_after
		 FROM date_stats WHERE run_id = ? ORDER BY date_id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list date stats %s", runID)
	}
	defer rows.Close()

	var stats []DateStat
	for rows.Next() {
		var st DateStat
		if err := rows.Scan(&st.RunID, &st.DateID, &st.Images, &st.Tracks, &st.Elapsed, &st.ErrBefore, &st.ErrAfter); err != nil {
			return nil, eris.Wrap(err, "store: scan date stat")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "store: list date stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: %s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Strategy, &r.Dates, &r.Images, &r.StartedAt, &finished, &r.ErrBefore, &r.ErrAfter)
	if err == sql.ErrNoRows {
		return nil, eris.New("store: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
