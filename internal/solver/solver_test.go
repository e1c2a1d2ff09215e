package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionlai1989/sat-bundleadjust/internal/config"
	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
	"github.com/lionlai1989/sat-bundleadjust/internal/scene"
)

// writeFakeSolver writes a shell script that snapshots the manifest it was
// given and answers with a canned result document.
func writeFakeSolver(t *testing.T, dir string, result string) (command, manifestCopy string) {
	t.Helper()

	manifestCopy = filepath.Join(dir, "seen-manifest.json")
	resultFixture := filepath.Join(dir, "canned-result.json")
	require.NoError(t, os.WriteFile(resultFixture, []byte(result), 0o644))

	command = filepath.Join(dir, "fake-solver")
	script := fmt.Sprintf("#!/bin/sh\ncp \"$2\" %q\ncp %q \"$4\"\n", manifestCopy, resultFixture)
	require.NoError(t, os.WriteFile(command, []byte(script), 0o755))
	return command, manifestCopy
}

func testInput(t *testing.T, outputDir string) *scene.Input {
	t.Helper()
	m := &rpc.Model{RowOffset: 500, ColOffset: 500, RowScale: 500, ColScale: 500,
		LatScale: 0.1, LonScale: 0.1, AltScale: 500}
	return &scene.Input{
		Anchors: []scene.Image{{ID: "anchor_1", Path: "/data/anchor_1.tif", Model: m, Adjusted: true}},
		New:     []scene.Image{{ID: "new_1", Path: "/data/new_1.tif", Model: m}},
		Config: scene.AdjustConfig{
			CamModel:         "rpc",
			CorrectionParams: []string{"rotation"},
			RefCamWeight:     1,
		},
		InputDir:  "/data",
		OutputDir: outputDir,
	}
}

func TestRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	canned := `{
		"adjusted": {"new_1": {"row_offset": 507.5}},
		"tracks": 42,
		"iterations": 12,
		"err_before": 3.0,
		"err_after": 0.5,
		"observations": [
			{"cam": 0, "pt": 0, "col": 10, "row": 20},
			{"cam": 1, "pt": 0, "col": 11, "row": 21}
		],
		"tri_pairs": [{"a": 0, "b": 1}]
	}`
	command, manifestCopy := writeFakeSolver(t, dir, canned)

	s := New(config.SolverConfig{Command: command})
	in := testInput(t, filepath.Join(dir, "out"))

	res, err := s.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 42, res.Tracks)
	assert.Equal(t, 12, res.Iterations)
	assert.InDelta(t, 3.0, res.ErrBefore, 1e-12)
	require.Contains(t, res.Adjusted, "new_1")
	assert.InDelta(t, 507.5, res.Adjusted["new_1"].RowOffset, 1e-12)

	require.NotNil(t, res.Observations)
	assert.Equal(t, 2, res.Observations.Cameras())
	assert.Equal(t, 1, res.Observations.Points())
	col, row, ok := res.Observations.At(1, 0)
	require.True(t, ok)
	assert.Equal(t, 11.0, col)
	assert.Equal(t, 21.0, row)
	require.Len(t, res.TriPairs, 1)

	// the manifest carried both cameras with their roles
	raw, err := os.ReadFile(manifestCopy)
	require.NoError(t, err)
	var m manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Len(t, m.Images, 2)
	assert.Equal(t, "anchor_1", m.Images[0].ID)
	assert.True(t, m.Images[0].Adjusted)
	assert.Equal(t, "new_1", m.Images[1].ID)
	assert.False(t, m.Images[1].Adjusted)
	assert.Equal(t, "rpc", m.Config.CamModel)
}

func TestRunCommandFails(t *testing.T) {
	dir := t.TempDir()
	command := filepath.Join(dir, "broken-solver")
	script := "#!/bin/sh\necho 'numerical blowup' >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(command, []byte(script), 0o755))

	s := New(config.SolverConfig{Command: command})
	_, err := s.Run(context.Background(), testInput(t, filepath.Join(dir, "out")))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "numerical blowup")
}

func TestRunNoCommand(t *testing.T) {
	s := New(config.SolverConfig{})
	_, err := s.Run(context.Background(), testInput(t, t.TempDir()))
	assert.ErrorContains(t, err, "no command configured")
}

func TestObservationTableBounds(t *testing.T) {
	_, err := observationTable([]observation{{Cam: 5, Pt: 0}}, 2)
	assert.ErrorContains(t, err, "out of range")

	_, err = observationTable([]observation{{Cam: 0, Pt: -1}}, 2)
	assert.ErrorContains(t, err, "negative track point")
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "(no stderr)", stderrTail("  \n"))
	assert.Equal(t, "a | b", stderrTail("a\nb"))
	assert.Equal(t, "3 | 4 | 5 | 6 | 7", stderrTail("1\n2\n3\n4\n5\n6\n7"))
}

func TestRunRetriesAfterSignalDeath(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = old })

	dir := t.TempDir()
	canned := `{"adjusted": {"new_1": {"row_offset": 1}}, "tracks": 1}`
	resultFixture := filepath.Join(dir, "canned-result.json")
	require.NoError(t, os.WriteFile(resultFixture, []byte(canned), 0o644))

	// dies to SIGKILL on the first call, succeeds on the second
	marker := filepath.Join(dir, "first-attempt-done")
	command := filepath.Join(dir, "flaky-solver")
	script := fmt.Sprintf("#!/bin/sh\nif [ ! -f %q ]; then touch %q; kill -9 $$; fi\ncp %q \"$4\"\n",
		marker, marker, resultFixture)
	require.NoError(t, os.WriteFile(command, []byte(script), 0o755))

	s := New(config.SolverConfig{Command: command, MaxAttempts: 2})
	res, err := s.Run(context.Background(), testInput(t, filepath.Join(dir, "out")))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Tracks)
}

func TestRunDoesNotRetryCleanExit(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "calls")
	command := filepath.Join(dir, "failing-solver")
	script := fmt.Sprintf("#!/bin/sh\necho x >> %q\necho 'bad input' >&2\nexit 1\n", counter)
	require.NoError(t, os.WriteFile(command, []byte(script), 0o755))

	s := New(config.SolverConfig{Command: command, MaxAttempts: 3})
	_, err := s.Run(context.Background(), testInput(t, filepath.Join(dir, "out")))

	require.Error(t, err)
	raw, readErr := os.ReadFile(counter)
	require.NoError(t, readErr)
	assert.Equal(t, "x\n", string(raw), "a clean nonzero exit must not be retried")
}
