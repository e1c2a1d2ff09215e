package rpc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	m := testModel()
	var buf bytes.Buffer

	require.NoError(t, WriteText(&buf, m))
	got, err := ReadText(&buf)
	require.NoError(t, err)

	assert.True(t, m.Equal(got, 1e-9))
}

func TestReadTextIncomplete(t *testing.T) {
	_, err := ReadText(bytes.NewBufferString("LINE_OFF: 12.0 pixels\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestReadTextIgnoresUnknownKeys(t *testing.T) {
	m := testModel()
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, m))
	buf.WriteString("ERR_BIAS: 1.0 meters\nERR_RAND: 0.5 meters\n")

	got, err := ReadText(&buf)
	require.NoError(t, err)
	assert.True(t, m.Equal(got, 1e-9))
}

func TestJSONRoundTrip(t *testing.T) {
	m := testModel()
	var buf bytes.Buffer

	require.NoError(t, WriteJSON(&buf, m))
	got, err := ReadJSON(&buf)
	require.NoError(t, err)

	assert.True(t, m.Equal(got, 1e-12))
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	st := NewStore(t.TempDir(), "ba_sequential")
	m := testModel()

	require.NoError(t, st.Save("img_001", m, StageInitial))
	require.NoError(t, st.Save("img_001", m, StageAdjusted))

	for _, stage := range []Stage{StageInitial, StageAdjusted} {
		got, err := st.Load([]string{"img_001"}, stage)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, m.Equal(got[0], 1e-9))
	}
}

func TestStoreStagePaths(t *testing.T) {
	st := NewStore("/out", "ba_global")

	assert.Equal(t, filepath.Join("/out", "rpcs_init", "a.rpc"), st.Path("a", StageInitial))
	assert.Equal(t, filepath.Join("/out", "ba_global", "rpcs_adj", "a.rpc_adj"), st.Path("a", StageAdjusted))
}

func TestStoreMissingModel(t *testing.T) {
	st := NewStore(t.TempDir(), "ba_sequential")

	_, err := st.Load([]string{"nope"}, StageInitial)

	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingModel))
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	st := NewStore(root, "ba_sequential")

	require.NoError(t, st.Save("img", testModel(), StageInitial))

	entries, err := os.ReadDir(st.Dir(StageInitial))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "img.rpc", entries[0].Name())
}

func TestAdjustedIDs(t *testing.T) {
	st := NewStore(t.TempDir(), "ba_sequential")

	ids, err := st.AdjustedIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, st.Save("b", testModel(), StageAdjusted))
	require.NoError(t, st.Save("a", testModel(), StageAdjusted))

	ids, err = st.AdjustedIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestFromTagValues(t *testing.T) {
	vals := make([]float64, 92)
	for i := range vals {
		vals[i] = float64(i)
	}

	m, err := FromTagValues(vals)
	require.NoError(t, err)

	assert.Equal(t, 2.0, m.RowOffset)
	assert.Equal(t, 3.0, m.ColOffset)
	assert.Equal(t, 6.0, m.AltOffset)
	assert.Equal(t, 11.0, m.AltScale)
	assert.Equal(t, 12.0, m.RowNum[0])
	assert.Equal(t, 51.0, m.RowDen[19])
	assert.Equal(t, 52.0, m.ColNum[0])
	assert.Equal(t, 91.0, m.ColDen[19])

	_, err = FromTagValues(vals[:10])
	assert.ErrorContains(t, err, "want 92")
}
