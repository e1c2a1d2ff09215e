package rpc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testModel returns a well-conditioned synthetic RPC: to first order it maps
// lon/lat linearly to col/row around the offsets, which keeps projection and
// localization numerically tame in tests.
func testModel() *Model {
	m := &Model{
		RowOffset: 10000, ColOffset: 10000,
		LatOffset: 44.0, LonOffset: 5.0, AltOffset: 800,
		RowScale: 10000, ColScale: 10000,
		LatScale: 0.1, LonScale: 0.1, AltScale: 1000,
	}
	// col tracks normalized lon, row tracks normalized lat, with small
	// cross terms so the Jacobian is not exactly diagonal.
	m.ColNum[1] = 1.0
	m.ColNum[2] = 0.02
	m.ColNum[3] = -0.01
	m.ColDen[0] = 1.0
	m.RowNum[2] = 1.0
	m.RowNum[1] = 0.015
	m.RowNum[3] = 0.02
	m.RowDen[0] = 1.0
	return m
}

func TestProjectionAtOffsets(t *testing.T) {
	m := testModel()

	col, row := m.Projection(m.LonOffset, m.LatOffset, m.AltOffset)

	assert.InDelta(t, m.ColOffset, col, 1e-9)
	assert.InDelta(t, m.RowOffset, row, 1e-9)
}

func TestLocalizationInvertsProjection(t *testing.T) {
	m := testModel()

	lon0, lat0, alt := 5.03, 43.98, 650.0
	col, row := m.Projection(lon0, lat0, alt)

	lon, lat, err := m.Localization(col, row, alt)
	require.NoError(t, err)

	assert.InDelta(t, lon0, lon, 1e-8)
	assert.InDelta(t, lat0, lat, 1e-8)
}

func TestLocalizationSingular(t *testing.T) {
	// A degenerate model whose projection is constant has a singular
	// Jacobian everywhere.
	m := &Model{
		LatScale: 1, LonScale: 1, AltScale: 1,
		RowScale: 1, ColScale: 1,
	}
	m.RowDen[0] = 1
	m.ColDen[0] = 1
	m.RowNum[0] = 5
	m.ColNum[0] = 5

	_, _, err := m.Localization(100, 100, 0)

	assert.Error(t, err)
}

func TestEqualTolerance(t *testing.T) {
	a := testModel()
	b := testModel()
	b.RowNum[7] += 1e-12

	assert.True(t, a.Equal(b, 1e-9))
	assert.False(t, a.Equal(b, 1e-15))

	b.LatOffset += 1
	assert.False(t, a.Equal(b, 1e-9))
}

func TestApplyPolyCubicTerms(t *testing.T) {
	var p [20]float64
	p[19] = 2.0 // alt^3

	got := applyPoly(&p, 0, 0, 3)

	assert.InDelta(t, 54.0, got, 1e-12)
	assert.False(t, math.IsNaN(got))
}
