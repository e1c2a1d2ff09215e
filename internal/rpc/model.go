// Package rpc implements the Rational Polynomial Coefficient camera model
// used by pushbroom satellite sensors, along with the on-disk model store
// that keeps initial and adjusted models for every image of a scene.
package rpc

import (
	"math"

	"github.com/rotisserie/eris"
)

// Model is an RPC camera model in the standard RPC00B parameterization:
// normalized rational cubic polynomials mapping (lon, lat, alt) to image
// (col, row). Coefficient ordering follows the RPC00B term order.
type Model struct {
	RowOffset float64 `json:"row_offset"`
	ColOffset float64 `json:"col_offset"`
	LatOffset float64 `json:"lat_offset"`
	LonOffset float64 `json:"lon_offset"`
	AltOffset float64 `json:"alt_offset"`

	RowScale float64 `json:"row_scale"`
	ColScale float64 `json:"col_scale"`
	LatScale float64 `json:"lat_scale"`
	LonScale float64 `json:"lon_scale"`
	AltScale float64 `json:"alt_scale"`

	RowNum [20]float64 `json:"row_num"`
	RowDen [20]float64 `json:"row_den"`
	ColNum [20]float64 `json:"col_num"`
	ColDen [20]float64 `json:"col_den"`
}

// applyPoly evaluates a 20-term RPC00B cubic polynomial at the normalized
// coordinates (lon, lat, alt).
func applyPoly(p *[20]float64, lat, lon, alt float64) float64 {
	out := p[0]
	out += p[1]*lon + p[2]*lat + p[3]*alt
	out += p[4]*lon*lat + p[5]*lon*alt + p[6]*lat*alt
	out += p[7]*lon*lon + p[8]*lat*lat + p[9]*alt*alt
	out += p[10] * lat * lon * alt
	out += p[11] * lon * lon * lon
	out += p[12]*lon*lat*lat + p[13]*lon*alt*alt + p[14]*lon*lon*lat
	out += p[15] * lat * lat * lat
	out += p[16]*lat*alt*alt + p[17]*lon*lon*alt + p[18]*lat*lat*alt
	out += p[19] * alt * alt * alt
	return out
}

// Projection maps a geographic point (lon, lat in degrees, alt in meters)
// to image coordinates (col, row) in pixels.
func (m *Model) Projection(lon, lat, alt float64) (col, row float64) {
	nlon := (lon - m.LonOffset) / m.LonScale
	nlat := (lat - m.LatOffset) / m.LatScale
	nalt := (alt - m.AltOffset) / m.AltScale

	col = applyPoly(&m.ColNum, nlat, nlon, nalt) / applyPoly(&m.ColDen, nlat, nlon, nalt)
	row = applyPoly(&m.RowNum, nlat, nlon, nalt) / applyPoly(&m.RowDen, nlat, nlon, nalt)
	return col*m.ColScale + m.ColOffset, row*m.RowScale + m.RowOffset
}

// localization iteration limits.
const (
	locMaxIter = 100
	locTol     = 1e-10
)

// Localization inverts the projection: given image coordinates (col, row)
// and an altitude, it returns the geographic point (lon, lat) whose
// projection at that altitude lands on the pixel. The inversion is iterative
// (Newton steps on a numerical Jacobian, seeded at the model offsets) and
// fails when it does not converge within the iteration budget, which happens
// for pixels far outside the model's validity domain.
func (m *Model) Localization(col, row, alt float64) (lon, lat float64, err error) {
	lon, lat = m.LonOffset, m.LatOffset

	// step used for the numerical Jacobian, in degrees
	eps := 1e-6

	for i := 0; i < locMaxIter; i++ {
		c0, r0 := m.Projection(lon, lat, alt)
		dc, dr := col-c0, row-r0
		if dc*dc+dr*dr < locTol {
			return lon, lat, nil
		}

		cLon, rLon := m.Projection(lon+eps, lat, alt)
		cLat, rLat := m.Projection(lon, lat+eps, alt)

		// 2x2 Jacobian of (col, row) w.r.t. (lon, lat)
		a := (cLon - c0) / eps
		b := (cLat - c0) / eps
		c := (rLon - r0) / eps
		d := (rLat - r0) / eps

		det := a*d - b*c
		if det == 0 || math.IsNaN(det) {
			return 0, 0, eris.Errorf("rpc: localization singular jacobian at (%f, %f)", col, row)
		}

		lon += (d*dc - b*dr) / det
		lat += (-c*dc + a*dr) / det
	}
	return 0, 0, eris.Errorf("rpc: localization did not converge for pixel (%f, %f)", col, row)
}

// Equal reports whether two models match within the given absolute tolerance
// on every offset, scale and coefficient.
func (m *Model) Equal(other *Model, tol float64) bool {
	close := func(a, b float64) bool { return math.Abs(a-b) <= tol }
	if !close(m.RowOffset, other.RowOffset) || !close(m.ColOffset, other.ColOffset) ||
		!close(m.LatOffset, other.LatOffset) || !close(m.LonOffset, other.LonOffset) ||
		!close(m.AltOffset, other.AltOffset) ||
		!close(m.RowScale, other.RowScale) || !close(m.ColScale, other.ColScale) ||
		!close(m.LatScale, other.LatScale) || !close(m.LonScale, other.LonScale) ||
		!close(m.AltScale, other.AltScale) {
		return false
	}
	for i := 0; i < 20; i++ {
		if !close(m.RowNum[i], other.RowNum[i]) || !close(m.RowDen[i], other.RowDen[i]) ||
			!close(m.ColNum[i], other.ColNum[i]) || !close(m.ColDen[i], other.ColDen[i]) {
			return false
		}
	}
	return true
}
