// Package validate recomputes reprojection errors independently of the
// optimization core. In sequential runs the solver's own initial error is not
// meaningful, because anchor cameras already carry adjusted models; an honest
// before/after comparison has to re-triangulate against the true initial
// models.
package validate

// Table is a sparse observation table: the 2D image positions at which each
// 3D point was observed, per camera.
type Table struct {
	cams, pts int
	obs       map[[2]int][2]float64
}

// NewTable returns an empty table for the given camera and point counts.
func NewTable(cameras, points int) *Table {
	return &Table{cams: cameras, pts: points, obs: make(map[[2]int][2]float64)}
}

// Cameras returns the number of cameras.
func (t *Table) Cameras() int { return t.cams }

// Points returns the number of 3D points.
func (t *Table) Points() int { return t.pts }

// Add records the observation of point pt in camera cam at (col, row).
func (t *Table) Add(cam, pt int, col, row float64) {
	t.obs[[2]int{cam, pt}] = [2]float64{col, row}
}

// At returns the observation of point pt in camera cam, if present.
func (t *Table) At(cam, pt int) (col, row float64, ok bool) {
	v, ok := t.obs[[2]int{cam, pt}]
	return v[0], v[1], ok
}

// Observations returns the total number of recorded observations.
func (t *Table) Observations() int { return len(t.obs) }
