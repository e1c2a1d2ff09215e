package validate

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/lionlai1989/sat-bundleadjust/internal/pairs"
	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
)

// Result holds the mean absolute reprojection error, in pixels, under the
// initial and the adjusted camera models.
type Result struct {
	Before float64
	After  float64
}

// Compare triangulates every point of the observation table twice, once under
// each camera set, reprojects the points through every observing camera, and
// returns the mean reprojection error for both sets. tri lists the camera
// pairs preferred for triangulation; points not covered by any listed pair
// fall back to their first two observing cameras.
func Compare(table *Table, before, after []*rpc.Model, tri []pairs.Pair) (Result, error) {
	if len(before) != table.Cameras() || len(after) != table.Cameras() {
		return Result{}, eris.Errorf("validate: %d cameras in table, %d before and %d after models",
			table.Cameras(), len(before), len(after))
	}

	errBefore := meanAccumulator{}
	errAfter := meanAccumulator{}

	triangulated := 0
	for pt := 0; pt < table.Points(); pt++ {
		a, b, ok := triangulationPair(table, pt, tri)
		if !ok {
			continue
		}

		p3Before, okB := triangulate(table, before, pt, a, b)
		p3After, okA := triangulate(table, after, pt, a, b)
		if !okB || !okA {
			continue
		}
		triangulated++

		for cam := 0; cam < table.Cameras(); cam++ {
			col, row, ok := table.At(cam, pt)
			if !ok {
				continue
			}
			errBefore.add(reprojError(before[cam], p3Before, col, row))
			errAfter.add(reprojError(after[cam], p3After, col, row))
		}
	}

	if triangulated == 0 {
		return Result{}, eris.New("validate: no point could be triangulated")
	}
	return Result{Before: errBefore.mean(), After: errAfter.mean()}, nil
}

// triangulationPair picks the camera pair for a point: the first listed pair
// whose cameras both observe the point, else the first two observing cameras.
func triangulationPair(table *Table, pt int, tri []pairs.Pair) (a, b int, ok bool) {
	for _, p := range tri {
		if _, _, okA := table.At(p.A, pt); !okA {
			continue
		}
		if _, _, okB := table.At(p.B, pt); !okB {
			continue
		}
		return p.A, p.B, true
	}

	first := -1
	for cam := 0; cam < table.Cameras(); cam++ {
		if _, _, seen := table.At(cam, pt); !seen {
			continue
		}
		if first < 0 {
			first = cam
			continue
		}
		return first, cam, true
	}
	return 0, 0, false
}

// point3 is a geographic 3D point.
type point3 struct {
	lon, lat, alt float64
}

// triangulate intersects the viewing rays of point pt in cameras a and b by a
// golden-section search over altitude: at the true ground altitude the two
// localizations coincide. The result is their midpoint at the best altitude.
func triangulate(table *Table, models []*rpc.Model, pt, a, b int) (point3, bool) {
	colA, rowA, _ := table.At(a, pt)
	colB, rowB, _ := table.At(b, pt)
	mA, mB := models[a], models[b]

	lo := mA.AltOffset - mA.AltScale
	hi := mA.AltOffset + mA.AltScale

	sep := func(h float64) (float64, point3, bool) {
		lonA, latA, errA := mA.Localization(colA, rowA, h)
		lonB, latB, errB := mB.Localization(colB, rowB, h)
		if errA != nil || errB != nil {
			return 0, point3{}, false
		}
		dLon, dLat := lonA-lonB, latA-latB
		mid := point3{lon: (lonA + lonB) / 2, lat: (latA + latB) / 2, alt: h}
		return dLon*dLon + dLat*dLat, mid, true
	}

	const phi = 0.6180339887498949
	x1 := hi - phi*(hi-lo)
	x2 := lo + phi*(hi-lo)
	f1, p1, ok1 := sep(x1)
	f2, p2, ok2 := sep(x2)
	if !ok1 || !ok2 {
		return point3{}, false
	}

	best, bestPt := f1, p1
	if f2 < best {
		best, bestPt = f2, p2
	}
	for i := 0; i < 80 && hi-lo > 1e-6; i++ {
		if f1 < f2 {
			hi, x2, f2, p2 = x2, x1, f1, p1
			x1 = hi - phi*(hi-lo)
			var ok bool
			if f1, p1, ok = sep(x1); !ok {
				return point3{}, false
			}
		} else {
			lo, x1, f1, p1 = x1, x2, f2, p2
			x2 = lo + phi*(hi-lo)
			var ok bool
			if f2, p2, ok = sep(x2); !ok {
				return point3{}, false
			}
		}
		if f1 < best {
			best, bestPt = f1, p1
		}
		if f2 < best {
			best, bestPt = f2, p2
		}
	}
	return bestPt, true
}

// reprojError is the pixel distance between an observation and the projection
// of the triangulated point.
func reprojError(m *rpc.Model, p point3, col, row float64) float64 {
	pc, pr := m.Projection(p.lon, p.lat, p.alt)
	return math.Hypot(pc-col, pr-row)
}

type meanAccumulator struct {
	sum float64
	n   int
}

func (m *meanAccumulator) add(v float64) {
	m.sum += v
	m.n++
}

func (m *meanAccumulator) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}
