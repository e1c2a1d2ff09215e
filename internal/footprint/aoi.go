package footprint

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// AOI is the scene's area of interest: a lon/lat polygon with a center point.
type AOI struct {
	Polygon *geom.Polygon
	Center  geom.Coord
}

// FromFootprints derives the AOI covering all footprints: the envelope of
// their union, as a closed rectangle ring. The center is the mean of the
// corners.
func FromFootprints(fps []Footprint) (*AOI, error) {
	if len(fps) == 0 {
		return nil, eris.New("footprint: no footprints to derive an aoi from")
	}

	bounds := geom.NewBounds(geom.XY)
	for _, fp := range fps {
		for _, c := range fp.Ring {
			bounds.Extend(geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}))
		}
	}

	minX, minY := bounds.Min(0), bounds.Min(1)
	maxX, maxY := bounds.Max(0), bounds.Max(1)

	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, []int{10})

	return &AOI{
		Polygon: poly,
		Center:  centerOf(poly),
	}, nil
}

// centerOf averages the ring vertices; the closing vertex does not count
// twice.
func centerOf(poly *geom.Polygon) geom.Coord {
	ring := poly.Coords()[0]
	if len(ring) > 1 {
		first, last := ring[0], ring[len(ring)-1]
		if first[0] == last[0] && first[1] == last[1] {
			ring = ring[:len(ring)-1]
		}
	}
	var lon, lat float64
	for _, c := range ring {
		lon += c[0]
		lat += c[1]
	}
	n := float64(len(ring))
	return geom.Coord{lon / n, lat / n}
}

// Save writes the AOI polygon as a GeoJSON geometry.
func (a *AOI) Save(path string) error {
	data, err := geojson.Marshal(a.Polygon)
	if err != nil {
		return eris.Wrap(err, "footprint: marshal aoi")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "footprint: write %s", path)
}

// LoadAOI reads a GeoJSON polygon and recomputes its center.
func LoadAOI(path string) (*AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "footprint: read %s", path)
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrapf(err, "footprint: parse %s", path)
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("footprint: %s is not a polygon", path)
	}
	if len(poly.Coords()) == 0 || len(poly.Coords()[0]) < 4 {
		return nil, eris.Errorf("footprint: %s polygon ring too short", path)
	}
	return &AOI{Polygon: poly, Center: centerOf(poly)}, nil
}
