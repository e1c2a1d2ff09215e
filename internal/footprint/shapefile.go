package footprint

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// ExportShapefile writes the footprints as a polygon shapefile with one
// IMAGE_ID attribute per record, for inspection in GIS tools.
func ExportShapefile(path string, fps []Footprint) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "footprint: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{shp.StringField("IMAGE_ID", 64)})

	for i, fp := range fps {
		points := make([]shp.Point, 0, len(fp.Ring))
		for _, c := range fp.Ring {
			points = append(points, shp.Point{X: c[0], Y: c[1]})
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{points}))
		w.Write(&poly)
		if err := w.WriteAttribute(i, 0, fp.ID); err != nil {
			return eris.Wrapf(err, "footprint: write attribute for %s", fp.ID)
		}
	}
	return nil
}
