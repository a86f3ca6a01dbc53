package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/buildpop/internal/model"
)

// Transform applies fn to every XY pair of g and returns a new geometry of
// the same type. Extra ordinates (Z, M) are copied unchanged.
func Transform(g geom.T, fn func(x, y float64) (float64, float64)) (geom.T, error) {
	if g == nil {
		return nil, &model.GeometryError{Reason: "nil geometry"}
	}

	stride := g.Stride()
	src := g.FlatCoords()
	flat := make([]float64, len(src))
	copy(flat, src)
	for i := 0; i+1 < len(flat); i += stride {
		x, y := fn(flat[i], flat[i+1])
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return nil, &model.GeometryError{Reason: fmt.Sprintf("coordinate (%g, %g) does not reproject", flat[i], flat[i+1])}
		}
		flat[i], flat[i+1] = x, y
	}

	layout := g.Layout()
	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(layout, flat), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(layout, flat), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(layout, flat), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(layout, flat, t.Ends()), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(layout, flat, t.Endss()), nil
	}
	return nil, &model.GeometryError{Reason: fmt.Sprintf("unsupported geometry type %T", g)}
}

// ToProjected reprojects a geographic geometry into p.
func ToProjected(g geom.T, p Projection) (geom.T, error) {
	return Transform(g, p.Forward)
}

// ToGeographic reprojects a geometry in p back to geographic degrees.
func ToGeographic(g geom.T, p Projection) (geom.T, error) {
	return Transform(g, p.Inverse)
}

// Reconcile returns g expressed in a geographic CRS. Geographic inputs are
// returned unchanged; supported projected inputs are inverse-projected; any
// other CRS yields a ConfigurationError.
func Reconcile(g geom.T, epsg int) (geom.T, error) {
	if Geographic(epsg) {
		return g, nil
	}
	p, err := ProjectionFor(epsg)
	if err != nil {
		return nil, &model.ConfigurationError{
			Setting: "crs",
			Reason:  fmt.Sprintf("cannot reconcile EPSG:%d with EPSG:%d", epsg, model.EPSGWGS84),
		}
	}
	return ToGeographic(g, p)
}
