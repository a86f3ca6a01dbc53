package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/buildpop/internal/model"
)

// CentroidExtractor computes footprint centroids in an equal-area CRS and
// reports them as geographic coordinates.
type CentroidExtractor struct {
	equalArea Projection
}

// NewCentroidExtractor builds an extractor for the given equal-area EPSG code.
func NewCentroidExtractor(equalAreaEPSG int) (*CentroidExtractor, error) {
	p, err := ProjectionFor(equalAreaEPSG)
	if err != nil {
		return nil, err
	}
	return &CentroidExtractor{equalArea: p}, nil
}

// EPSG returns the equal-area CRS used for centroid computation.
func (e *CentroidExtractor) EPSG() int {
	return e.equalArea.EPSG()
}

// Centroid returns the area centroid of g, which is expressed in crs.
func (e *CentroidExtractor) Centroid(g geom.T, crs int) (model.Coord, error) {
	if err := checkGeometry(g); err != nil {
		return model.Coord{}, err
	}

	// Points carry their own location.
	if pt, ok := g.(*geom.Point); ok {
		lonlat, err := Reconcile(pt, crs)
		if err != nil {
			return model.Coord{}, err
		}
		c := lonlat.FlatCoords()
		return finiteCoord(c[0], c[1])
	}

	var projected geom.T
	switch {
	case crs == e.equalArea.EPSG():
		projected = g
	case Geographic(crs):
		var err error
		projected, err = ToProjected(g, e.equalArea)
		if err != nil {
			return model.Coord{}, err
		}
	default:
		geographic, err := Reconcile(g, crs)
		if err != nil {
			return model.Coord{}, err
		}
		projected, err = ToProjected(geographic, e.equalArea)
		if err != nil {
			return model.Coord{}, err
		}
	}

	if area := planarArea(projected); area <= 0 || math.IsNaN(area) {
		return model.Coord{}, &model.GeometryError{Reason: "zero-area polygon has no centroid"}
	}

	c, err := xy.Centroid(projected)
	if err != nil {
		return model.Coord{}, &model.GeometryError{Reason: eris.Wrap(err, "centroid").Error()}
	}
	lon, lat := e.equalArea.Inverse(c[0], c[1])
	return finiteCoord(lon, lat)
}

// Apply returns copies of buildings with Centroid set. Buildings that already
// carry a centroid keep it. The first failing record aborts the batch.
func (e *CentroidExtractor) Apply(buildings []model.Building) ([]model.Building, error) {
	out := make([]model.Building, len(buildings))
	for i, b := range buildings {
		nb := b.Clone()
		if nb.Centroid == nil {
			c, err := e.Centroid(b.Footprint, b.CRS)
			if err != nil {
				var ge *model.GeometryError
				if errors.As(err, &ge) && ge.ID == "" {
					ge.ID = b.ID
				}
				return nil, err
			}
			nb.Centroid = &c
		}
		out[i] = nb
	}
	return out, nil
}

// checkGeometry rejects nil and empty geometries.
func checkGeometry(g geom.T) error {
	if g == nil {
		return &model.GeometryError{Reason: "nil geometry"}
	}
	if g.Empty() || len(g.FlatCoords()) < 2 {
		return &model.GeometryError{Reason: fmt.Sprintf("empty %T", g)}
	}
	return nil
}

// planarArea sums the unsigned shell areas of g. Ring orientation varies by
// source (shapefiles wind shells clockwise) so signed area is not usable here.
func planarArea(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return shellArea(t)
	case *geom.MultiPolygon:
		var sum float64
		for i := 0; i < t.NumPolygons(); i++ {
			sum += shellArea(t.Polygon(i))
		}
		return sum
	}
	return 0
}

func shellArea(p *geom.Polygon) float64 {
	if p.NumLinearRings() == 0 {
		return 0
	}
	return math.Abs(p.LinearRing(0).Area())
}

func finiteCoord(lon, lat float64) (model.Coord, error) {
	c := model.Coord{Lon: lon, Lat: lat}
	if !c.Valid() {
		return model.Coord{}, &model.GeometryError{Reason: fmt.Sprintf("centroid (%g, %g) out of range", lon, lat)}
	}
	return c, nil
}
