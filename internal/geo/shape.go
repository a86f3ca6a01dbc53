package geo

import (
	"fmt"
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/buildpop/internal/model"
)

// FromShape converts a shapefile record to a go-geom geometry. Polygons come
// back as MultiPolygons. Shapefiles wind outer rings clockwise and holes
// counter-clockwise. Each hole is attached to the smallest outer ring that
// contains it, or to the outer ring before it when none does. A null shape
// yields nil.
func FromShape(s shp.Shape) (geom.T, error) {
	switch t := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y}), nil
	case *shp.Polygon:
		return ringsToMultiPolygon(t.Parts, t.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(t.Parts, t.Points)
	case *shp.PolygonM:
		return ringsToMultiPolygon(t.Parts, t.Points)
	}
	return nil, &model.GeometryError{Reason: fmt.Sprintf("unsupported shape type %T", s)}
}

func ringsToMultiPolygon(parts []int32, points []shp.Point) (geom.T, error) {
	if len(parts) == 0 || len(points) == 0 {
		return nil, nil
	}

	type shell struct {
		rings [][]float64
		area  float64
	}
	var (
		shells []*shell
		holes  [][]float64
		prev   []int // shell preceding each hole
	)
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 4 {
			return nil, &model.GeometryError{Reason: fmt.Sprintf("ring %d has %d points, need at least 4", i, end-start)}
		}

		ring := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			ring = append(ring, p.X, p.Y)
		}

		if a := signedArea(ring); a > 0 && len(shells) > 0 {
			holes = append(holes, ring)
			prev = append(prev, len(shells)-1)
		} else {
			shells = append(shells, &shell{rings: [][]float64{ring}, area: math.Abs(a)})
		}
	}

	// A hole belongs to the smallest shell that contains it.
	for i, h := range holes {
		owner := -1
		first := geom.Coord{h[0], h[1]}
		for j, sh := range shells {
			if !xy.IsPointInRing(geom.XY, first, sh.rings[0]) {
				continue
			}
			if owner < 0 || sh.area < shells[owner].area {
				owner = j
			}
		}
		if owner < 0 {
			owner = prev[i]
		}
		shells[owner].rings = append(shells[owner].rings, h)
	}

	var (
		flat  []float64
		endss [][]int
	)
	for _, sh := range shells {
		var ends []int
		for _, r := range sh.rings {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss), nil
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []float64) float64 {
	var sum float64
	for i := 0; i+3 < len(ring); i += 2 {
		sum += ring[i]*ring[i+3] - ring[i+2]*ring[i+1]
	}
	return sum / 2
}

// ToShape converts a Polygon or MultiPolygon into a shapefile polygon with
// clockwise outer rings and counter-clockwise holes.
func ToShape(g geom.T) (*shp.Polygon, error) {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = append(polys, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return nil, &model.GeometryError{Reason: fmt.Sprintf("cannot write %T as a shapefile polygon", g)}
	}

	var parts [][]shp.Point
	for _, p := range polys {
		for r := 0; r < p.NumLinearRings(); r++ {
			flat := p.LinearRing(r).FlatCoords()
			stride := p.Stride()
			ring := make([]shp.Point, 0, len(flat)/stride)
			for i := 0; i+1 < len(flat); i += stride {
				ring = append(ring, shp.Point{X: flat[i], Y: flat[i+1]})
			}
			ccw := signedArea(xyOnly(flat, stride)) > 0
			if (r == 0 && ccw) || (r > 0 && !ccw) {
				reverse(ring)
			}
			parts = append(parts, ring)
		}
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly, nil
}

func xyOnly(flat []float64, stride int) []float64 {
	if stride == 2 {
		return flat
	}
	out := make([]float64, 0, 2*len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	return out
}

func reverse(pts []shp.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
