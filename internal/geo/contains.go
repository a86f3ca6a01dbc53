package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Contains reports whether pt lies inside g: within an outer ring and outside
// that polygon's holes. Points on a ring boundary count as inside.
func Contains(g geom.T, pt geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, pt)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), pt) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	if !xy.IsPointInRing(layout, pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		hole := p.LinearRing(i).FlatCoords()
		if xy.IsPointInRing(layout, pt, hole) && !onRing(layout, pt, hole) {
			return false
		}
	}
	return true
}

// onRing reports whether pt lies exactly on a segment of the ring.
func onRing(layout geom.Layout, pt geom.Coord, ring []float64) bool {
	stride := layout.Stride()
	for i := 0; i+2*stride <= len(ring); i += stride {
		x1, y1 := ring[i], ring[i+1]
		x2, y2 := ring[i+stride], ring[i+stride+1]
		cross := (x2-x1)*(pt[1]-y1) - (y2-y1)*(pt[0]-x1)
		if cross != 0 {
			continue
		}
		if pt[0] >= min(x1, x2) && pt[0] <= max(x1, x2) && pt[1] >= min(y1, y2) && pt[1] <= max(y1, y2) {
			return true
		}
	}
	return false
}
