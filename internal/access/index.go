package access

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// Point is a building centroid tagged with its identifiers.
type Point struct {
	ID    string
	Tract string
	Coord model.Coord
}

// indexed adapts a Point for the quadtree.
type indexed struct {
	pos int
	pt  Point
}

func (p indexed) Point() orb.Point {
	return orb.Point{p.pt.Coord.Lon, p.pt.Coord.Lat}
}

// Reach is the result of the indexed form: only pairs with access, plus the
// number of reachable B points for every A point. IDs and Counts follow the
// order of the A input, so repeated IDs keep separate counts.
type Reach struct {
	Pairs  []model.AccessPair
	IDs    []string
	Counts []int
}

// HasAccess reports whether the i-th A point reaches any B point.
func (r *Reach) HasAccess(i int) bool {
	return r.Counts[i] > 0
}

// Within finds, for every point in a, the points in b within the access
// threshold. A quadtree over b narrows candidates to a degree window before
// the haversine check, so only accessible pairs are materialized.
func Within(a, b []Point, opts Options) (*Reach, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	reach := &Reach{IDs: make([]string, len(a)), Counts: make([]int, len(a))}
	for i, p := range a {
		reach.IDs[i] = p.ID
	}
	if len(a) == 0 || len(b) == 0 {
		return reach, nil
	}

	var mp orb.MultiPoint
	for _, q := range b {
		mp = append(mp, orb.Point{q.Coord.Lon, q.Coord.Lat})
	}
	qt := quadtree.New(mp.Bound())
	for i, q := range b {
		if err := qt.Add(indexed{pos: i, pt: q}); err != nil {
			return nil, eris.Wrapf(err, "access: index point %s", q.ID)
		}
	}

	var buf []orb.Pointer
	for ia, p := range a {
		dLon, dLat := geo.DegreeWindow(p.Coord.Lat, opts.ThresholdMiles, opts.RadiusMiles)
		window := orb.Bound{
			Min: orb.Point{p.Coord.Lon - dLon, p.Coord.Lat - dLat},
			Max: orb.Point{p.Coord.Lon + dLon, p.Coord.Lat + dLat},
		}
		buf = qt.InBound(buf[:0], window)

		hits := make([]indexed, 0, len(buf))
		for _, ptr := range buf {
			hits = append(hits, ptr.(indexed))
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

		for _, h := range hits {
			d := geo.Haversine(p.Coord, h.pt.Coord, opts.RadiusMiles)
			if Flag(d, opts.ThresholdMiles) == 0 {
				continue
			}
			reach.Counts[ia]++
			reach.Pairs = append(reach.Pairs, model.AccessPair{
				AID:           p.ID,
				BID:           h.pt.ID,
				ATract:        p.Tract,
				BTract:        h.pt.Tract,
				A:             p.Coord,
				B:             h.pt.Coord,
				DistanceMiles: d,
				Access:        1,
			})
		}
	}

	zap.L().Debug("indexed access query",
		zap.String("component", "access.index"),
		zap.Int("a", len(a)),
		zap.Int("b", len(b)),
		zap.Int("pairs", len(reach.Pairs)),
	)
	return reach, nil
}
