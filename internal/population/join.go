package population

import (
	"fmt"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// JoinResult is the outcome of locating a building in the tract layer. It is
// either Matched or Unmatched.
type JoinResult interface {
	isJoinResult()
}

// Matched carries the tract whose boundary contains the building.
type Matched struct {
	Tract *model.Tract
}

// Unmatched means no tract boundary contains the building.
type Unmatched struct{}

func (Matched) isJoinResult()   {}
func (Unmatched) isJoinResult() {}

// GEOID returns the matched tract's GEOID, or "" for an unmatched join.
func GEOID(j JoinResult) string {
	if m, ok := j.(Matched); ok && m.Tract != nil {
		return m.Tract.GEOID
	}
	return ""
}

type indexedTract struct {
	tract    *model.Tract
	boundary geom.T
	bounds   *geom.Bounds
}

// TractIndex answers point-in-tract queries. Boundaries are held in
// geographic coordinates and sorted by GEOID so ties resolve to the lowest.
type TractIndex struct {
	entries []indexedTract
}

// NewTractIndex validates tracts and reconciles their boundaries to a
// geographic CRS. defaultEPSG applies to tracts with no CRS set.
func NewTractIndex(tracts []model.Tract, defaultEPSG int) (*TractIndex, error) {
	entries := make([]indexedTract, 0, len(tracts))
	for i := range tracts {
		t := &tracts[i]
		if t.GEOID == "" {
			return nil, &model.SchemaError{
				Source: "tracts",
				Field:  "geoid",
				Reason: fmt.Sprintf("row %d has no GEOID", i),
			}
		}
		if t.Boundary == nil || t.Boundary.Empty() {
			return nil, &model.GeometryError{ID: t.GEOID, Reason: "tract has no boundary"}
		}
		switch t.Boundary.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			return nil, &model.GeometryError{ID: t.GEOID, Reason: fmt.Sprintf("tract boundary is %T, want polygon", t.Boundary)}
		}
		if t.HouseholdSize != nil && *t.HouseholdSize < 0 {
			return nil, &model.SchemaError{
				Source: "tracts",
				Field:  model.VarHouseholdSize,
				Reason: fmt.Sprintf("tract %s has negative household size %g", t.GEOID, *t.HouseholdSize),
			}
		}

		boundary, err := geo.Reconcile(t.Boundary, crsOrDefault(t.CRS, defaultEPSG))
		if err != nil {
			return nil, err
		}
		entries = append(entries, indexedTract{
			tract:    t,
			boundary: boundary,
			bounds:   boundary.Bounds(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].tract.GEOID < entries[j].tract.GEOID
	})
	return &TractIndex{entries: entries}, nil
}

// Len returns the number of indexed tracts.
func (ix *TractIndex) Len() int {
	return len(ix.entries)
}

// Lookup returns the tract containing c. ambiguous is true when more than one
// tract contains the point, in which case the lowest GEOID wins.
func (ix *TractIndex) Lookup(c model.Coord) (result JoinResult, ambiguous bool) {
	pt := geom.Coord{c.Lon, c.Lat}
	var hit *model.Tract
	for _, e := range ix.entries {
		if !e.bounds.OverlapsPoint(geom.XY, pt) {
			continue
		}
		if !geo.Contains(e.boundary, pt) {
			continue
		}
		if hit != nil {
			return Matched{Tract: hit}, true
		}
		hit = e.tract
	}
	if hit == nil {
		return Unmatched{}, false
	}
	return Matched{Tract: hit}, false
}

func crsOrDefault(epsg, fallback int) int {
	if epsg != 0 {
		return epsg
	}
	if fallback != 0 {
		return fallback
	}
	return model.EPSGWGS84
}
