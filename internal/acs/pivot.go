package acs

import (
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/buildpop/internal/model"
)

// Estimate is one long-format ACS value: a single variable for a single
// tract. Value is nil for suppressed or missing estimates.
type Estimate struct {
	GEOID    string
	Name     string
	Variable string
	Value    *float64
}

// Pivot reshapes long-format estimates to one Tract per GEOID and attaches
// boundaries by GEOID. Tracts without a boundary keep a nil Boundary. The
// last value seen for a (GEOID, variable) pair wins.
func Pivot(long []Estimate, boundaries map[string]geom.T, crs int, opts Options) []model.Tract {
	opts = opts.withDefaults()

	byID := make(map[string]*model.Tract)
	var order []string
	for _, e := range long {
		id := NormalizeGEOID(e.GEOID)
		t, ok := byID[id]
		if !ok {
			t = &model.Tract{GEOID: id, Name: e.Name, CRS: crs, Measures: map[string]float64{}}
			byID[id] = t
			order = append(order, id)
		}
		if t.Name == "" {
			t.Name = e.Name
		}
		if e.Value == nil {
			delete(t.Measures, e.Variable)
			continue
		}
		t.Measures[e.Variable] = *e.Value
	}

	sort.Strings(order)
	out := make([]model.Tract, 0, len(order))
	for _, id := range order {
		t := byID[id]
		t.Boundary = boundaries[id]
		t.HouseholdSize = lookup(t.Measures, opts.HouseholdSizeVar)
		t.TotalPopulation = lookup(t.Measures, opts.PopulationVar)
		out = append(out, *t)
	}
	return out
}

// Variables returns the sorted union of measure names across tracts.
func Variables(tracts []model.Tract) []string {
	seen := map[string]bool{}
	for _, t := range tracts {
		for k := range t.Measures {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
