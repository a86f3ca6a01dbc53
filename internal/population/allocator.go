// Package population estimates residential population per building by joining
// building centroids to ACS census tracts and scaling tract household size by
// the number of housing units each occupancy class implies.
package population

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// DefaultImputedHouseholdSize fills tracts whose household size estimate is
// missing.
const DefaultImputedHouseholdSize = 2.2

// UnmatchedPolicy decides what happens to residential buildings that fall
// outside every tract.
type UnmatchedPolicy string

// Unmatched policies.
const (
	PolicyDrop  UnmatchedPolicy = "drop"
	PolicyZero  UnmatchedPolicy = "zero"
	PolicyError UnmatchedPolicy = "error"
)

// ParsePolicy validates a policy name. An empty name selects PolicyDrop.
func ParsePolicy(s string) (UnmatchedPolicy, error) {
	switch p := UnmatchedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyDrop, nil
	case PolicyDrop, PolicyZero, PolicyError:
		return p, nil
	}
	return "", &model.ConfigurationError{
		Setting: "population.unmatched_policy",
		Reason:  fmt.Sprintf("unknown policy %q (want drop, zero or error)", s),
	}
}

// Options configures an Allocator.
type Options struct {
	ImputedHouseholdSize float64
	Unmatched            UnmatchedPolicy
	EqualAreaEPSG        int
	DefaultEPSG          int // CRS assumed for records with none set
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ImputedHouseholdSize: DefaultImputedHouseholdSize,
		Unmatched:            PolicyDrop,
		EqualAreaEPSG:        model.EPSGLAEAEurope,
		DefaultEPSG:          model.EPSGWGS84,
	}
}

// Allocation is one residential building joined to its tract.
type Allocation struct {
	Index         int // position in the input slice
	Building      model.Building
	Join          JoinResult
	Multiplier    int
	HouseholdSize float64
	Imputed       bool
	Population    float64
}

// GEOID returns the joined tract GEOID, or "" when unmatched.
func (a Allocation) GEOID() string {
	return GEOID(a.Join)
}

// Stats counts what happened to the input during allocation.
type Stats struct {
	Input           int     `json:"input"`
	Residential     int     `json:"residential"`
	NonResidential  int     `json:"non_residential"`
	Matched         int     `json:"matched"`
	Unmatched       int     `json:"unmatched"`
	Ambiguous       int     `json:"ambiguous"`
	Dropped         int     `json:"dropped"`
	Imputed         int     `json:"imputed"`
	TotalPopulation float64 `json:"total_population"`
}

// Result holds the residential allocations in input order.
type Result struct {
	Allocations []Allocation
	Stats       Stats
}

// Allocator runs the residential filter, tract join and population estimate.
type Allocator struct {
	opts      Options
	centroids *geo.CentroidExtractor
}

// New validates opts and builds an Allocator.
func New(opts Options) (*Allocator, error) {
	if opts.ImputedHouseholdSize < 0 {
		return nil, &model.ConfigurationError{
			Setting: "population.imputed_household_size",
			Reason:  fmt.Sprintf("must be non-negative, got %g", opts.ImputedHouseholdSize),
		}
	}
	policy, err := ParsePolicy(string(opts.Unmatched))
	if err != nil {
		return nil, err
	}
	opts.Unmatched = policy
	if opts.EqualAreaEPSG == 0 {
		opts.EqualAreaEPSG = model.EPSGLAEAEurope
	}
	if opts.DefaultEPSG == 0 {
		opts.DefaultEPSG = model.EPSGWGS84
	}

	ce, err := geo.NewCentroidExtractor(opts.EqualAreaEPSG)
	if err != nil {
		return nil, eris.Wrap(err, "population: centroid extractor")
	}
	return &Allocator{opts: opts, centroids: ce}, nil
}

// Allocate estimates population for every residential building that falls in
// a tract. Non-residential buildings never appear in the result.
func (a *Allocator) Allocate(buildings []model.Building, tracts []model.Tract) (*Result, error) {
	log := zap.L().With(zap.String("component", "population.allocator"))

	if err := a.checkCRS(buildings, tracts); err != nil {
		return nil, err
	}

	index, err := NewTractIndex(tracts, a.opts.DefaultEPSG)
	if err != nil {
		return nil, eris.Wrap(err, "population: index tracts")
	}

	res := &Result{Stats: Stats{Input: len(buildings)}}

	// Only residential buildings need a centroid.
	var residential []model.Building
	var positions []int
	for i, b := range buildings {
		if !b.Class.IsResidential() {
			res.Stats.NonResidential++
			continue
		}
		if b.CRS == 0 {
			b.CRS = a.opts.DefaultEPSG
		}
		residential = append(residential, b)
		positions = append(positions, i)
	}
	res.Stats.Residential = len(residential)

	withCentroids, err := a.centroids.Apply(residential)
	if err != nil {
		return nil, eris.Wrap(err, "population: centroids")
	}

	for i, b := range withCentroids {
		join, ambiguous := index.Lookup(*b.Centroid)
		if ambiguous {
			res.Stats.Ambiguous++
			log.Debug("building lies in more than one tract",
				zap.String("building_id", b.ID),
				zap.String("tract", GEOID(join)),
			)
		}

		alloc := Allocation{
			Index:      positions[i],
			Building:   b,
			Join:       join,
			Multiplier: b.Class.UnitMultiplier(),
		}

		m, ok := join.(Matched)
		if !ok {
			res.Stats.Unmatched++
			switch a.opts.Unmatched {
			case PolicyError:
				return nil, &model.SchemaError{
					Source: "buildings",
					Field:  "geometry",
					Reason: fmt.Sprintf("building %s is not inside any tract", b.ID),
				}
			case PolicyZero:
				res.Allocations = append(res.Allocations, alloc)
			default:
				res.Stats.Dropped++
				log.Debug("dropping building outside every tract", zap.String("building_id", b.ID))
			}
			continue
		}

		res.Stats.Matched++
		alloc.Building.TractGEOID = m.Tract.GEOID
		if m.Tract.HouseholdSize == nil {
			alloc.HouseholdSize = a.opts.ImputedHouseholdSize
			alloc.Imputed = true
			res.Stats.Imputed++
		} else {
			alloc.HouseholdSize = *m.Tract.HouseholdSize
		}
		alloc.Population = Estimate(alloc.Multiplier, alloc.HouseholdSize)
		res.Stats.TotalPopulation += alloc.Population
		res.Allocations = append(res.Allocations, alloc)
	}

	log.Info("population allocated",
		zap.Int("input", res.Stats.Input),
		zap.Int("residential", res.Stats.Residential),
		zap.Int("matched", res.Stats.Matched),
		zap.Int("dropped", res.Stats.Dropped),
		zap.Int("imputed", res.Stats.Imputed),
		zap.Int("ambiguous", res.Stats.Ambiguous),
		zap.Float64("total_population", res.Stats.TotalPopulation),
	)
	return res, nil
}

// Estimate is multiplier times household size, floored at zero.
func Estimate(multiplier int, householdSize float64) float64 {
	if multiplier <= 0 || householdSize <= 0 {
		return 0
	}
	return float64(multiplier) * householdSize
}

// checkCRS rejects building/tract CRS pairs that cannot be reconciled.
func (a *Allocator) checkCRS(buildings []model.Building, tracts []model.Tract) error {
	bset := map[int]struct{}{}
	for _, b := range buildings {
		bset[crsOrDefault(b.CRS, a.opts.DefaultEPSG)] = struct{}{}
	}
	tset := map[int]struct{}{}
	for _, t := range tracts {
		tset[crsOrDefault(t.CRS, a.opts.DefaultEPSG)] = struct{}{}
	}

	for _, bc := range sortedKeys(bset) {
		for _, tc := range sortedKeys(tset) {
			if bc == tc || (supported(bc) && supported(tc)) {
				continue
			}
			return &model.ConfigurationError{
				Setting: "crs",
				Reason:  fmt.Sprintf("buildings in EPSG:%d and tracts in EPSG:%d cannot be reconciled", bc, tc),
			}
		}
	}
	return nil
}

func supported(epsg int) bool {
	if geo.Geographic(epsg) {
		return true
	}
	_, err := geo.ProjectionFor(epsg)
	return err == nil
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// MergeAll returns one allocation per input building. Buildings that were
// non-residential or dropped come back Unmatched with zero population.
func MergeAll(buildings []model.Building, res *Result) []Allocation {
	out := make([]Allocation, len(buildings))
	for i, b := range buildings {
		out[i] = Allocation{Index: i, Building: b, Join: Unmatched{}}
	}
	if res == nil {
		return out
	}
	for _, a := range res.Allocations {
		if a.Index >= 0 && a.Index < len(out) {
			out[a.Index] = a
		}
	}
	return out
}
