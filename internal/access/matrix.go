// Package access measures great-circle proximity between two sets of
// building centroids and flags pairs that fall within a walking threshold.
package access

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// Options configures distance and access computation. Zero thresholds and
// radii take the values from DefaultOptions.
type Options struct {
	ThresholdMiles float64
	RadiusMiles    float64
	WarnPairs      int // log a warning above this many materialized pairs
	MaxPairs       int // refuse to materialize more pairs; 0 disables the cap
	EqualAreaEPSG  int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ThresholdMiles: geo.DefaultAccessThresholdMiles,
		RadiusMiles:    geo.EarthRadiusMiles,
		WarnPairs:      1_000_000,
		MaxPairs:       25_000_000,
		EqualAreaEPSG:  model.EPSGLAEAEurope,
	}
}

func (o Options) withDefaults() Options {
	if o.ThresholdMiles == 0 {
		o.ThresholdMiles = geo.DefaultAccessThresholdMiles
	}
	if o.RadiusMiles <= 0 {
		o.RadiusMiles = geo.EarthRadiusMiles
	}
	if o.EqualAreaEPSG == 0 {
		o.EqualAreaEPSG = model.EPSGLAEAEurope
	}
	return o
}

func (o Options) validate() error {
	if o.ThresholdMiles < 0 {
		return &model.ConfigurationError{
			Setting: "access.threshold_miles",
			Reason:  fmt.Sprintf("must be non-negative, got %g", o.ThresholdMiles),
		}
	}
	return nil
}

// Distance returns the haversine distance in miles on the mean Earth radius.
func Distance(p, q model.Coord) float64 {
	return geo.DistanceMiles(p, q)
}

// Flag is 1 when d is within threshold (inclusive) and 0 otherwise.
func Flag(d, threshold float64) int {
	return geo.AccessFlag(d, threshold)
}

// Matrices holds an R×C distance matrix and its 0/1 access counterpart.
// Distance and Access are nil when either side is empty.
type Matrices struct {
	Rows, Cols int
	RowIDs     []string
	ColIDs     []string
	Distance   *mat.Dense
	Access     *mat.Dense
}

// Matrix computes pairwise distances from every coordinate in a (rows) to
// every coordinate in b (columns).
func Matrix(a, b []model.Coord, opts Options) (*Matrices, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkPairs(len(a), len(b), opts); err != nil {
		return nil, err
	}

	m := &Matrices{Rows: len(a), Cols: len(b)}
	if len(a) == 0 || len(b) == 0 {
		return m, nil
	}

	m.Distance = mat.NewDense(len(a), len(b), nil)
	m.Access = mat.NewDense(len(a), len(b), nil)
	for i, p := range a {
		for j, q := range b {
			d := geo.Haversine(p, q, opts.RadiusMiles)
			m.Distance.Set(i, j, d)
			m.Access.Set(i, j, float64(Flag(d, opts.ThresholdMiles)))
		}
	}
	return m, nil
}

// checkPairs enforces the materialization cap.
func checkPairs(na, nb int, opts Options) error {
	pairs := int64(na) * int64(nb)
	if opts.MaxPairs > 0 && pairs > int64(opts.MaxPairs) {
		return &model.ConfigurationError{
			Setting: "access.max_pairs",
			Reason:  fmt.Sprintf("%d×%d = %d pairs exceeds limit %d", na, nb, pairs, opts.MaxPairs),
		}
	}
	return nil
}
