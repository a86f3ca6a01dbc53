package access

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// TableOptions selects the two building sets to compare. A building belongs
// to a set when its MatchField value contains the type string. MatchField
// defaults to the occupancy class label.
type TableOptions struct {
	TypeA      string
	TypeB      string
	MatchField string
	Threshold  float64 // miles; falls back to Options.ThresholdMiles when zero
}

// Calculator runs the table and indexed forms over building records.
type Calculator struct {
	opts      Options
	centroids *geo.CentroidExtractor
}

// New builds a Calculator.
func New(opts Options) (*Calculator, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ce, err := geo.NewCentroidExtractor(opts.EqualAreaEPSG)
	if err != nil {
		return nil, eris.Wrap(err, "access: centroid extractor")
	}
	return &Calculator{opts: opts, centroids: ce}, nil
}

// Select returns the buildings whose field value contains typ. Matching is
// case-sensitive.
func Select(buildings []model.Building, field, typ string) []model.Building {
	var out []model.Building
	for _, b := range buildings {
		v, ok := b.Field(field)
		if ok && strings.Contains(v, typ) {
			out = append(out, b)
		}
	}
	return out
}

// Points filters buildings to one type and attaches centroids.
func (c *Calculator) Points(buildings []model.Building, field, typ string) ([]Point, error) {
	selected, err := c.centroids.Apply(Select(buildings, field, typ))
	if err != nil {
		return nil, eris.Wrapf(err, "access: centroids for %q", typ)
	}
	out := make([]Point, len(selected))
	for i, b := range selected {
		out[i] = Point{ID: b.ID, Tract: b.TractGEOID, Coord: *b.Centroid}
	}
	return out, nil
}

func (c *Calculator) sets(buildings []model.Building, to TableOptions) (a, b []Point, threshold float64, err error) {
	if to.TypeA == "" || to.TypeB == "" {
		return nil, nil, 0, &model.ConfigurationError{Setting: "access.types", Reason: "both building types are required"}
	}
	threshold = to.Threshold
	if threshold == 0 {
		threshold = c.opts.ThresholdMiles
	}
	if threshold < 0 {
		return nil, nil, 0, &model.ConfigurationError{Setting: "access.threshold_miles", Reason: "must be non-negative"}
	}
	if a, err = c.Points(buildings, to.MatchField, to.TypeA); err != nil {
		return nil, nil, 0, err
	}
	if b, err = c.Points(buildings, to.MatchField, to.TypeB); err != nil {
		return nil, nil, 0, err
	}
	return a, b, threshold, nil
}

// Table materializes the full A×B cross product as access pairs in row-major
// order. The result always has exactly |A|·|B| rows.
func (c *Calculator) Table(buildings []model.Building, to TableOptions) ([]model.AccessPair, error) {
	log := zap.L().With(zap.String("component", "access.table"))

	a, b, threshold, err := c.sets(buildings, to)
	if err != nil {
		return nil, err
	}
	if err := checkPairs(len(a), len(b), c.opts); err != nil {
		return nil, err
	}

	n := len(a) * len(b)
	if c.opts.WarnPairs > 0 && n > c.opts.WarnPairs {
		log.Warn("large cross join, consider the indexed form",
			zap.Int("pairs", n),
			zap.Int("warn_pairs", c.opts.WarnPairs),
		)
	}

	pairs := make([]model.AccessPair, 0, n)
	for _, p := range a {
		for _, q := range b {
			d := geo.Haversine(p.Coord, q.Coord, c.opts.RadiusMiles)
			pairs = append(pairs, model.AccessPair{
				AID:           p.ID,
				BID:           q.ID,
				ATract:        p.Tract,
				BTract:        q.Tract,
				A:             p.Coord,
				B:             q.Coord,
				DistanceMiles: d,
				Access:        Flag(d, threshold),
			})
		}
	}

	log.Info("access table built",
		zap.String("type_a", to.TypeA),
		zap.String("type_b", to.TypeB),
		zap.Int("a", len(a)),
		zap.Int("b", len(b)),
		zap.Int("pairs", len(pairs)),
	)
	return pairs, nil
}

// TableMatrix returns the same comparison as Table in matrix form, with the
// row and column building IDs.
func (c *Calculator) TableMatrix(buildings []model.Building, to TableOptions) (*Matrices, error) {
	a, b, threshold, err := c.sets(buildings, to)
	if err != nil {
		return nil, err
	}

	opts := c.opts
	opts.ThresholdMiles = threshold
	m, err := Matrix(coords(a), coords(b), opts)
	if err != nil {
		return nil, err
	}
	m.RowIDs = ids(a)
	m.ColIDs = ids(b)
	return m, nil
}

// Within runs the indexed form over building records.
func (c *Calculator) Within(buildings []model.Building, to TableOptions) (*Reach, error) {
	a, b, threshold, err := c.sets(buildings, to)
	if err != nil {
		return nil, err
	}
	opts := c.opts
	opts.ThresholdMiles = threshold
	return Within(a, b, opts)
}

func coords(pts []Point) []model.Coord {
	out := make([]model.Coord, len(pts))
	for i, p := range pts {
		out[i] = p.Coord
	}
	return out
}

func ids(pts []Point) []string {
	out := make([]string, len(pts))
	for i, p := range pts {
		out[i] = p.ID
	}
	return out
}
