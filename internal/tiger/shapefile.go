package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// TIGER/Line shapefiles are NAD83 geographic.
const defaultEPSG = model.EPSGNAD83

// ParseTracts reads a TIGER/Line tract shapefile. When countyFIPS is set,
// only tracts in that county are returned. ALAND and AWATER land in
// Measures.
func ParseTracts(shpPath, countyFIPS string) ([]model.Tract, error) {
	crs, err := geo.ReadPRJ(shpPath, defaultEPSG)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToLower(f.String())] = i
	}
	for _, want := range []string{"geoid", "countyfp"} {
		if _, ok := fieldIdx[want]; !ok {
			return nil, &model.SchemaError{Source: shpPath, Field: strings.ToUpper(want)}
		}
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var (
		tracts  []model.Tract
		skipped int
	)
	for reader.Next() {
		if countyFIPS != "" && attr("countyfp") != countyFIPS {
			continue
		}

		n, shape := reader.Shape()
		boundary, err := geo.FromShape(shape)
		if err != nil || boundary == nil {
			skipped++
			zap.L().Debug("tiger: skipping tract without usable boundary",
				zap.Int("record", n),
				zap.String("geoid", attr("geoid")),
				zap.Error(err),
			)
			continue
		}

		t := model.Tract{
			GEOID:    attr("geoid"),
			Name:     attr("namelsad"),
			Boundary: boundary,
			CRS:      crs,
			Measures: map[string]float64{},
		}
		for _, m := range []string{"aland", "awater"} {
			if v, err := strconv.ParseFloat(attr(m), 64); err == nil {
				t.Measures[strings.ToUpper(m)] = v
			}
		}
		tracts = append(tracts, t)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "tiger: read %s", shpPath)
	}

	zap.L().Info("tiger tracts parsed",
		zap.String("component", "tiger.parse"),
		zap.String("county", countyFIPS),
		zap.Int("tracts", len(tracts)),
		zap.Int("skipped", skipped),
	)
	return tracts, nil
}

// Boundaries indexes tract boundaries by GEOID.
func Boundaries(tracts []model.Tract) map[string]geom.T {
	out := make(map[string]geom.T, len(tracts))
	for _, t := range tracts {
		out[t.GEOID] = t.Boundary
	}
	return out
}
