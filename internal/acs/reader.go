// Package acs reads and writes the tract-level American Community Survey
// table: one row per tract with its estimates and a WKT boundary.
package acs

import (
	"context"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/fetcher"
	"github.com/sells-group/buildpop/internal/model"
)

// Options names the columns of an ACS table.
type Options struct {
	GEOIDColumn      string
	NameColumn       string
	GeometryColumn   string
	HouseholdSizeVar string
	PopulationVar    string
	CRS              int // CRS of the WKT boundaries
}

// DefaultOptions returns the documented column names.
func DefaultOptions() Options {
	return Options{
		GEOIDColumn:      "geo_id",
		NameColumn:       "name",
		GeometryColumn:   "geometry",
		HouseholdSizeVar: model.VarHouseholdSize,
		PopulationVar:    model.VarTotalPopulation,
		CRS:              model.EPSGNAD83,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.GEOIDColumn == "" {
		o.GEOIDColumn = d.GEOIDColumn
	}
	if o.NameColumn == "" {
		o.NameColumn = d.NameColumn
	}
	if o.GeometryColumn == "" {
		o.GeometryColumn = d.GeometryColumn
	}
	if o.HouseholdSizeVar == "" {
		o.HouseholdSizeVar = d.HouseholdSizeVar
	}
	if o.PopulationVar == "" {
		o.PopulationVar = d.PopulationVar
	}
	if o.CRS == 0 {
		o.CRS = d.CRS
	}
	return o
}

// NormalizeGEOID strips a summary-level prefix such as "1400000US" and
// surrounding space.
func NormalizeGEOID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "US"); i >= 0 {
		return s[i+2:]
	}
	return s
}

// ParseValue parses an estimate cell. Empty cells, NA markers, non-finite
// values and Census annotation codes such as -666666666 come back as nil.
// Other negative values are returned as-is so the join can reject them.
func ParseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none", "-", "*", "**", "***", "(x)", "n":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || model.IsAnnotation(v) {
		return nil
	}
	return &v
}

// ReadFile reads an ACS table from disk.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.Tract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "acs: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	tracts, err := Read(ctx, f, path, opts)
	if err != nil {
		return nil, err
	}
	return tracts, nil
}

// Read parses an ACS table. source names the input in errors. Columns other
// than the GEOID, name and geometry columns that parse as numbers land in
// Tract.Measures. Rows come back sorted by GEOID.
func Read(ctx context.Context, r io.Reader, source string, opts Options) ([]model.Tract, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "acs.read"), zap.String("source", source))

	stream, err := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrapf(err, "acs: read %s", source)
	}

	required := []string{opts.GEOIDColumn, opts.GeometryColumn, opts.HouseholdSizeVar}
	if missing := stream.Header.Missing(required...); len(missing) > 0 {
		// Drain so the producer goroutine exits.
		go func() {
			for range stream.Rows {
			}
		}()
		return nil, &model.SchemaError{Source: source, Field: missing[0]}
	}

	skip := map[string]bool{}
	for _, c := range []string{opts.GEOIDColumn, opts.NameColumn, opts.GeometryColumn} {
		if i, ok := stream.Header.Index(c); ok {
			skip[stream.Header.Names()[i]] = true
		}
	}

	var (
		tracts   []model.Tract
		missing  int
		firstErr error
	)
	for row := range stream.Rows {
		if firstErr != nil {
			continue
		}
		t, err := parseRow(row, stream.Header.Names(), skip, source, opts)
		if err != nil {
			firstErr = err
			continue
		}
		if t.HouseholdSize == nil {
			missing++
		}
		tracts = append(tracts, t)
	}
	for err := range stream.Errs {
		if err != nil {
			return nil, eris.Wrapf(err, "acs: read %s", source)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	sort.SliceStable(tracts, func(i, j int) bool { return tracts[i].GEOID < tracts[j].GEOID })

	log.Info("acs table loaded",
		zap.Int("tracts", len(tracts)),
		zap.Int("missing_household_size", missing),
	)
	return tracts, nil
}

func parseRow(row fetcher.Row, names []string, skip map[string]bool, source string, opts Options) (model.Tract, error) {
	t := model.Tract{
		GEOID:    NormalizeGEOID(row.Get(opts.GEOIDColumn)),
		Name:     row.Get(opts.NameColumn),
		CRS:      opts.CRS,
		Measures: map[string]float64{},
	}
	if t.GEOID == "" {
		return t, &model.SchemaError{
			Source: source,
			Field:  opts.GEOIDColumn,
			Reason: "empty on line " + strconv.Itoa(row.Line),
		}
	}

	if text := row.Get(opts.GeometryColumn); text != "" {
		g, err := wkt.Unmarshal(text)
		if err != nil {
			return t, &model.GeometryError{ID: t.GEOID, Reason: "parse WKT: " + err.Error()}
		}
		t.Boundary = g
	}

	for i, name := range names {
		if skip[name] || name == "" || i >= len(row.Fields) {
			continue
		}
		if v := ParseValue(row.Fields[i]); v != nil {
			t.Measures[name] = *v
		}
	}
	t.HouseholdSize = lookup(t.Measures, opts.HouseholdSizeVar)
	t.TotalPopulation = lookup(t.Measures, opts.PopulationVar)
	return t, nil
}

func lookup(m map[string]float64, key string) *float64 {
	if v, ok := m[key]; ok {
		return model.Float(v)
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return model.Float(v)
		}
	}
	return nil
}
