// Package building reads and writes building footprint layers stored as
// ESRI shapefiles.
package building

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/buildpop/internal/fetcher"
	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// Default attribute names.
const (
	DefaultClassField = "class_reco"
	DefaultTractField = "geoid"
)

// Options configures Read.
type Options struct {
	ClassField  string // occupancy label attribute; required in the layer
	IDField     string // building ID attribute; empty uses the record ordinal
	TractField  string // optional precomputed tract GEOID attribute
	DefaultEPSG int    // CRS assumed when the layer has no .prj
	Classes     *model.ClassTable
}

func (o Options) withDefaults() Options {
	if o.ClassField == "" {
		o.ClassField = DefaultClassField
	}
	if o.TractField == "" {
		o.TractField = DefaultTractField
	}
	if o.DefaultEPSG == 0 {
		o.DefaultEPSG = model.EPSGWGS84
	}
	return o
}

// Read loads every record of a building layer. path may name a .shp file or
// a .zip archive containing one.
func Read(path string, opts Options) ([]model.Building, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "building.read"), zap.String("path", path))

	shpPath := path
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, err := os.MkdirTemp("", "buildpop-buildings-*")
		if err != nil {
			return nil, eris.Wrap(err, "building: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		shpPath, err = fetcher.ExtractShapefile(path, dir)
		if errors.Is(err, fetcher.ErrNoShapefile) {
			return nil, &model.SchemaError{Source: path, Field: ".shp", Reason: "archive contains no shapefile"}
		}
		if err != nil {
			return nil, eris.Wrapf(err, "building: extract %s", path)
		}
	}

	crs, err := geo.ReadPRJ(shpPath, opts.DefaultEPSG)
	if err != nil {
		return nil, err
	}
	dec, err := charsetDecoder(shpPath)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "building: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		names[i] = f.String()
		fieldIdx[strings.ToLower(names[i])] = i
	}

	classIdx, ok := fieldIdx[strings.ToLower(opts.ClassField)]
	if !ok {
		return nil, &model.SchemaError{Source: shpPath, Field: opts.ClassField}
	}
	idIdx := -1
	if opts.IDField != "" {
		if idIdx, ok = fieldIdx[strings.ToLower(opts.IDField)]; !ok {
			return nil, &model.SchemaError{Source: shpPath, Field: opts.IDField}
		}
	}
	tractIdx, hasTract := fieldIdx[strings.ToLower(opts.TractField)]

	var (
		buildings []model.Building
		nulls     int
	)
	for reader.Next() {
		n, shape := reader.Shape()

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if dec != nil {
				if s, derr := dec.String(v); derr == nil {
					v = s
				}
			}
			attrs[name] = v
		}

		footprint, err := geo.FromShape(shape)
		if err != nil {
			return nil, eris.Wrapf(err, "building: record %d", n)
		}
		if footprint == nil {
			nulls++
		}

		b := model.Building{
			ID:         strconv.Itoa(n),
			Label:      attrs[names[classIdx]],
			Footprint:  footprint,
			CRS:        crs,
			Attributes: attrs,
		}
		if idIdx >= 0 {
			b.ID = attrs[names[idIdx]]
		}
		if hasTract {
			b.TractGEOID = attrs[names[tractIdx]]
		}
		b.Class = opts.Classes.Parse(b.Label)
		buildings = append(buildings, b)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "building: read %s", shpPath)
	}

	log.Info("building layer loaded",
		zap.Int("records", len(buildings)),
		zap.Int("null_shapes", nulls),
		zap.Int("epsg", crs),
	)
	return buildings, nil
}

// charsetDecoder returns a decoder for the encoding named in the .cpg
// sidecar, or nil when attributes are already UTF-8.
func charsetDecoder(shpPath string) (*encoding.Decoder, error) {
	cpgPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".cpg"
	data, err := os.ReadFile(cpgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "building: read %s", cpgPath)
	}
	name := strings.TrimSpace(string(data))
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, &model.ConfigurationError{Setting: cpgPath, Reason: "unknown charset " + strconv.Quote(name)}
	}
	return enc.NewDecoder(), nil
}
