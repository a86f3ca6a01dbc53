package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/building"
	"github.com/sells-group/buildpop/internal/model"
)

// ShapefileSink writes tables with a geometry column as polygon shapefiles.
type ShapefileSink struct {
	path string
}

// NewShapefile returns a shapefile sink. path is either a directory, in
// which each table becomes <name>.shp, or a single .shp file.
func NewShapefile(path string) *ShapefileSink {
	return &ShapefileSink{path: path}
}

// Write implements Sink. The id, class and geoid columns map onto the
// building layer fields; other columns are written as text attributes.
func (s *ShapefileSink) Write(_ context.Context, t *Table) error {
	gi := -1
	for i, c := range t.Columns {
		if c.Type == Geometry {
			gi = i
			break
		}
	}
	if gi < 0 {
		return &model.ConfigurationError{
			Setting: "output.driver",
			Reason:  "table " + t.Name + " has no geometry column to write as a shapefile",
		}
	}

	path := s.path
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		if path == "" {
			path = "."
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return eris.Wrapf(err, "export: create %s", path)
		}
		path = filepath.Join(path, t.Name+".shp")
	}

	idIdx, classIdx, tractIdx := t.Index("id"), t.Index("class"), t.Index("geoid")
	var extra []string
	for i, c := range t.Columns {
		if i != gi && i != idIdx && i != classIdx && i != tractIdx {
			extra = append(extra, c.Name)
		}
	}

	buildings := make([]model.Building, len(t.Rows))
	for n, row := range t.Rows {
		b := model.Building{Attributes: make(map[string]string, len(extra))}
		for i, c := range t.Columns {
			switch i {
			case gi:
				b.Footprint, _ = row[i].(geom.T)
			case idIdx:
				b.ID = FormatValue(row[i])
			case classIdx:
				b.Label = FormatValue(row[i])
			case tractIdx:
				b.TractGEOID = FormatValue(row[i])
			default:
				b.Attributes[c.Name] = FormatValue(row[i])
			}
		}
		buildings[n] = b
	}

	epsg := t.EPSG
	if epsg == 0 {
		epsg = model.EPSGWGS84
	}
	skipped, err := building.Write(path, epsg, buildings, extra)
	if err != nil {
		return err
	}

	zap.L().Info("table written",
		zap.String("component", "export.shapefile"),
		zap.String("path", path),
		zap.Int("rows", len(buildings)-skipped),
		zap.Int("skipped", skipped),
	)
	return nil
}

// Close implements Sink.
func (s *ShapefileSink) Close() error { return nil }
