package building

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// DBF limits.
const (
	maxFieldName  = 10
	maxFieldWidth = 254
)

// Write stores buildings as a polygon shapefile with a .prj for epsg. The
// id, class and tract fields are always written; columns names extra
// attributes to carry over. Buildings without a polygon footprint are
// skipped and counted in the returned total.
func Write(path string, epsg int, buildings []model.Building, columns []string) (skipped int, err error) {
	if !strings.HasSuffix(strings.ToLower(path), ".shp") {
		return 0, &model.ConfigurationError{Setting: "output", Reason: "shapefile path must end in .shp"}
	}

	names := append([]string{"id", DefaultClassField, DefaultTractField}, columns...)
	values := func(b model.Building) []string {
		row := []string{b.ID, b.Label, b.TractGEOID}
		for _, c := range columns {
			row = append(row, b.Attributes[c])
		}
		return row
	}

	widths := make([]int, len(names))
	for i := range widths {
		widths[i] = 1
	}
	for _, b := range buildings {
		for i, v := range values(b) {
			widths[i] = max(widths[i], min(len(v), maxFieldWidth))
		}
	}

	fields := make([]shp.Field, len(names))
	for i, n := range names {
		if len(n) > maxFieldName {
			n = n[:maxFieldName]
		}
		fields[i] = shp.StringField(n, uint8(widths[i]))
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return 0, eris.Wrapf(err, "building: create %s", path)
	}
	defer w.Close()

	if err := w.SetFields(fields); err != nil {
		return 0, eris.Wrap(err, "building: set fields")
	}

	for _, b := range buildings {
		if b.Footprint == nil {
			skipped++
			continue
		}
		poly, err := geo.ToShape(b.Footprint)
		if err != nil {
			skipped++
			continue
		}
		row := int(w.Write(poly))
		for i, v := range values(b) {
			if len(v) > maxFieldWidth {
				v = v[:maxFieldWidth]
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				return skipped, eris.Wrapf(err, "building: write %s.%s", b.ID, names[i])
			}
		}
	}

	if err := geo.WritePRJ(path, epsg); err != nil {
		return skipped, err
	}
	return skipped, nil
}
