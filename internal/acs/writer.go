package acs

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/sells-group/buildpop/internal/fetcher"
	"github.com/sells-group/buildpop/internal/model"
)

// Write emits tracts in the layout Read consumes: GEOID, name, one column
// per variable, then the WKT boundary. Missing values are empty cells.
func Write(w io.Writer, tracts []model.Tract, vars []string, opts Options) error {
	opts = opts.withDefaults()
	if vars == nil {
		vars = Variables(tracts)
	}

	header := append([]string{opts.GEOIDColumn, opts.NameColumn}, vars...)
	header = append(header, opts.GeometryColumn)

	rows := make([][]string, 0, len(tracts))
	for _, t := range tracts {
		row := make([]string, 0, len(header))
		row = append(row, t.GEOID, t.Name)
		for _, v := range vars {
			if val, ok := t.Measures[v]; ok {
				row = append(row, strconv.FormatFloat(val, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		var text string
		if t.Boundary != nil {
			var err error
			if text, err = wkt.Marshal(t.Boundary); err != nil {
				return eris.Wrapf(err, "acs: encode boundary for %s", t.GEOID)
			}
		}
		rows = append(rows, append(row, text))
	}
	return fetcher.WriteCSV(w, header, rows)
}

// WriteFile writes tracts to path, creating parent directories.
func WriteFile(path string, tracts []model.Tract, vars []string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "acs: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "acs: create %s", path)
	}
	if err := Write(f, tracts, vars, opts); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "acs: close %s", path)
}
