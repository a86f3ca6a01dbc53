package export

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/fetcher"
)

// CSVSink writes each table to <dir>/<name>.csv. A dir of "-" writes every
// table to stdout.
type CSVSink struct {
	dir    string
	stdout io.Writer
}

// NewCSV returns a CSV sink rooted at dir ("" means the working directory).
func NewCSV(dir string) *CSVSink {
	s := &CSVSink{dir: dir}
	if dir == "-" {
		s.stdout = os.Stdout
	}
	return s
}

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, t *Table) error {
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = formatRow(r)
	}

	if s.stdout != nil {
		return eris.Wrapf(fetcher.WriteCSV(s.stdout, t.Names(), rows), "export: csv %s", t.Name)
	}

	dir := s.dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", dir)
	}
	path := filepath.Join(dir, t.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := fetcher.WriteCSV(f, t.Names(), rows); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: csv %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}

	zap.L().Info("table written",
		zap.String("component", "export.csv"),
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// Close implements Sink.
func (s *CSVSink) Close() error { return nil }
