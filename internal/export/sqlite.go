package export

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteSink writes tables into a SQLite database. Every row carries the
// run ID, and each write is recorded in the runs table.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT NOT NULL,
	table_name TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (id, table_name)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// NewSQLite opens the database at path, configures WAL mode and creates the
// runs table. An empty path opens buildpop.db.
func NewSQLite(ctx context.Context, path, runID string) (*SQLiteSink, error) {
	if path == "" {
		path = "buildpop.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteSink{db: db, runID: runID}, nil
}

// RunID returns the ID stamped on rows written by this sink.
func (s *SQLiteSink) RunID() string { return s.runID }

// Write implements Sink. Geometries are stored as WKT text.
func (s *SQLiteSink) Write(ctx context.Context, t *Table) error {
	defs := []string{quoteIdent("run_id") + " TEXT NOT NULL"}
	cols := []string{quoteIdent("run_id")}
	for _, c := range t.Columns {
		defs = append(defs, quoteIdent(c.Name)+" "+sqliteType(c.Type))
		cols = append(cols, quoteIdent(c.Name))
	}
	if len(t.Key) > 0 {
		key := []string{quoteIdent("run_id")}
		for _, k := range t.Key {
			key = append(key, quoteIdent(k))
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(key, ", ")+")")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	create := "CREATE TABLE IF NOT EXISTS " + quoteIdent(t.Name) + " (" + strings.Join(defs, ", ") + ")"
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return eris.Wrapf(err, "sqlite: create table %s", t.Name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+quoteIdent(t.Name)+" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", t.Name)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(cols))
	for i, row := range t.Rows {
		args[0] = s.runID
		for j, v := range row {
			args[j+1] = sqliteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %d", t.Name, i)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, table_name, row_count, created_at) VALUES (?, ?, ?, ?)`,
		s.runID, t.Name, len(t.Rows), time.Now().UTC(),
	); err != nil {
		return eris.Wrap(err, "sqlite: record run")
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit tx")
	}

	zap.L().Info("table written",
		zap.String("component", "export.sqlite"),
		zap.String("table", t.Name),
		zap.String("run_id", s.runID),
		zap.Int("rows", len(t.Rows)),
	)
	return nil
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func sqliteType(t ColumnType) string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	}
	return "TEXT"
}

func sqliteValue(v any) any {
	switch v.(type) {
	case nil, string, int, int64, float64:
		return v
	}
	return FormatValue(v)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
