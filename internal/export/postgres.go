package export

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/db"
	"github.com/sells-group/buildpop/internal/model"
)

// PostgresSink writes tables into PostgreSQL. Geometry columns become
// PostGIS geometries sent as EWKB. Keyed tables are upserted on
// (run_id, key); the rest are appended with COPY.
type PostgresSink struct {
	pool   db.Pool
	schema string
	runID  string
	closer func()
}

// NewPostgres returns a sink over an open pool.
func NewPostgres(pool db.Pool, schema, runID string) *PostgresSink {
	return &PostgresSink{pool: pool, schema: schema, runID: runID}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, t *Table) error {
	table := t.Name
	if s.schema != "" {
		table = s.schema + "." + t.Name
	}
	epsg := t.EPSG
	if epsg == 0 {
		epsg = model.EPSGWGS84
	}

	cols := []db.Column{{Name: "run_id", Type: "text NOT NULL"}}
	names := []string{"run_id"}
	for _, c := range t.Columns {
		cols = append(cols, db.Column{Name: c.Name, Type: postgresType(c.Type, epsg)})
		names = append(names, c.Name)
	}
	var key []string
	if len(t.Key) > 0 {
		key = append([]string{"run_id"}, t.Key...)
	}

	if err := db.EnsureTable(ctx, s.pool, table, cols, key); err != nil {
		return err
	}

	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, 0, len(r)+1)
		row = append(row, s.runID)
		for _, v := range r {
			pv, err := postgresValue(v, epsg)
			if err != nil {
				return eris.Wrapf(err, "export: %s row %d", t.Name, i)
			}
			row = append(row, pv)
		}
		rows[i] = row
	}

	var (
		n   int64
		err error
	)
	if key != nil {
		n, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        table,
			Columns:      names,
			ConflictKeys: key,
		}, rows)
	} else {
		n, err = db.CopyFrom(ctx, s.pool, table, names, rows, 0)
	}
	if err != nil {
		return err
	}

	zap.L().Info("table written",
		zap.String("component", "export.postgres"),
		zap.String("table", table),
		zap.String("run_id", s.runID),
		zap.Int64("rows", n),
	)
	return nil
}

// Close releases the pool when the sink opened it.
func (s *PostgresSink) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

func postgresType(t ColumnType, epsg int) string {
	switch t {
	case Integer:
		return "bigint"
	case Real:
		return "double precision"
	case Geometry:
		return fmt.Sprintf("geometry(Geometry, %d)", epsg)
	}
	return "text"
}

func postgresValue(v any, epsg int) (any, error) {
	g, ok := v.(geom.T)
	if !ok {
		return v, nil
	}
	g, err := withSRID(g, epsg)
	if err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}

// withSRID returns a copy of g tagged with srid.
func withSRID(g geom.T, srid int) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone().SetSRID(srid), nil
	case *geom.Polygon:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiPolygon:
		return t.Clone().SetSRID(srid), nil
	case *geom.LineString:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiLineString:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiPoint:
		return t.Clone().SetSRID(srid), nil
	}
	return nil, &model.GeometryError{Reason: fmt.Sprintf("cannot encode %T", g)}
}
