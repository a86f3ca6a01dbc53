package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/sells-group/buildpop/internal/db"
	"github.com/sells-group/buildpop/internal/model"
)

// Sink receives result tables.
type Sink interface {
	Write(ctx context.Context, t *Table) error
	Close() error
}

// Options selects and configures a sink.
type Options struct {
	Driver      string // csv, xlsx, sqlite, postgres or shapefile
	Path        string // directory for csv and shapefile, file for xlsx and sqlite
	DatabaseURL string
	Pool        db.Pool // used instead of DatabaseURL when set
	Schema      string  // postgres schema for created tables
	RunID       string  // tags rows in database sinks; generated when empty
}

// Open returns the sink named by opts.Driver.
func Open(ctx context.Context, opts Options) (Sink, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	switch strings.ToLower(opts.Driver) {
	case "", "csv":
		return NewCSV(opts.Path), nil
	case "xlsx":
		return NewXLSX(opts.Path), nil
	case "sqlite":
		return NewSQLite(ctx, opts.Path, opts.RunID)
	case "postgres":
		if opts.Pool != nil {
			return NewPostgres(opts.Pool, opts.Schema, opts.RunID), nil
		}
		if opts.DatabaseURL == "" {
			return nil, &model.ConfigurationError{Setting: "output.database_url", Reason: "is required for the postgres driver"}
		}
		pool, err := db.Connect(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := NewPostgres(pool, opts.Schema, opts.RunID)
		s.closer = pool.Close
		return s, nil
	case "shapefile":
		return NewShapefile(opts.Path), nil
	}
	return nil, &model.ConfigurationError{
		Setting: "output.driver",
		Reason:  fmt.Sprintf("unknown driver %q", opts.Driver),
	}
}

// FormatValue renders a cell as text. Geometries become WKT and nil becomes
// the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case geom.T:
		s, err := wkt.Marshal(x)
		if err != nil {
			return ""
		}
		return s
	}
	return fmt.Sprint(v)
}

func formatRow(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = FormatValue(v)
	}
	return out
}
