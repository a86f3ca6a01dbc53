package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/config"
	"github.com/sells-group/buildpop/internal/export"
)

// addOutputFlags registers the flags that override output.* settings.
func addOutputFlags(cmd *cobra.Command, defaultTable string) {
	cmd.Flags().String("driver", "", "output driver: csv, xlsx, sqlite, postgres or shapefile (default: from config)")
	cmd.Flags().StringP("output", "o", "", "output directory or file, - for stdout with csv (default: from config)")
	cmd.Flags().String("table", defaultTable, "output table name")
	cmd.Flags().String("schema", "", "postgres schema for output tables")
}

// outputConfig merges output flags over the loaded config.
func outputConfig(cmd *cobra.Command, base config.OutputConfig) (config.OutputConfig, string) {
	out := base
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		out.Driver = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		out.Path = v
	}
	if v, _ := cmd.Flags().GetString("table"); v != "" {
		out.Table = v
	}
	schema, _ := cmd.Flags().GetString("schema")
	return out, schema
}

// writeTables opens the configured sink, writes every table and closes it.
func writeTables(ctx context.Context, out config.OutputConfig, schema string, tables ...*export.Table) error {
	sink, err := export.Open(ctx, export.Options{
		Driver:      out.Driver,
		Path:        out.Path,
		DatabaseURL: out.DatabaseURL,
		Schema:      schema,
	})
	if err != nil {
		return eris.Wrap(err, "open output")
	}

	for _, t := range tables {
		if err := sink.Write(ctx, t); err != nil {
			_ = sink.Close()
			return eris.Wrapf(err, "write %s", t.Name)
		}
	}
	if err := sink.Close(); err != nil {
		return eris.Wrap(err, "close output")
	}

	zap.L().Debug("output complete",
		zap.String("driver", out.Driver),
		zap.Int("tables", len(tables)),
	)
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
