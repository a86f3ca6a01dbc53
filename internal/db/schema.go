package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Column is one column of a table created by EnsureTable.
type Column struct {
	Name string
	Type string // SQL type, e.g. "text", "double precision", "geometry(Point, 4326)"
}

// EnsureTable creates the schema (when table is qualified), the PostGIS
// extension (when any column is a geometry) and the table itself, each only
// if missing. key, when set, becomes the primary key.
func EnsureTable(ctx context.Context, pool Pool, table string, columns []Column, key []string) error {
	if len(columns) == 0 {
		return eris.Errorf("db: create %s: no columns", table)
	}

	ident := Identifier(table)
	if len(ident) == 2 {
		sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{ident[0]}.Sanitize()
		if _, err := pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "db: create schema %s", ident[0])
		}
	}

	defs := make([]string, 0, len(columns)+1)
	spatial := false
	for _, c := range columns {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+c.Type)
		if strings.HasPrefix(strings.ToLower(c.Type), "geometry") {
			spatial = true
		}
	}
	if len(key) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteAndJoin(key)+")")
	}

	if spatial {
		if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
			return eris.Wrap(err, "db: create extension postgis")
		}
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "db: create table %s", table)
	}
	return nil
}
