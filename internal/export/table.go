// Package export writes result tables to CSV, XLSX, SQLite, PostGIS or
// shapefile sinks.
package export

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/buildpop/internal/access"
	"github.com/sells-group/buildpop/internal/model"
	"github.com/sells-group/buildpop/internal/population"
)

// ColumnType is the storage class of a column.
type ColumnType int

// Column types.
const (
	Text ColumnType = iota
	Integer
	Real
	Geometry
)

// Column is one named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a rectangular result set. Cells hold string, int, float64,
// geom.T or nil for a missing value.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
	Key     []string // unique columns, used by upserting sinks
	EPSG    int      // CRS of Geometry columns
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// FromAllocations builds the population table. columns names extra building
// attributes to carry over as text.
func FromAllocations(name string, allocs []population.Allocation, columns ...string) *Table {
	t := &Table{
		Name: name,
		Columns: []Column{
			{"id", Text},
			{"class", Text},
			{"geoid", Text},
			{"multiplier", Integer},
			{"household_size", Real},
			{"imputed", Integer},
			{"population", Real},
			{"lon", Real},
			{"lat", Real},
		},
		Key:  []string{"id"},
		EPSG: model.EPSGWGS84,
	}
	for _, c := range columns {
		t.Columns = append(t.Columns, Column{c, Text})
	}
	t.Columns = append(t.Columns, Column{"geometry", Geometry})

	for _, a := range allocs {
		b := a.Building
		row := []any{b.ID, b.Label, nullString(a.GEOID()), a.Multiplier}
		if a.GEOID() == "" {
			row = append(row, nil)
		} else {
			row = append(row, a.HouseholdSize)
		}
		row = append(row, boolInt(a.Imputed), a.Population)
		if b.Centroid != nil {
			row = append(row, b.Centroid.Lon, b.Centroid.Lat)
		} else {
			row = append(row, nil, nil)
		}
		for _, c := range columns {
			if v, ok := b.Field(c); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, footprint(b.Footprint))
		if b.CRS != 0 {
			t.EPSG = b.CRS
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FromTracts builds a tract table: GEOID, name, every measure present on
// any tract and the boundary.
func FromTracts(name string, tracts []model.Tract) *Table {
	t := &Table{
		Name:    name,
		Columns: []Column{{"geoid", Text}, {"name", Text}},
		Key:     []string{"geoid"},
		EPSG:    model.EPSGNAD83,
	}
	seen := map[string]bool{}
	var measures []string
	for _, tr := range tracts {
		for m := range tr.Measures {
			if !seen[m] {
				seen[m] = true
				measures = append(measures, m)
			}
		}
	}
	sort.Strings(measures)
	for _, m := range measures {
		t.Columns = append(t.Columns, Column{m, Real})
	}
	t.Columns = append(t.Columns, Column{"geometry", Geometry})

	for _, tr := range tracts {
		row := []any{tr.GEOID, tr.Name}
		for _, m := range measures {
			if v, ok := tr.Measures[m]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, footprint(tr.Boundary))
		if tr.CRS != 0 {
			t.EPSG = tr.CRS
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FromPairs builds the access table. Building columns are prefixed with
// their type name, e.g. residential_id and commercial_tract.
func FromPairs(name string, pairs []model.AccessPair, typeA, typeB string) *Table {
	pa, pb := Prefixes(typeA, typeB)
	t := &Table{Name: name}
	for _, p := range []string{pa, pb} {
		t.Columns = append(t.Columns,
			Column{p + "_id", Text},
			Column{p + "_tract", Text},
			Column{p + "_lon", Real},
			Column{p + "_lat", Real},
		)
	}
	t.Columns = append(t.Columns, Column{"distance", Real}, Column{"access", Integer})

	t.Rows = make([][]any, 0, len(pairs))
	for _, p := range pairs {
		t.Rows = append(t.Rows, []any{
			p.AID, nullString(p.ATract), p.A.Lon, p.A.Lat,
			p.BID, nullString(p.BTract), p.B.Lon, p.B.Lat,
			p.DistanceMiles, p.Access,
		})
	}
	return t
}

// FromMatrices builds two tables from the matrix form: name_distance with
// miles and name_access with 0/1 flags. Each row is one A building; columns
// after id are B buildings.
func FromMatrices(name string, m *access.Matrices) (distance, flags *Table) {
	rowIDs := ids(m.RowIDs, m.Rows)
	colIDs := uniqueNames(ids(m.ColIDs, m.Cols))

	distance = &Table{Name: name + "_distance", Key: []string{"id"}}
	flags = &Table{Name: name + "_access", Key: []string{"id"}}
	distance.Columns = append(distance.Columns, Column{"id", Text})
	flags.Columns = append(flags.Columns, Column{"id", Text})
	for _, c := range colIDs {
		distance.Columns = append(distance.Columns, Column{c, Real})
		flags.Columns = append(flags.Columns, Column{c, Integer})
	}

	distance.Rows = denseRows(rowIDs, m.Distance, false)
	flags.Rows = denseRows(rowIDs, m.Access, true)
	return distance, flags
}

// FromReach builds the per-building summary of the indexed form: how many B
// buildings each A building reaches.
func FromReach(name string, r *access.Reach, typeA, typeB string) *Table {
	pa, pb := Prefixes(typeA, typeB)
	t := &Table{
		Name: name,
		Columns: []Column{
			{pa + "_id", Text},
			{"reachable_" + pb, Integer},
			{"has_access", Integer},
		},
		Key: []string{pa + "_id"},
	}
	if r == nil {
		return t
	}
	seen := make(map[string]bool, len(r.IDs))
	for i, id := range r.IDs {
		if seen[id] {
			// Repeated A IDs cannot be upserted on the ID column.
			t.Key = nil
		}
		seen[id] = true
		t.Rows = append(t.Rows, []any{id, r.Counts[i], boolInt(r.HasAccess(i))})
	}
	return t
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// Prefixes turns two building type names into column prefixes. Identical
// types get _a and _b suffixes so the columns stay distinct.
func Prefixes(typeA, typeB string) (string, string) {
	pa, pb := prefix(typeA, "a"), prefix(typeB, "b")
	if pa == pb {
		return pa + "_a", pb + "_b"
	}
	return pa, pb
}

func prefix(s, fallback string) string {
	p := strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if p == "" {
		return fallback
	}
	if p[0] >= '0' && p[0] <= '9' {
		p = "t" + p
	}
	return p
}

func denseRows(rowIDs []string, d *mat.Dense, flag bool) [][]any {
	rows := make([][]any, len(rowIDs))
	for i, id := range rowIDs {
		row := []any{id}
		if d != nil {
			_, c := d.Dims()
			for j := 0; j < c; j++ {
				if flag {
					row = append(row, int(d.At(i, j)))
				} else {
					row = append(row, d.At(i, j))
				}
			}
		}
		rows[i] = row
	}
	return rows
}

func ids(given []string, n int) []string {
	if len(given) == n {
		return given
	}
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// uniqueNames suffixes repeated names with _2, _3 and so on.
func uniqueNames(names []string) []string {
	seen := make(map[string]int, len(names)+1)
	seen["id"] = 1
	out := make([]string, len(names))
	for i, n := range names {
		seen[n]++
		if c := seen[n]; c > 1 {
			n = n + "_" + strconv.Itoa(c)
		}
		out[i] = n
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func footprint(g geom.T) any {
	if g == nil {
		return nil
	}
	return g
}
