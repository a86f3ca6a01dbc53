package building

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/buildpop/internal/geo"
	"github.com/sells-group/buildpop/internal/model"
)

// square returns a clockwise shapefile ring of the given size.
func square(x, y, size float64) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y},
	}}))
	return &p
}

type record struct {
	shape shp.Shape
	attrs []string
}

func writeLayer(t *testing.T, path string, fields []shp.Field, records []record) {
	t.Helper()
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))
	for _, r := range records {
		row := int(w.Write(r.shape))
		for i, v := range r.attrs {
			require.NoError(t, w.WriteAttribute(row, i, v))
		}
	}
	w.Close()
}

func testLayer(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "buildings.shp")
	writeLayer(t, path,
		[]shp.Field{shp.StringField("bldg_id", 10), shp.StringField("class_reco", 40)},
		[]record{
			{square(-80.0, 40.0, 0.0005), []string{"b1", "1-Unit Residential"}},
			{square(-80.1, 40.1, 0.0005), []string{"b2", "Commercial"}},
			{square(-80.2, 40.2, 0.0005), []string{"b3", "Single Family"}},
		})
	return path
}

func TestRead(t *testing.T) {
	path := testLayer(t, t.TempDir())

	got, err := Read(path, Options{IDField: "bldg_id"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, "1-Unit Residential", got[0].Label)
	assert.Equal(t, model.ClassOneUnit, got[0].Class)
	assert.Equal(t, model.EPSGWGS84, got[0].CRS)
	assert.Equal(t, "Commercial", got[1].Attributes["class_reco"])
	assert.Equal(t, model.ClassUnknown, got[2].Class)
	assert.Empty(t, got[0].TractGEOID)

	mp, ok := got[0].Footprint.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestRead_OrdinalIDs(t *testing.T) {
	got, err := Read(testLayer(t, t.TempDir()), Options{})
	require.NoError(t, err)
	assert.Equal(t, "0", got[0].ID)
	assert.Equal(t, "2", got[2].ID)
}

func TestRead_Aliases(t *testing.T) {
	classes, err := ParseAliases([]byte("aliases:\n  Single Family: one_unit\n"))
	require.NoError(t, err)

	got, err := Read(testLayer(t, t.TempDir()), Options{Classes: classes})
	require.NoError(t, err)
	assert.Equal(t, model.ClassOneUnit, got[2].Class)
	assert.Equal(t, "Single Family", got[2].Label)
}

func TestRead_MissingFields(t *testing.T) {
	path := testLayer(t, t.TempDir())

	_, err := Read(path, Options{ClassField: "occupancy"})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "occupancy", se.Field)

	_, err = Read(path, Options{IDField: "objectid"})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "objectid", se.Field)
}

func TestRead_ProjectedPRJ(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.shp")
	writeLayer(t, path,
		[]shp.Field{shp.StringField("class_reco", 40)},
		[]record{{square(1500000, 2000000, 10), []string{"1-Unit Residential"}}})
	require.NoError(t, geo.WritePRJ(path, model.EPSGAlbersUSA))

	got, err := Read(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.EPSGAlbersUSA, got[0].CRS)
}

func TestRead_Charset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.shp")
	writeLayer(t, path,
		[]shp.Field{shp.StringField("class_reco", 40), shp.StringField("name", 20)},
		[]record{{square(0, 0, 1), []string{"Commercial", "Caf\xe9"}}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cpg"), []byte("ISO-8859-1\n"), 0o644))

	got, err := Read(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Café", got[0].Attributes["name"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cpg"), []byte("klingon"), 0o644))
	_, err = Read(path, Options{})
	var ce *model.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestRead_Zip(t *testing.T) {
	dir := t.TempDir()
	src := testLayer(t, dir)

	zipPath := filepath.Join(dir, "buildings.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		w, err := zw.Create("layer/buildings" + ext)
		require.NoError(t, err)
		in, err := os.Open(src[:len(src)-4] + ext)
		require.NoError(t, err)
		_, err = io.Copy(w, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	got, err := Read(zipPath, Options{IDField: "bldg_id"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in, err := Read(testLayer(t, dir), Options{IDField: "bldg_id"})
	require.NoError(t, err)

	in[0].TractGEOID = "42003020100"
	in[0].Attributes["population"] = "2.2"
	in = append(in, model.Building{ID: "nogeom", Label: "Commercial"})

	out := filepath.Join(dir, "out.shp")
	skipped, err := Write(out, model.EPSGWGS84, in, []string{"population"})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	back, err := Read(out, Options{IDField: "id"})
	require.NoError(t, err)
	require.Len(t, back, 3)
	assert.Equal(t, "b1", back[0].ID)
	assert.Equal(t, "42003020100", back[0].TractGEOID)
	assert.Equal(t, "2.2", back[0].Attributes["population"])
	assert.Equal(t, in[0].Footprint.FlatCoords(), back[0].Footprint.FlatCoords())
}

func TestWrite_BadPath(t *testing.T) {
	_, err := Write(filepath.Join(t.TempDir(), "out.gpkg"), model.EPSGWGS84, nil, nil)
	assert.Error(t, err)
}
