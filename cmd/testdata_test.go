package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buildpop/internal/config"
)

// testConfig loads the defaults from a directory without a config.yaml.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)
	return c
}

// square returns a clockwise shapefile ring with its lower-left corner at (x, y).
func square(x, y, size float64) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y},
	}}))
	return &p
}

type shpRecord struct {
	shape shp.Shape
	attrs []string
}

func writeShapefile(t *testing.T, path string, fields []shp.Field, records []shpRecord) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
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
	return path
}

// testBuildings writes four buildings: two residential inside the test
// tracts, one commercial and one residential outside every tract.
func testBuildings(t *testing.T) string {
	t.Helper()
	return writeShapefile(t, filepath.Join(t.TempDir(), "buildings.shp"),
		[]shp.Field{shp.StringField("bldg_id", 10), shp.StringField("class_reco", 40)},
		[]shpRecord{
			{square(-79.996, 40.004, 0.0002), []string{"b0", "1-Unit Residential"}},
			{square(-79.986, 40.004, 0.0002), []string{"b1", "4+ Unit Residential"}},
			{square(-79.995, 40.005, 0.0002), []string{"b2", "Commercial"}},
			{square(-79.5, 40.5, 0.0002), []string{"b3", "2-Unit Residential"}},
		})
}

const testACS = `,geo_id,name,B25010_001E,B01003_001E,geometry
0,1400000US42003020100,"Census Tract 201, Allegheny County, Pennsylvania",2.5,4000,"POLYGON ((-80 40, -79.99 40, -79.99 40.01, -80 40.01, -80 40))"
1,1400000US42003020200,"Census Tract 202, Allegheny County, Pennsylvania",,3100,"POLYGON ((-79.99 40, -79.98 40, -79.98 40.01, -79.99 40.01, -79.99 40))"
`

func testACSFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acs.csv")
	require.NoError(t, os.WriteFile(path, []byte(testACS), 0o644))
	return path
}
