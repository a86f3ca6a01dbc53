package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/buildpop/internal/building"
	"github.com/sells-group/buildpop/internal/model"
)

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Path: dir})
	require.NoError(t, err)
	assert.IsType(t, &CSVSink{}, s)

	s, err = Open(ctx, Options{Driver: "XLSX", Path: filepath.Join(dir, "out.xlsx")})
	require.NoError(t, err)
	assert.IsType(t, &XLSXSink{}, s)

	s, err = Open(ctx, Options{Driver: "shapefile", Path: dir})
	require.NoError(t, err)
	assert.IsType(t, &ShapefileSink{}, s)

	s, err = Open(ctx, Options{Driver: "sqlite", Path: filepath.Join(dir, "out.db")})
	require.NoError(t, err)
	sq := s.(*SQLiteSink)
	assert.NotEmpty(t, sq.RunID())
	require.NoError(t, s.Close())
}

func TestOpen_Errors(t *testing.T) {
	var ce *model.ConfigurationError

	_, err := Open(context.Background(), Options{Driver: "parquet"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "output.driver", ce.Setting)

	_, err = Open(context.Background(), Options{Driver: "postgres"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "output.database_url", ce.Setting)
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewCSV(dir)
	require.NoError(t, s.Write(context.Background(), FromAllocations("building_population", testAllocations())))
	require.NoError(t, s.Close())

	f, err := os.Open(filepath.Join(dir, "building_population.csv"))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, []string{"b1", "2-Unit Residential", "42003020100", "2", "2.5", "0", "5"}, records[1][:7])
	assert.Contains(t, records[1][9], "POLYGON")
	assert.Equal(t, []string{"b2", "1-Unit Residential", "", "1", "", "0", "0", "", "", ""}, records[2])
}

func TestXLSXSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	s := NewXLSX(path)

	pairs := FromPairs("access_pairs_for_residential_and_commercial", []model.AccessPair{
		{AID: "r1", BID: "c1", DistanceMiles: 0.5, Access: 1},
	}, "Residential", "Commercial")
	require.NoError(t, s.Write(context.Background(), pairs))
	require.NoError(t, s.Write(context.Background(), FromAllocations("population", testAllocations())))
	require.NoError(t, s.Close())

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sheet := f.Sheets[0]
	assert.Equal(t, "access_pairs_for_residential_an", sheet.Name)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "residential_id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "r1", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "c1", sheet.Rows[1].Cells[4].String())

	pop := f.Sheet["population"]
	require.NotNil(t, pop)
	assert.Len(t, pop.Rows, 3)
}

func TestXLSXSink_EmptyWorkbookNotSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.xlsx")
	require.NoError(t, NewXLSX(path).Close())
	assert.NoFileExists(t, path)
}

func TestShapefileSink(t *testing.T) {
	dir := t.TempDir()
	s := NewShapefile(dir)
	require.NoError(t, s.Write(context.Background(), FromAllocations("building_population", testAllocations())))

	got, err := building.Read(filepath.Join(dir, "building_population.shp"), building.Options{IDField: "id"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, "2-Unit Residential", got[0].Label)
	assert.Equal(t, "42003020100", got[0].TractGEOID)
	assert.Equal(t, "5", got[0].Attributes["population"])
	assert.Equal(t, model.EPSGWGS84, got[0].CRS)
}

func TestShapefileSink_NeedsGeometry(t *testing.T) {
	s := NewShapefile(t.TempDir())
	err := s.Write(context.Background(), FromPairs("access", nil, "a", "b"))
	var ce *model.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}
