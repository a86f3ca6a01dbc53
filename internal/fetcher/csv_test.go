package fetcher

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(t *testing.T, input string, opts CSVOptions) (*Header, []Row) {
	t.Helper()
	s, err := StreamCSV(context.Background(), strings.NewReader(input), opts)
	require.NoError(t, err)
	rows, err := s.Collect()
	require.NoError(t, err)
	return s.Header, rows
}

func TestStreamCSV_Basic(t *testing.T) {
	header, rows := stream(t, "geo_id,name,B25010_001E\n1400000US42003010300,Tract 103,2.41\n1400000US42003020100,Tract 201,\n", CSVOptions{})

	assert.Equal(t, []string{"geo_id", "name", "B25010_001E"}, header.Names())
	require.Len(t, rows, 2)
	assert.Equal(t, "Tract 103", rows[0].Get("name"))
	assert.Equal(t, "2.41", rows[0].Get("B25010_001E"))
	assert.Equal(t, "", rows[1].Get("B25010_001E"))
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, 3, rows[1].Line)
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	_, rows := stream(t, "a|b|c\n1|2|3\n", CSVOptions{Delimiter: '|'})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "2", "3"}, rows[0].Fields)
}

func TestHeader_Lookup(t *testing.T) {
	h := NewHeader([]string{"\ufeffGEO_ID", "Name", "name"})

	i, ok := h.Index("GEO_ID")
	require.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = h.Index("geo_id")
	require.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = h.Index("name")
	require.True(t, ok)
	assert.Equal(t, 2, i, "exact match wins")

	assert.Equal(t, []string{"geometry"}, h.Missing("geo_id", "geometry"))
	assert.Empty(t, h.Missing())
}

func TestRow_ShortRow(t *testing.T) {
	_, rows := stream(t, "a,b,c\n1\n", CSVOptions{})
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Get("a"))
	assert.Equal(t, "", rows[0].Get("c"))
	assert.Equal(t, "", rows[0].Get("zzz"))
}

func TestStreamCSV_Empty(t *testing.T) {
	_, err := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header")
}

func TestStreamCSV_HeaderOnly(t *testing.T) {
	header, rows := stream(t, "a,b\n", CSVOptions{})
	assert.Equal(t, []string{"a", "b"}, header.Names())
	assert.Empty(t, rows)
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := "a,b,c\n1,\"hello \"world\",3\n"
	_, rows := stream(t, input, CSVOptions{LazyQuotes: true})
	require.Len(t, rows, 1)
}

func TestStreamCSV_MalformedReportsLine(t *testing.T) {
	s, err := StreamCSV(context.Background(), strings.NewReader("a,b\n1,2\n3,\"x\"y\n"), CSVOptions{})
	require.NoError(t, err)
	rows, err := s.Collect()
	require.Error(t, err)
	assert.Len(t, rows, 1)
	assert.Contains(t, err.Error(), "line 3")
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	header, rows := stream(t, " a , b \n 1 , 2 \n", CSVOptions{TrimSpace: true})
	assert.Equal(t, []string{"a", "b"}, header.Names())
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].Get("b"))
}

func TestStreamCSV_Comment(t *testing.T) {
	_, rows := stream(t, "# exported 2020\na,b\n1,2\n# note\n3,4\n", CSVOptions{Comment: '#'})
	require.Len(t, rows, 2)
	assert.Equal(t, "3", rows[1].Get("a"))
}

func TestStreamCSV_Charset(t *testing.T) {
	input := []byte("name\nCaf\xe9 Tract\n")
	s, err := StreamCSV(context.Background(), bytes.NewReader(input), CSVOptions{Charset: "windows-1252"})
	require.NoError(t, err)
	rows, err := s.Collect()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Café Tract", rows[0].Get("name"))

	_, err = StreamCSV(context.Background(), bytes.NewReader(input), CSVOptions{Charset: "klingon"})
	assert.Error(t, err)
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b,c\n")
	for range 10000 {
		sb.WriteString("1,2,3\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})
	require.NoError(t, err)

	count := 0
	for range s.Rows {
		count++
		if count == 5 {
			cancel()
		}
	}
	var gotErr error
	for err := range s.Errs {
		gotErr = err
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
	assert.Less(t, count, 10000)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"geo_id", "name"}, [][]string{{"42003010300", "Tract 103, Allegheny"}}))
	assert.Equal(t, "geo_id,name\n42003010300,\"Tract 103, Allegheny\"\n", buf.String())
}
