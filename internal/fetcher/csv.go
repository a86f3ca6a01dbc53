// Package fetcher downloads remote archives and streams delimited files.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune   // default ','
	Comment    rune   // comment character (0 = none)
	Charset    string // source encoding label, e.g. "windows-1252"; empty = UTF-8
	LazyQuotes bool
	TrimSpace  bool
}

// Header maps column names to positions.
type Header struct {
	names []string
	index map[string]int
	fold  map[string]int
}

// NewHeader indexes a header row. A leading UTF-8 byte order mark is dropped.
func NewHeader(names []string) *Header {
	h := &Header{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
		fold:  make(map[string]int, len(names)),
	}
	for i, n := range names {
		if i == 0 {
			n = strings.TrimPrefix(n, "\ufeff")
		}
		h.names[i] = n
		if _, dup := h.index[n]; !dup {
			h.index[n] = i
		}
		if _, dup := h.fold[strings.ToLower(n)]; !dup {
			h.fold[strings.ToLower(n)] = i
		}
	}
	return h
}

// Names returns the column names in file order.
func (h *Header) Names() []string {
	return h.names
}

// Index returns the position of a column. Exact matches win over
// case-insensitive ones.
func (h *Header) Index(name string) (int, bool) {
	if i, ok := h.index[name]; ok {
		return i, true
	}
	i, ok := h.fold[strings.ToLower(name)]
	return i, ok
}

// Missing returns the names that are not columns of h.
func (h *Header) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := h.Index(n); !ok {
			out = append(out, n)
		}
	}
	return out
}

// Row is one data row. Line is 1-based and counts the header.
type Row struct {
	Line   int
	Fields []string
	header *Header
}

// Get returns the value of a named column, or "" when the column is absent
// or the row is short.
func (r Row) Get(name string) string {
	i, ok := r.header.Index(name)
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// CSVStream is a header plus the channels that carry the remaining rows.
// Both channels are closed when processing completes.
type CSVStream struct {
	Header *Header
	Rows   <-chan Row
	Errs   <-chan error
}

// StreamCSV reads the header row synchronously and then streams data rows.
// Callers must drain Rows before reading Errs.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*CSVStream, error) {
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, eris.Wrapf(err, "csv: unsupported charset %q", opts.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	first, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: empty input, no header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	if opts.TrimSpace {
		trimAll(first)
	}
	header := NewHeader(first)

	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		line := 1
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			line++
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read line %d", line)
				return
			}
			if opts.TrimSpace {
				trimAll(record)
			}

			select {
			case rowCh <- Row{Line: line, Fields: record, header: header}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return &CSVStream{Header: header, Rows: rowCh, Errs: errCh}, nil
}

// Collect drains a stream into memory.
func (s *CSVStream) Collect() ([]Row, error) {
	var rows []Row
	for row := range s.Rows {
		rows = append(rows, row)
	}
	for err := range s.Errs {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func trimAll(record []string) {
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
}

// WriteCSV writes a header and rows with encoding/csv.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "csv: write rows")
	}
	return nil
}
