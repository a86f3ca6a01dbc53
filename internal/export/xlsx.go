package export

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/model"
)

// Workbook limits.
const (
	maxSheetName = 31
	maxSheetRows = 1_048_576
	maxCellChars = 32_767
)

// XLSXSink collects tables as sheets of one workbook, saved on Close.
type XLSXSink struct {
	path string
	file *xlsx.File
}

// NewXLSX returns a workbook sink. An empty path writes buildpop.xlsx.
func NewXLSX(path string) *XLSXSink {
	if path == "" {
		path = "buildpop.xlsx"
	}
	return &XLSXSink{path: path, file: xlsx.NewFile()}
}

// Write implements Sink.
func (s *XLSXSink) Write(_ context.Context, t *Table) error {
	if len(t.Rows)+1 > maxSheetRows {
		return &model.ConfigurationError{
			Setting: "output.driver",
			Reason:  fmt.Sprintf("table %s has %d rows, more than a worksheet holds", t.Name, len(t.Rows)),
		}
	}

	name := t.Name
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	sheet, err := s.file.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}

	header := sheet.AddRow()
	for _, c := range t.Columns {
		header.AddCell().SetString(c.Name)
	}

	var truncated int
	for _, r := range t.Rows {
		row := sheet.AddRow()
		for _, v := range r {
			cell := row.AddCell()
			switch x := v.(type) {
			case nil:
			case int:
				cell.SetInt(x)
			case float64:
				cell.SetFloat(x)
			default:
				text := FormatValue(x)
				if len(text) > maxCellChars {
					text = ""
					truncated++
				}
				cell.SetString(text)
			}
		}
	}

	if truncated > 0 {
		zap.L().Warn("cells too long for a worksheet were left blank",
			zap.String("component", "export.xlsx"),
			zap.String("sheet", name),
			zap.Int("cells", truncated),
		)
	}
	return nil
}

// Close saves the workbook.
func (s *XLSXSink) Close() error {
	if len(s.file.Sheets) == 0 {
		return nil
	}
	if err := s.file.Save(s.path); err != nil {
		return eris.Wrapf(err, "export: save %s", s.path)
	}
	zap.L().Info("workbook written",
		zap.String("component", "export.xlsx"),
		zap.String("path", s.path),
		zap.Int("sheets", len(s.file.Sheets)),
	)
	return nil
}
