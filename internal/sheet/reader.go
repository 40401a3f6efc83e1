// Package sheet reads and writes the tabular files used for bulk import and
// export: CSV and XLSX. Readers satisfy csvutil.Reader so both formats
// decode through the same csvutil path.
package sheet

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// RowReader yields one record per call and io.EOF when exhausted.
type RowReader interface {
	Read() ([]string, error)
}

// Format is a tabular file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("sheet: unsupported file type %q", filepath.Ext(path))
	}
}

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // comment character (0 = none)
}

// NewCSVReader returns a RowReader over r. Fields are trimmed, byte-order
// marks are dropped and rows may have a variable number of fields.
func NewCSVReader(r io.Reader, opts CSVOptions) RowReader {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return &csvReader{r: reader, first: true}
}

type csvReader struct {
	r     *csv.Reader
	first bool
}

func (c *csvReader) Read() ([]string, error) {
	record, err := c.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read row")
	}
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
	if c.first && len(record) > 0 {
		record[0] = strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
	}
	c.first = false
	return record, nil
}

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// NewXLSXReader opens path and returns a RowReader over one sheet.
// Fully blank rows are skipped.
func NewXLSXReader(path string, opts XLSXOptions) (RowReader, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	return &xlsxReader{rows: sheet.Rows}, nil
}

type xlsxReader struct {
	rows []*xlsx.Row
	next int
}

func (x *xlsxReader) Read() ([]string, error) {
	for x.next < len(x.rows) {
		row := x.rows[x.next]
		x.next++
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		return cells, nil
	}
	return nil, io.EOF
}

// Open returns a RowReader for a CSV or XLSX file along with a close func.
func Open(path string) (RowReader, func() error, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, nil, err
	}
	switch format {
	case FormatXLSX:
		r, err := NewXLSXReader(path, XLSXOptions{})
		if err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "sheet: open %s", path)
		}
		return NewCSVReader(f, CSVOptions{}), f.Close, nil
	}
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

// Pad returns a RowReader that extends short rows with empty cells up to
// width. XLSX rows drop trailing blank cells and CSV exports often do the
// same. Rows longer than width are trimmed when the extra cells are blank.
func Pad(r RowReader, width int) RowReader {
	return &padReader{r: r, width: width}
}

type padReader struct {
	r     RowReader
	width int
}

func (p *padReader) Read() ([]string, error) {
	record, err := p.r.Read()
	if err != nil {
		return nil, err
	}
	for len(record) < p.width {
		record = append(record, "")
	}
	if len(record) > p.width && isBlank(record[p.width:]) {
		record = record[:p.width]
	}
	return record, nil
}
