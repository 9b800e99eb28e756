// Package sheet reads client, mapping and prospect spreadsheets exported as
// CSV or XLSX.
package sheet

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// Options configures how a sheet is read.
type Options struct {
	SheetName string // xlsx only; default is the first sheet
	Encoding  string // csv only, e.g. "latin1"; default utf-8
	Delimiter rune   // csv only; default ','
}

// Table is a sheet split into its header and data rows. Blank rows are
// dropped; Lines keeps the 1-based source line of each row.
type Table struct {
	Header []string
	Rows   [][]string
	Lines  []int
}

// Read opens path and parses it by extension.
func Read(ctx context.Context, path string, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(ctx, path, opts)
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "sheet: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, opts)
	default:
		return nil, eris.Errorf("sheet: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses CSV from r, decoding from opts.Encoding when set.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (*Table, error) {
	if opts.Encoding != "" {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "sheet: unsupported encoding %q", opts.Encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	t := &Table{}
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "sheet: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "sheet: read csv row")
		}
		line, _ := reader.FieldPos(0)
		t.add(record, line)
	}
	return t, nil
}

// ReadXLSX parses the selected sheet of an XLSX workbook.
func ReadXLSX(ctx context.Context, path string, opts Options) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open xlsx %s", path)
	}

	sh, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for i, row := range sh.Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "sheet: context cancelled")
		}
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		t.add(cells, i+1)
	}
	return t, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sh, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("sheet: sheet %q not found", name)
		}
		return sh, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("sheet: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func (t *Table) add(record []string, line int) {
	blank := true
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
		if record[i] != "" {
			blank = false
		}
	}
	if blank {
		return
	}
	if t.Header == nil {
		record[0] = strings.TrimPrefix(record[0], "\ufeff")
		t.Header = record
		return
	}
	t.Rows = append(t.Rows, record)
	t.Lines = append(t.Lines, line)
}
