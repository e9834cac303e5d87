// Package ingest loads tabular sources into a base frame plus the DataTable
// of the columns to annotate.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"glyphdeck/internal/logging"
	"glyphdeck/internal/types"
)

var (
	// ErrUnsupportedFile is returned for extensions other than csv and xlsx.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrDuplicateID is returned when the id column repeats a value.
	ErrDuplicateID = errors.New("id column is not unique")
	// ErrMissingColumn is returned when a named column does not exist.
	ErrMissingColumn = errors.New("column not found")
)

// Options selects the id column and the data columns, in order.
type Options struct {
	IDColumn string
	Columns  []string
	Sheet    string // xlsx only; defaults to the first sheet
}

// File reads a .csv or .xlsx file.
func File(path string, opts Options) (*types.Frame, *types.DataTable, error) {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var (
		frame *types.Frame
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		frame, err = ReadCSV(f, title)
	case ".xlsx", ".xlsm":
		frame, err = ReadXLSX(path, opts.Sheet)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	data, err := Select(frame, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Ingest("loaded %s: %d rows, id=%s columns=%v", path, data.Len(), opts.IDColumn, opts.Columns)
	return frame, data, nil
}

// ReadCSV parses a CSV document whose first record is the header.
func ReadCSV(r io.Reader, title string) (*types.Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return fromRecords(title, records)
}

// ReadXLSX reads one sheet of a workbook. The first row is the header.
func ReadXLSX(path, sheet string) (*types.Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	return fromRecords(sheet, rows)
}

func fromRecords(title string, records [][]string) (*types.Frame, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	f := &types.Frame{Title: title, Columns: header}
	for n, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d cells for %d columns", n+2, len(rec), len(header))
		}
		if blank(rec) {
			continue
		}
		row := make([]types.Value, len(header))
		for i := range row {
			if i < len(rec) {
				row[i] = rec[i]
			} else {
				row[i] = ""
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Select builds the DataTable for opts from f, keyed by the id column. It
// also sets f.Index and converts integer ids to int64 in place.
func Select(f *types.Frame, opts Options) (*types.DataTable, error) {
	if opts.IDColumn == "" {
		return nil, fmt.Errorf("id column name required")
	}
	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("at least one data column required")
	}
	idPos := f.ColumnIndex(opts.IDColumn)
	if idPos < 0 {
		return nil, fmt.Errorf("%w: id column %q (have %v)", ErrMissingColumn, opts.IDColumn, f.Columns)
	}
	positions := make([]int, len(opts.Columns))
	for i, c := range opts.Columns {
		positions[i] = f.ColumnIndex(c)
		if positions[i] < 0 {
			return nil, fmt.Errorf("%w: %q (have %v)", ErrMissingColumn, c, f.Columns)
		}
	}

	data := types.NewDataTable()
	f.Index = make([]types.RowID, len(f.Rows))
	for r, row := range f.Rows {
		row[idPos] = idValue(row[idPos])
		id := types.NewRowID(row[idPos])
		if id == "" {
			return nil, fmt.Errorf("row %d has an empty id", r+1)
		}
		if data.Has(id) {
			return nil, fmt.Errorf("%w: %q repeats", ErrDuplicateID, id)
		}
		values := make(types.Row, len(positions))
		for i, p := range positions {
			values[i] = row[p]
		}
		data.Set(id, values)
		f.Index[r] = id
	}
	if data.Len() == 0 {
		logging.IngestWarn("source %q has no data rows", f.Title)
	}
	return data, nil
}

func idValue(v types.Value) types.Value {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
