// Package export writes titled frames to timestamped CSV or XLSX files and
// optionally uploads them to S3.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"glyphdeck/internal/logging"
	"glyphdeck/internal/records"
	"glyphdeck/internal/types"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	timestampLayout = "2006-01-02 15-04-05"
	maxSheetName    = 31
	workbookTitle   = "workbook"
)

// Options configures an Exporter.
type Options struct {
	Dir    string
	Prefix string
	Format Format
	// Sheets writes every frame to its own sheet of one workbook. XLSX only.
	Sheets bool
}

// Uploader copies a written file to remote storage.
type Uploader interface {
	Upload(ctx context.Context, name, path string) error
}

// Exporter writes frames according to its options.
type Exporter struct {
	opts     Options
	uploader Uploader
	now      func() time.Time
}

// New validates opts. uploader may be nil.
func New(opts Options, uploader Uploader) (*Exporter, error) {
	switch opts.Format {
	case FormatCSV, FormatXLSX:
	case "":
		opts.Format = FormatCSV
	default:
		return nil, fmt.Errorf("unsupported export format %q", opts.Format)
	}
	if opts.Sheets && opts.Format != FormatXLSX {
		return nil, fmt.Errorf("sheets mode requires the xlsx format")
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Exporter{opts: opts, uploader: uploader, now: time.Now}, nil
}

// FileName builds "<prefix> - <title> - <timestamp>.<ext>".
func (e *Exporter) FileName(title string, at time.Time) string {
	name := cleanName(title) + " - " + at.Format(timestampLayout) + "." + string(e.opts.Format)
	if e.opts.Prefix != "" {
		name = cleanName(e.opts.Prefix) + " - " + name
	}
	return name
}

// Write writes frames and returns the paths created. Every file of one call
// shares a timestamp.
func (e *Exporter) Write(ctx context.Context, frames []records.TitledFrame) ([]string, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}
	if err := os.MkdirAll(e.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	at := e.now()

	var paths []string
	if e.opts.Sheets {
		title := workbookTitle
		if len(frames) == 1 {
			title = frames[0].Title
		}
		path := filepath.Join(e.opts.Dir, e.FileName(title, at))
		if err := writeWorkbook(path, frames); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	} else {
		for _, tf := range frames {
			path := filepath.Join(e.opts.Dir, e.FileName(tf.Title, at))
			var err error
			if e.opts.Format == FormatXLSX {
				err = writeWorkbook(path, []records.TitledFrame{tf})
			} else {
				err = writeCSV(path, tf.Frame)
			}
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}

	for _, p := range paths {
		logging.Export("wrote %s", p)
		if e.uploader == nil {
			continue
		}
		if err := e.uploader.Upload(ctx, filepath.Base(p), p); err != nil {
			logging.ExportError("upload %s failed: %v", p, err)
			return paths, fmt.Errorf("upload %s: %w", filepath.Base(p), err)
		}
	}
	return paths, nil
}

func writeCSV(path string, f types.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if err := w.Write(f.Columns); err != nil {
		file.Close()
		return err
	}
	rec := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for i, v := range row {
			rec[i] = types.FormatValue(v)
		}
		if err := w.Write(rec); err != nil {
			file.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeWorkbook(path string, frames []records.TitledFrame) error {
	wb := excelize.NewFile()
	defer wb.Close()

	used := map[string]bool{}
	for i, tf := range frames {
		name := uniqueSheet(SheetName(tf.Title), used)
		if i == 0 {
			if err := wb.SetSheetName(wb.GetSheetName(0), name); err != nil {
				return err
			}
		} else if _, err := wb.NewSheet(name); err != nil {
			return err
		}
		if err := writeSheet(wb, name, tf.Frame); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
	}
	return wb.SaveAs(path)
}

func writeSheet(wb *excelize.File, sheet string, f types.Frame) error {
	header := make([]interface{}, len(f.Columns))
	for i, c := range f.Columns {
		header[i] = c
	}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for r, row := range f.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			switch v.(type) {
			case nil:
				cells[i] = ""
			case string, int64, int, float64, float32, bool, time.Time:
				cells[i] = v
			default:
				cells[i] = types.FormatValue(v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

// SheetName strips characters Excel rejects and truncates to 31 characters.
func SheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]\/:*?"<>|`, r) {
			return -1
		}
		return r
	}, title)
	name = strings.Trim(name, "' ")
	if name == "" {
		name = "sheet"
	}
	return truncate(name, maxSheetName)
}

func uniqueSheet(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncate(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func cleanName(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, s)
}
