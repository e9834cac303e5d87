package export

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"glyphdeck/internal/records"
	"glyphdeck/internal/types"
)

var fixed = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func frames() []records.TitledFrame {
	return []records.TitledFrame{
		{Title: "A", Frame: types.Frame{
			Columns: []string{"id", "comment"},
			Index:   []types.RowID{"1", "2"},
			Rows:    [][]types.Value{{int64(1), "x"}, {int64(2), nil}},
		}},
		{Title: "B: scores", Frame: types.Frame{
			Columns: []string{"id", "score"},
			Index:   []types.RowID{"1", "2"},
			Rows:    [][]types.Value{{int64(1), 0.5}, {int64(2), -0.25}},
		}},
	}
}

func newExporter(t *testing.T, opts Options, up Uploader) *Exporter {
	t.Helper()
	e, err := New(opts, up)
	require.NoError(t, err)
	e.now = func() time.Time { return fixed }
	return e
}

func TestFileName(t *testing.T) {
	e := newExporter(t, Options{Prefix: "survey", Format: FormatCSV}, nil)
	assert.Equal(t, "survey - A - 2025-03-04 05-06-07.csv", e.FileName("A", fixed))
	assert.Equal(t, "survey - B_ scores - 2025-03-04 05-06-07.csv", e.FileName("B: scores", fixed))

	e = newExporter(t, Options{Format: FormatXLSX}, nil)
	assert.Equal(t, "A - 2025-03-04 05-06-07.xlsx", e.FileName("A", fixed))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Format: "json"}, nil)
	assert.Error(t, err)
	_, err = New(Options{Format: FormatCSV, Sheets: true}, nil)
	assert.Error(t, err)

	e, err := New(Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, e.opts.Format)
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	e := newExporter(t, Options{Dir: dir, Prefix: "out", Format: FormatCSV}, nil)

	paths, err := e.Write(context.Background(), frames())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "comment"}, {"1", "x"}, {"2", ""}}, recs)
	assert.Equal(t, "out - A - 2025-03-04 05-06-07.csv", filepath.Base(paths[0]))
}

func TestWriteSheets(t *testing.T) {
	dir := t.TempDir()
	e := newExporter(t, Options{Dir: dir, Format: FormatXLSX, Sheets: true}, nil)

	paths, err := e.Write(context.Background(), frames())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "workbook - 2025-03-04 05-06-07.xlsx", filepath.Base(paths[0]))

	wb, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"A", "B scores"}, wb.GetSheetList())

	rows, err := wb.GetRows("B scores")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "score"}, {"1", "0.5"}, {"2", "-0.25"}}, rows)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "ab", SheetName("a[]b"))
	assert.Equal(t, "sheet", SheetName("///"))
	long := strings.Repeat("x", 40)
	assert.Len(t, SheetName(long), 31)

	used := map[string]bool{}
	assert.Equal(t, long[:31], uniqueSheet(SheetName(long), used))
	second := uniqueSheet(SheetName(long), used)
	assert.Len(t, second, 31)
	assert.True(t, strings.HasSuffix(second, " (2)"))
}

// putRecorder is an http.RoundTripper that accepts every PutObject.
type putRecorder struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (p *putRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	p.mu.Lock()
	if req.Method == http.MethodPut {
		p.puts[req.URL.Path] = body
	}
	p.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Etag": []string{`"etag"`}},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestWriteUploadsToS3(t *testing.T) {
	rt := &putRecorder{puts: map[string][]byte{}}
	up, err := NewS3Uploader(context.Background(), S3Config{
		Bucket:          "exports",
		Endpoint:        "http://mock.s3.local",
		Prefix:          "runs",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	assert.Equal(t, "runs/x.csv", up.Key("x.csv"))

	e := newExporter(t, Options{Dir: t.TempDir(), Format: FormatCSV}, up)
	paths, err := e.Write(context.Background(), frames()[:1])
	require.NoError(t, err)
	require.Len(t, paths, 1)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.Len(t, rt.puts, 1)
	for p := range rt.puts {
		assert.True(t, strings.HasPrefix(p, "/exports/runs/"), p)
		assert.True(t, strings.HasSuffix(p, ".csv"), p)
	}
}

func TestS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{})
	assert.Error(t, err)
}
