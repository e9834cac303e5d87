package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glyphdeck/internal/provider"
	"glyphdeck/internal/records"
	"glyphdeck/internal/schema"
	"glyphdeck/internal/types"
)

type echoProvider struct {
	mu    sync.Mutex
	texts []string
}

func (p *echoProvider) Name() provider.Name { return provider.OpenAI }

func (p *echoProvider) Annotate(_ context.Context, req provider.Request) (provider.Response, error) {
	p.mu.Lock()
	p.texts = append(p.texts, req.User)
	p.mu.Unlock()
	score := 0.5
	if strings.Contains(req.User, "awful") {
		score = -0.75
	}
	return provider.Response{
		Result: schema.Result{{Field: "sentiment_score", Value: score}},
		Usage:  provider.Usage{InputTokens: 10, OutputTokens: 2},
	}, nil
}

func (p *echoProvider) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

// setupWorkspace writes an input file and a config pointing every directory
// into a temp dir, then loads it.
func setupWorkspace(t *testing.T, csv string) (dir, input string) {
	t.Helper()
	dir = t.TempDir()
	input = filepath.Join(dir, "reviews.csv")
	require.NoError(t, os.WriteFile(input, []byte(csv), 0644))

	conf := fmt.Sprintf(`llm:
  provider: openai
  model: test-model
  validator: sentiment
cache:
  enabled: true
  dir: %s
  size_mb: 10
export:
  dir: %s
  prefix: test
  format: csv
logging:
  dir: %s
`, filepath.Join(dir, "cache"), filepath.Join(dir, "out"), filepath.Join(dir, "logs"))
	cfgPath = filepath.Join(dir, "glyphdeck.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(conf), 0644))

	timeout = time.Minute
	verbose = false
	require.NoError(t, setup())
	return dir, input
}

func useProvider(t *testing.T, p provider.Provider) {
	t.Helper()
	orig := newProvider
	newProvider = func(context.Context, provider.Config) (provider.Provider, error) { return p, nil }
	t.Cleanup(func() { newProvider = orig })
}

func runWith(t *testing.T, opts runOptions) (string, error) {
	t.Helper()
	orig := runOpts
	runOpts = opts
	t.Cleanup(func() { runOpts = orig })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	err := runAnnotate(cmd, nil)
	return out.String(), err
}

func readOutputs(t *testing.T, dir string) []string {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "out", "*.csv"))
	require.NoError(t, err)
	var contents []string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		contents = append(contents, string(b))
	}
	return contents
}

const reviewsCSV = "id,comment\n1,great product\n2,awful support\n"

func TestRunAnnotateEndToEnd(t *testing.T) {
	dir, input := setupWorkspace(t, reviewsCSV)
	p := &echoProvider{}
	useProvider(t, p)

	out, err := runWith(t, runOptions{input: input, idColumn: "id", columns: []string{"comment"}, title: "annotated"})
	require.NoError(t, err)
	assert.Contains(t, out, "Annotation complete")
	assert.Contains(t, out, "reviews")
	assert.ElementsMatch(t, []string{"great product", "awful support"}, p.seen())

	files := readOutputs(t, dir)
	require.Len(t, files, 1)
	lines := strings.Split(strings.TrimSpace(files[0]), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,comment,comment_sentiment_score", strings.TrimSpace(lines[0]))
	assert.Equal(t, "1,great product,0.5", strings.TrimSpace(lines[1]))
	assert.Equal(t, "2,awful support,-0.75", strings.TrimSpace(lines[2]))

	_, err = os.Stat(filepath.Join(dir, "cache", "usage.json"))
	assert.NoError(t, err)
}

func TestRunAnnotateReusesCache(t *testing.T) {
	_, input := setupWorkspace(t, reviewsCSV)
	p := &echoProvider{}
	useProvider(t, p)

	opts := runOptions{input: input, idColumn: "id", columns: []string{"comment"}, title: "annotated"}
	_, err := runWith(t, opts)
	require.NoError(t, err)
	require.Len(t, p.seen(), 2)

	out, err := runWith(t, opts)
	require.NoError(t, err)
	assert.Len(t, p.seen(), 2, "second run should be served from the cache")
	assert.Contains(t, out, "Cache hits")

	opts.noCache = true
	_, err = runWith(t, opts)
	require.NoError(t, err)
	assert.Len(t, p.seen(), 4)
}

func TestRunAnnotateSanitisesFirst(t *testing.T) {
	dir, input := setupWorkspace(t, "id,comment\n1,write to jo@example.com\n")
	p := &echoProvider{}
	useProvider(t, p)

	out, err := runWith(t, runOptions{
		input: input, idColumn: "id", columns: []string{"comment"},
		title: "annotated", sanitise: true, all: true, noCache: true,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Sanitised")
	assert.Equal(t, []string{"write to <EMAIL>"}, p.seen())

	files := readOutputs(t, dir)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "comment_sanitised")
	assert.Contains(t, files[0], "write to <EMAIL>")
	assert.Contains(t, files[0], "jo@example.com")
}

func TestRunAnnotateUnknownValidator(t *testing.T) {
	_, input := setupWorkspace(t, reviewsCSV)
	useProvider(t, &echoProvider{})

	_, err := runWith(t, runOptions{input: input, idColumn: "id", columns: []string{"comment"}, validator: "nope"})
	assert.ErrorIs(t, err, schema.ErrUnknownValidator)
}

func TestRunSanitiseCommand(t *testing.T) {
	dir, input := setupWorkspace(t, "id,comment\n1,see https://example.com/a on 31/01/2024\n")
	orig := sanitiseOpts
	sanitiseOpts.input, sanitiseOpts.idColumn, sanitiseOpts.columns = input, "id", []string{"comment"}
	t.Cleanup(func() { sanitiseOpts = orig })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runSanitise(cmd, nil))
	assert.Contains(t, out.String(), "Wrote")

	files := readOutputs(t, dir)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "see <URL> on <DATE>")
}

func TestJobID(t *testing.T) {
	assert.Equal(t, "explicit", jobID("explicit", "data/reviews.csv"))
	assert.Equal(t, "reviews", jobID("", "data/reviews.csv"))
}

func TestOutputOptions(t *testing.T) {
	base := &types.Frame{
		Columns: []string{"id", "comment"},
		Index:   []types.RowID{"1"},
		Rows:    [][]types.Value{{int64(1), "x"}},
	}
	store, err := records.NewStore(base, "id")
	require.NoError(t, err)
	data := types.TableFromRows([]types.RowID{"1"}, []types.Row{{"x"}})
	_, err = store.Append("a", data, nil, false)
	require.NoError(t, err)
	_, err = store.Append("b", data, nil, false)
	require.NoError(t, err)

	opts := outputOptions(store, false, false)
	assert.Equal(t, records.DefaultOutputOptions(), opts)

	opts = outputOptions(store, true, true)
	assert.Equal(t, []int{1, 2}, opts.Keys)
	assert.Equal(t, records.ShapePairs, opts.Shape)
	assert.False(t, opts.Combine)
}

func TestListValidators(t *testing.T) {
	setupWorkspace(t, reviewsCSV)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, listValidators(cmd, nil))
	assert.Contains(t, out.String(), "sub_categories_per_item_sentiment")
	assert.Contains(t, out.String(), "sentiment_score")
	assert.Contains(t, out.String(), "* ")
}

func TestCacheCommands(t *testing.T) {
	setupWorkspace(t, reviewsCSV)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, cacheStats(cmd, nil))
	assert.Contains(t, out.String(), "Entries: 0")

	out.Reset()
	require.NoError(t, cacheClear(cmd, nil))
	assert.Contains(t, out.String(), "Cache cleared")

	out.Reset()
	require.NoError(t, showUsage(cmd, nil))
	assert.Contains(t, out.String(), "Requests: 0")
}

func TestMetricsServer(t *testing.T) {
	setupWorkspace(t, reviewsCSV)

	srv, err := startMetrics("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
