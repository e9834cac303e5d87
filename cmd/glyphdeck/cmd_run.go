package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glyphdeck/internal/cache"
	"glyphdeck/internal/chain"
	"glyphdeck/internal/dispatch"
	"glyphdeck/internal/export"
	"glyphdeck/internal/ingest"
	"glyphdeck/internal/provider"
	"glyphdeck/internal/records"
	"glyphdeck/internal/retry"
	"glyphdeck/internal/sanitiser"
	"glyphdeck/internal/schema"
	"glyphdeck/internal/usage"
)

// SourceTitle titles the record loaded from the input file.
const SourceTitle = "source"

// newProvider is replaced in tests.
var newProvider = provider.New

type runOptions struct {
	input       string
	idColumn    string
	columns     []string
	sheet       string
	validator   string
	title       string
	sanitise    bool
	noCache     bool
	job         string
	all         bool
	split       bool
	metricsAddr string
}

var runOpts runOptions

// runCmd annotates a file end to end
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Annotate text columns of a CSV or XLSX file",
	Long: `Loads the input file, optionally sanitises the selected columns, sends every
cell to the configured LLM provider and writes the structured results.

Example:
  glyphdeck run --input reviews.csv --id review_id --columns title,body \
    --validator sub_categories_sentiment --sanitise`,
	RunE: runAnnotate,
}

func registerRunFlags() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.input, "input", "i", "", "CSV or XLSX file to annotate")
	f.StringVar(&runOpts.idColumn, "id", "id", "Column holding unique row ids")
	f.StringSliceVar(&runOpts.columns, "columns", nil, "Columns to annotate, in order")
	f.StringVar(&runOpts.sheet, "sheet", "", "XLSX sheet (default: first sheet)")
	f.StringVar(&runOpts.validator, "validator", "", "Response validator (default: llm.validator)")
	f.StringVar(&runOpts.title, "title", "annotated", "Title of the annotation record")
	f.BoolVar(&runOpts.sanitise, "sanitise", false, "Replace private information before annotating")
	f.BoolVar(&runOpts.noCache, "no-cache", false, "Bypass the content cache")
	f.StringVar(&runOpts.job, "job", "", "Job id used in cache keys (default: input file name)")
	f.BoolVar(&runOpts.all, "all", false, "Export every record, not just the annotations")
	f.BoolVar(&runOpts.split, "split", false, "Export each record to its own file")
	f.StringVar(&runOpts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("columns")
}

// runSummary is what a run reports back to the user.
type runSummary struct {
	Job      string
	Record   *records.Record
	Stats    dispatch.Stats
	Scrubbed *sanitiser.Counts
	Usage    usage.TokenCounts
	Paths    []string
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	store, err := loadStore(runOpts.input, runOpts.idColumn, runOpts.columns, runOpts.sheet)
	if err != nil {
		return err
	}

	sum := runSummary{Job: jobID(runOpts.job, runOpts.input)}
	if runOpts.sanitise {
		counts, err := scrub(store)
		if err != nil {
			return err
		}
		sum.Scrubbed = &counts
	}

	name := runOpts.validator
	if name == "" {
		name = cfg.LLM.Validator
	}
	v, err := schema.Lookup(name)
	if err != nil {
		return err
	}

	p, err := newProvider(ctx, provider.Config{
		Name:    provider.Name(cfg.LLM.Provider),
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.GetTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	useCache := cfg.Cache.Enabled && !runOpts.noCache
	var c *cache.Cache
	if useCache {
		c, err = cache.Open(cfg.Cache.Dir, cache.Options{
			SizeMB:        cfg.Cache.SizeMB,
			MemoryEntries: cfg.Cache.MemoryEntries,
		})
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer c.Close()
	}

	tracker, err := usage.NewTracker(cfg.Cache.Dir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if runOpts.metricsAddr != "" {
		srv, err := startMetrics(runOpts.metricsAddr, reg)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer srv.Close()
	}

	initial, maxDelay := cfg.GetRetryDelays()
	d, err := dispatch.New(dispatch.Config{
		Provider:             p,
		Model:                cfg.LLM.Model,
		System:               cfg.LLM.SystemMessage,
		Validator:            v,
		Temperature:          cfg.LLM.Temperature,
		MaxValidationRetries: cfg.LLM.MaxValidationRetries,
		Preprepared:          int64(cfg.Limits.Preprepared),
		Awaiting:             int64(cfg.Limits.Awaiting),
		Cache:                c,
		UseCache:             useCache,
		Retry: retry.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: initial,
			MaxDelay:     maxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
		Usage:      tracker,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	logger.Info("Annotating",
		zap.String("input", runOpts.input),
		zap.String("job", sum.Job),
		zap.String("validator", v.Name()),
		zap.Strings("columns", runOpts.columns),
		zap.Bool("cache", useCache))

	ann := chain.NewAnnotator(store, d, sum.Job)
	sum.Record, sum.Stats, err = ann.Run(ctx, runOpts.title)
	if saveErr := tracker.Save(); saveErr != nil {
		logger.Warn("Failed to save usage", zap.Error(saveErr))
	}
	if err != nil {
		return fmt.Errorf("annotation failed: %w", err)
	}
	sum.Usage = tracker.Stats().ByJob[sum.Job]

	sum.Paths, err = writeOutput(ctx, store, outputOptions(store, runOpts.all, runOpts.split))
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderRunSummary(sum))
	return nil
}

// loadStore reads the input and seeds a store with it as the first record.
func loadStore(input, idColumn string, columns []string, sheet string) (*records.Store, error) {
	base, data, err := ingest.File(input, ingest.Options{IDColumn: idColumn, Columns: columns, Sheet: sheet})
	if err != nil {
		return nil, err
	}
	store, err := records.NewStore(base, idColumn)
	if err != nil {
		return nil, err
	}
	if _, err := store.Append(SourceTitle, data, columns, true); err != nil {
		return nil, err
	}
	return store, nil
}

// scrub sanitises the latest record using the configured groups and
// placeholders.
func scrub(store *records.Store) (sanitiser.Counts, error) {
	s := sanitiser.New()
	if len(cfg.Sanitiser.Groups) > 0 {
		if err := s.SelectGroups(cfg.Sanitiser.Groups); err != nil {
			return sanitiser.Counts{}, err
		}
	}
	if len(cfg.Sanitiser.Placeholders) > 0 {
		if err := s.SetPlaceholders(cfg.Sanitiser.Placeholders); err != nil {
			return sanitiser.Counts{}, err
		}
	}
	_, counts, err := chain.NewScrubber(store, s).Run(chain.DefaultScrubTitle)
	if err != nil {
		return sanitiser.Counts{}, fmt.Errorf("sanitise failed: %w", err)
	}
	logger.Info("Sanitised", zap.Int("replacements", counts.Total))
	return counts, nil
}

// jobID defaults to the input file name without extension.
func jobID(job, input string) string {
	if job != "" {
		return job
	}
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
}

// outputOptions picks the records to export. By default only the latest
// record is written, rebased onto the input rows.
func outputOptions(store *records.Store, all, split bool) records.OutputOptions {
	opts := records.DefaultOutputOptions()
	if all {
		opts.Keys = store.Keys()
	}
	if split {
		opts.Shape = records.ShapePairs
		opts.Combine = false
	}
	return opts
}

func newExporter(ctx context.Context) (*export.Exporter, error) {
	var up export.Uploader
	if s3cfg := cfg.Export.S3; s3cfg.Bucket != "" {
		u, err := export.NewS3Uploader(ctx, export.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			Prefix:    s3cfg.Prefix,
			PathStyle: s3cfg.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		up = u
	}
	return export.New(export.Options{
		Dir:    cfg.Export.Dir,
		Prefix: cfg.Export.Prefix,
		Format: export.Format(cfg.Export.Format),
		Sheets: cfg.Export.Sheets,
	}, up)
}

func writeOutput(ctx context.Context, store *records.Store, opts records.OutputOptions) ([]string, error) {
	out, err := store.Output(opts)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := exp.Write(ctx, out.Pairs())
	if err != nil {
		return paths, fmt.Errorf("export failed: %w", err)
	}
	return paths, nil
}
