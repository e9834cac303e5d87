// Package dispatch runs structured annotation requests for every item of a
// table with bounded concurrency, caching and retry, and reassembles the
// results by position.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"glyphdeck/internal/cache"
	"glyphdeck/internal/flatten"
	"glyphdeck/internal/logging"
	"glyphdeck/internal/provider"
	"glyphdeck/internal/retry"
	"glyphdeck/internal/schema"
	"glyphdeck/internal/types"
	"glyphdeck/internal/usage"
)

// Config configures a Dispatcher.
type Config struct {
	Provider             provider.Provider
	Model                string
	System               string
	Validator            schema.Validator
	Temperature          float64
	MaxValidationRetries int

	// Preprepared bounds tasks built but not yet dispatched. Awaiting bounds
	// requests in flight.
	Preprepared int64
	Awaiting    int64

	// Cache is consulted and filled when UseCache is set.
	Cache    *cache.Cache
	UseCache bool

	Retry      retry.Policy
	Usage      *usage.Tracker
	Registerer prometheus.Registerer
}

// Stats summarises one run.
type Stats struct {
	Tasks         int64
	CacheHits     int64
	ProviderCalls int64
	Retries       int64
	Duration      time.Duration
}

// Result is the positional output of a run: Items[r][i] is the result for
// row IDs[r], item i.
type Result struct {
	IDs   []types.RowID
	Items [][]schema.Result
	Stats Stats
}

// Dispatcher is safe for concurrent Runs; the two bounds are shared by all of
// them.
type Dispatcher struct {
	cfg      Config
	prepared *semaphore.Weighted
	inFlight *semaphore.Weighted
	metrics  *metrics

	// onBuilt, when set, is called as each task is built.
	onBuilt func(row, item int)
}

// New validates cfg and creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("dispatch: provider required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("dispatch: validator required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("dispatch: model required")
	}
	if !(cfg.Temperature >= 0 && cfg.Temperature <= 1) {
		return nil, fmt.Errorf("dispatch: temperature %.2f outside [0, 1]", cfg.Temperature)
	}
	if cfg.MaxValidationRetries < 0 {
		return nil, fmt.Errorf("dispatch: max validation retries must be non-negative")
	}
	if cfg.Preprepared <= 0 || cfg.Awaiting <= 0 {
		return nil, fmt.Errorf("dispatch: preprepared (%d) and awaiting (%d) must be positive", cfg.Preprepared, cfg.Awaiting)
	}
	if cfg.UseCache && cfg.Cache == nil {
		return nil, fmt.Errorf("dispatch: caching enabled without a cache")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("dispatch: register metrics: %w", err)
	}
	return &Dispatcher{
		cfg:      cfg,
		prepared: semaphore.NewWeighted(cfg.Preprepared),
		inFlight: semaphore.NewWeighted(cfg.Awaiting),
		metrics:  m,
	}, nil
}

// task is one (row, item) unit of work.
type task struct {
	row  int
	id   types.RowID
	item int
	text string
	key  string
}

type runState struct {
	kc    KeyContext
	log   *logging.RequestLogger
	stats struct {
		tasks, hits, calls, retries atomic.Int64
	}
}

// Run annotates every item of data. The first non-retryable error cancels
// the remaining tasks and is returned; no partial result is returned with it.
func (d *Dispatcher) Run(ctx context.Context, kc KeyContext, data *types.DataTable) (Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	st := &runState{kc: kc, log: logging.WithRequestID(logging.CategoryDispatch, runID).
		WithField("record", kc.RecordTitle)}

	ids := data.Keys()
	buf := make([][]schema.Result, len(ids))
	for r, id := range ids {
		row, _ := data.Get(id)
		buf[r] = make([]schema.Result, len(row))
	}
	st.log.Info("run started: %d rows, provider=%s model=%s validator=%s cache=%v",
		len(ids), d.cfg.Provider.Name(), d.cfg.Model, d.cfg.Validator.Name(), d.cfg.UseCache)

	g, gctx := errgroup.WithContext(ctx)
	var prepErr error

build:
	for r, id := range ids {
		row, _ := data.Get(id)
		for i, v := range row {
			if err := d.prepared.Acquire(gctx, 1); err != nil {
				prepErr = err
				break build
			}
			t := task{row: r, id: id, item: i, text: types.FormatValue(v)}
			t.key = cacheKey(kc, t.id, t.item, string(d.cfg.Provider.Name()), d.cfg.Model,
				d.cfg.Validator.Name(), d.cfg.System, t.text)
			logging.DispatchDebug("built task row=%s item=%d key=%s", t.id, t.item, t.key[:12])
			if d.onBuilt != nil {
				d.onBuilt(r, i)
			}

			g.Go(func() error {
				if err := d.inFlight.Acquire(gctx, 1); err != nil {
					d.prepared.Release(1)
					return err
				}
				d.prepared.Release(1)
				defer d.inFlight.Release(1)

				res, err := d.execute(gctx, st, t)
				if err != nil {
					return err
				}
				buf[t.row][t.item] = res
				return nil
			})
		}
	}

	err := g.Wait()
	if err == nil {
		err = prepErr
	}
	stats := Stats{
		Tasks:         st.stats.tasks.Load(),
		CacheHits:     st.stats.hits.Load(),
		ProviderCalls: st.stats.calls.Load(),
		Retries:       st.stats.retries.Load(),
		Duration:      time.Since(start),
	}
	if err != nil {
		st.log.Error("run aborted after %d tasks: %v", stats.Tasks, err)
		return Result{Stats: stats}, err
	}
	st.log.Info("run finished: tasks=%d hits=%d calls=%d retries=%d in %s",
		stats.Tasks, stats.CacheHits, stats.ProviderCalls, stats.Retries, stats.Duration)
	return Result{IDs: ids, Items: buf, Stats: stats}, nil
}

// Annotate runs data and flattens the results into a table whose columns
// are named after columns, ready to append with updateExpectedLen.
func (d *Dispatcher) Annotate(ctx context.Context, kc KeyContext, data *types.DataTable, columns []string) (*types.DataTable, []string, Stats, error) {
	res, err := d.Run(ctx, kc, data)
	if err != nil {
		return nil, nil, res.Stats, err
	}
	table, names, err := flatten.Flatten(res.IDs, res.Items, columns)
	if err != nil {
		return nil, nil, res.Stats, err
	}
	return table, names, res.Stats, nil
}

func (d *Dispatcher) execute(ctx context.Context, st *runState, t task) (schema.Result, error) {
	start := time.Now()
	d.metrics.enter()
	defer func() {
		d.metrics.leave()
		d.metrics.observe(time.Since(start).Seconds())
	}()
	d.metrics.task()
	st.stats.tasks.Add(1)

	if d.cfg.UseCache {
		if res, ok := d.lookup(ctx, st, t); ok {
			d.metrics.hit()
			st.stats.hits.Add(1)
			return res, nil
		}
		d.metrics.miss()
	}

	name := string(d.cfg.Provider.Name())
	req := provider.Request{
		System:               d.cfg.System,
		User:                 t.text,
		Model:                d.cfg.Model,
		Temperature:          d.cfg.Temperature,
		Validator:            d.cfg.Validator,
		MaxValidationRetries: d.cfg.MaxValidationRetries,
	}
	policy := d.cfg.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.metrics.retry()
		st.stats.retries.Add(1)
		logging.ProviderWarn("[%s] row %s item %d: attempt %d failed, retrying in %s: %v",
			name, t.id, t.item, attempt, delay, err)
	}

	resp, _, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) (provider.Response, error) {
		d.metrics.call(name)
		st.stats.calls.Add(1)
		return d.cfg.Provider.Annotate(ctx, req)
	})
	if err != nil {
		d.metrics.failure()
		logging.ProviderError("[%s] row %s item %d failed: %v", name, t.id, t.item, err)
		return nil, fmt.Errorf("row %s item %d: %w", t.id, t.item, err)
	}

	if d.cfg.Usage != nil {
		d.cfg.Usage.Track(usage.Event{
			Provider:     name,
			Model:        d.cfg.Model,
			Record:       st.kc.RecordTitle,
			JobID:        st.kc.JobID,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		})
	}

	if d.cfg.UseCache {
		d.store(ctx, st, t, resp.Result)
	}
	return resp.Result, nil
}

// lookup returns a cached result. Entries that no longer validate are
// treated as misses.
func (d *Dispatcher) lookup(ctx context.Context, st *runState, t task) (schema.Result, bool) {
	raw, ok, err := d.cfg.Cache.Get(ctx, t.key)
	if err != nil {
		st.log.Warn("cache read for row %s item %d failed: %v", t.id, t.item, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		st.log.Warn("cache entry for row %s item %d is corrupt: %v", t.id, t.item, err)
		return nil, false
	}
	res, err := d.cfg.Validator.Validate(fields)
	if err != nil {
		st.log.Warn("cache entry for row %s item %d no longer validates: %v", t.id, t.item, err)
		return nil, false
	}
	st.log.Debug("cache hit for row %s item %d", t.id, t.item)
	return res, true
}

func (d *Dispatcher) store(ctx context.Context, st *runState, t task, res schema.Result) {
	raw, err := json.Marshal(res.Map())
	if err != nil {
		st.log.Warn("encode result for row %s item %d: %v", t.id, t.item, err)
		return
	}
	if err := d.cfg.Cache.Set(ctx, t.key, raw); err != nil {
		st.log.Warn("cache write for row %s item %d failed: %v", t.id, t.item, err)
	}
}
