// Package usage records token consumption per provider, model, record and job.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"glyphdeck/internal/logging"
)

const fileName = "usage.json"

type trackerKey struct{}

type jobKey struct{}

// Tracker aggregates usage events and persists them as JSON. It is safe for
// concurrent use by dispatcher tasks.
type Tracker struct {
	mu       sync.Mutex
	data     Data
	filePath string
	dirty    bool
	now      func() time.Time
}

// NewTracker creates a tracker persisting to dir/usage.json. An empty dir
// keeps usage in memory only.
func NewTracker(dir string) (*Tracker, error) {
	t := &Tracker{data: emptyData(), now: time.Now}
	if dir == "" {
		return t, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}
	t.filePath = filepath.Join(dir, fileName)
	if err := t.Load(); err != nil {
		logging.DispatchError("usage file %s unreadable, starting empty: %v", t.filePath, err)
		t.data = emptyData()
	}
	return t, nil
}

func emptyData() Data {
	return Data{
		Version: "1.0",
		Aggregate: AggregatedStats{
			ByProvider: make(map[string]TokenCounts),
			ByModel:    make(map[string]TokenCounts),
			ByRecord:   make(map[string]TokenCounts),
			ByJob:      make(map[string]TokenCounts),
		},
	}
}

// Load reads the usage file. A missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filePath == "" {
		return nil
	}

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	fresh := emptyData()
	for dst, src := range map[*map[string]TokenCounts]map[string]TokenCounts{
		&fresh.Aggregate.ByProvider: d.Aggregate.ByProvider,
		&fresh.Aggregate.ByModel:    d.Aggregate.ByModel,
		&fresh.Aggregate.ByRecord:   d.Aggregate.ByRecord,
		&fresh.Aggregate.ByJob:      d.Aggregate.ByJob,
	} {
		if src != nil {
			*dst = src
		}
	}
	fresh.Aggregate.Total = d.Aggregate.Total
	fresh.Aggregate.Requests = d.Aggregate.Requests
	t.data = fresh
	return nil
}

// Save writes the usage file when anything changed since the last save.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filePath == "" || !t.dirty {
		return nil
	}
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.filePath, raw, 0644); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Track records one event. Zero timestamps are filled in.
func (t *Tracker) Track(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}
	agg := &t.data.Aggregate
	agg.Total.Add(ev.InputTokens, ev.OutputTokens)
	agg.Requests++
	addToMap(agg.ByProvider, ev.Provider, ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByModel, ev.Model, ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByRecord, ev.Record, ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByJob, ev.JobID, ev.InputTokens, ev.OutputTokens)
	t.dirty = true
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByRecord = copyTokenCountsMap(stats.ByRecord)
	stats.ByJob = copyTokenCountsMap(stats.ByJob)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	if key == "" {
		key = "unknown"
	}
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext retrieves the tracker from ctx, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// WithJob tags ctx with a job id for request-scoped logging.
func WithJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobKey{}, jobID)
}

// JobFromContext returns the job id set by WithJob.
func JobFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobKey{}).(string)
	return id
}
