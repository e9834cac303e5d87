// Package chain connects the record store to the processors that feed it:
// the annotation dispatcher and the sanitiser. Both hold a non-owning handle
// to a Store and append their output to it.
package chain

import (
	"context"
	"fmt"

	"glyphdeck/internal/dispatch"
	"glyphdeck/internal/logging"
	"glyphdeck/internal/records"
	"glyphdeck/internal/types"
)

type source int

const (
	sourceLatest source = iota
	sourceRecord
	sourceSelection
)

// Annotator runs a Dispatcher over one record of a Store and appends the
// flattened output as a new record.
type Annotator struct {
	store *records.Store
	disp  *dispatch.Dispatcher
	jobID string

	src       source
	key       int
	data      *types.DataTable
	columns   []string
	selection string
}

// NewAnnotator binds d to store. jobID becomes part of every cache key.
func NewAnnotator(store *records.Store, d *dispatch.Dispatcher, jobID string) *Annotator {
	return &Annotator{store: store, disp: d, jobID: jobID}
}

// UseLatest makes Run read the latest record. This is the default.
func (a *Annotator) UseLatest() {
	a.src = sourceLatest
	a.data, a.columns, a.selection = nil, nil, ""
}

// UseRecord makes Run read the record at key.
func (a *Annotator) UseRecord(key int) error {
	if _, err := a.store.Record(key); err != nil {
		return err
	}
	if key == 0 {
		return fmt.Errorf("the %s record has no data", records.InitialisationTitle)
	}
	a.UseLatest()
	a.src = sourceRecord
	a.key = key
	return nil
}

// UseTitle makes Run read the record with title.
func (a *Annotator) UseTitle(title string) error {
	key, err := a.store.KeyOf(title)
	if err != nil {
		return err
	}
	return a.UseRecord(key)
}

// UseSelection makes Run read data that is not in the store. title names
// the selection in cache keys and must not clash with an existing record.
// nil columns inherit the active record's names.
func (a *Annotator) UseSelection(data *types.DataTable, title string, columns []string) error {
	if _, err := a.store.KeyOf(title); err == nil {
		return fmt.Errorf("%w: %q", records.ErrDuplicateTitle, title)
	}
	if columns == nil {
		_, cols, err := a.active()
		if err != nil {
			return err
		}
		columns = cols
	}
	a.src = sourceSelection
	a.data = data.Clone()
	a.columns = append([]string(nil), columns...)
	a.selection = title
	return nil
}

// ActiveTitle returns the title of the data Run will read.
func (a *Annotator) ActiveTitle() (string, error) {
	switch a.src {
	case sourceSelection:
		return a.selection, nil
	case sourceRecord:
		r, err := a.store.Record(a.key)
		if err != nil {
			return "", err
		}
		return r.Title(), nil
	default:
		if a.store.LatestKey() == 0 {
			return "", fmt.Errorf("%w: store has no records", records.ErrNotFound)
		}
		return a.store.LatestTitle(), nil
	}
}

func (a *Annotator) active() (*types.DataTable, []string, error) {
	switch a.src {
	case sourceSelection:
		return a.data, a.columns, nil
	case sourceRecord:
		r, err := a.store.Record(a.key)
		if err != nil {
			return nil, nil, err
		}
		return r.Data(), r.Columns(), nil
	default:
		if a.store.LatestKey() == 0 {
			return nil, nil, fmt.Errorf("%w: store has no records", records.ErrNotFound)
		}
		return a.store.LatestData(), a.store.LatestColumns(), nil
	}
}

// Run annotates the active data and appends the result under title. On
// error the store is unchanged.
func (a *Annotator) Run(ctx context.Context, title string) (*records.Record, dispatch.Stats, error) {
	if _, err := a.store.KeyOf(title); err == nil {
		return nil, dispatch.Stats{}, fmt.Errorf("%w: %q", records.ErrDuplicateTitle, title)
	}
	data, columns, err := a.active()
	if err != nil {
		return nil, dispatch.Stats{}, err
	}
	activeTitle, err := a.ActiveTitle()
	if err != nil {
		return nil, dispatch.Stats{}, err
	}

	kc := dispatch.KeyContext{JobID: a.jobID, RecordTitle: activeTitle}
	table, names, stats, err := a.disp.Annotate(ctx, kc, data, columns)
	if err != nil {
		return nil, stats, err
	}
	rec, err := a.store.Append(title, table, names, true)
	if err != nil {
		return nil, stats, err
	}
	logging.Dispatch("annotated %q into %q: %d columns", activeTitle, title, len(names))
	return rec, stats, nil
}
