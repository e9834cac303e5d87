// Package records implements the record store: an append-only lineage of
// named, timestamped tables whose shape is checked on every append.
package records

import (
	"errors"
	"fmt"
	"time"

	"glyphdeck/internal/logging"
	"glyphdeck/internal/types"
)

// InitialisationTitle is the title of the sentinel record at key 0.
const InitialisationTitle = "initialisation"

// Record is one immutable snapshot in the lineage.
type Record struct {
	key     int
	title   string
	created time.Time
	delta   time.Duration
	data    *types.DataTable
	columns []string
}

// Key returns the record's position in the store.
func (r *Record) Key() int { return r.key }

// Title returns the record's unique title.
func (r *Record) Title() string { return r.title }

// Created returns the creation timestamp.
func (r *Record) Created() time.Time { return r.created }

// Delta returns the time elapsed since the previous record.
func (r *Record) Delta() time.Duration { return r.delta }

// Data returns a copy of the record's table.
func (r *Record) Data() *types.DataTable { return r.data.Clone() }

// Columns returns a copy of the column names.
func (r *Record) Columns() []string { return append([]string(nil), r.columns...) }

// Store owns every record of one lineage. It is not safe for concurrent
// mutation; a single caller drives it.
type Store struct {
	records     []*Record
	expectedLen int
	base        *types.Frame
	idColumn    string
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store. base is the original source table that derived
// tables are rebased onto; it must contain idColumn. base may be nil.
func NewStore(base *types.Frame, idColumn string, opts ...Option) (*Store, error) {
	s := &Store{idColumn: idColumn, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if idColumn == "" {
		return nil, fmt.Errorf("id column name required")
	}
	if base != nil {
		if base.ColumnIndex(idColumn) < 0 {
			return nil, fmt.Errorf("base table has no id column %q", idColumn)
		}
		b := base.Clone()
		s.base = &b
	}
	s.records = []*Record{{
		key:     0,
		title:   InitialisationTitle,
		created: s.now(),
		data:    types.NewDataTable(),
	}}
	return s, nil
}

// Append validates and adds a new record. columns may be nil to inherit the
// latest record's names. updateExpectedLen resets expected_len to the length of
// the first row; the first real record always sets it. On error the store is
// unchanged.
func (s *Store) Append(title string, data *types.DataTable, columns []string, updateExpectedLen bool) (*Record, error) {
	rec, err := s.appendRecord(title, data, columns, updateExpectedLen)
	if err != nil {
		logging.StoreError("append %q rejected: %v", title, err)
		return nil, err
	}
	logging.Store("appended record %d %q: %d rows x %d columns", rec.key, title, data.Len(), s.expectedLen)
	return rec, nil
}

func (s *Store) appendRecord(title string, data *types.DataTable, columns []string, updateExpectedLen bool) (*Record, error) {
	if title == "" {
		return nil, fmt.Errorf("record title required")
	}
	if _, err := s.KeyOf(title); err == nil {
		return nil, fmt.Errorf("%w: %q already exists", ErrDuplicateTitle, title)
	}
	if data.Len() == 0 {
		return nil, fmt.Errorf("record %q: data has no rows", title)
	}

	expected := s.expectedLen
	if s.LatestKey() == 0 || updateExpectedLen {
		expected, _ = data.RowLen()
	}

	if columns == nil {
		columns = s.Latest().columns
		if s.LatestKey() == 0 || (updateExpectedLen && len(columns) != expected) {
			columns = defaultColumns(expected)
		}
	}
	if len(columns) != expected {
		return nil, &SchemaError{Title: title, Got: len(columns), Expected: expected, Columns: true}
	}

	if s.LatestKey() > 0 {
		initial := s.records[1]
		if missing, extra := types.KeyDiff(initial.data, data); len(missing) > 0 || len(extra) > 0 {
			return nil, &KeySetError{Title: title, Missing: missing, Extra: extra}
		}
	}

	for _, id := range data.Keys() {
		row, _ := data.Get(id)
		if len(row) != expected {
			return nil, &SchemaError{Title: title, Row: id, Got: len(row), Expected: expected}
		}
	}

	now := s.now()
	rec := &Record{
		key:     s.LatestKey() + 1,
		title:   title,
		created: now,
		delta:   now.Sub(s.Latest().created),
		data:    data.Clone(),
		columns: append([]string(nil), columns...),
	}
	s.records = append(s.records, rec)
	s.expectedLen = expected
	return rec, nil
}

func defaultColumns(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}

// Record returns the record at key.
func (s *Store) Record(key int) (*Record, error) {
	if key < 0 || key >= len(s.records) {
		return nil, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	return s.records[key], nil
}

// KeyOf returns the key of the first record with title.
func (s *Store) KeyOf(title string) (int, error) {
	for _, r := range s.records {
		if r.title == title {
			return r.key, nil
		}
	}
	return 0, fmt.Errorf("%w: title %q", ErrNotFound, title)
}

// ByTitle returns the first record with title.
func (s *Store) ByTitle(title string) (*Record, error) {
	key, err := s.KeyOf(title)
	if err != nil {
		return nil, err
	}
	return s.records[key], nil
}

// Latest returns the most recent record, the sentinel when empty.
func (s *Store) Latest() *Record {
	return s.records[len(s.records)-1]
}

// LatestKey returns the key of the most recent record.
func (s *Store) LatestKey() int {
	return len(s.records) - 1
}

// Initial returns the first real record (key 1).
func (s *Store) Initial() (*Record, error) {
	if len(s.records) < 2 {
		return nil, fmt.Errorf("%w: store has no records", ErrNotFound)
	}
	return s.records[1], nil
}

// LatestTitle returns the title of the latest record.
func (s *Store) LatestTitle() string { return s.Latest().title }

// LatestData returns a copy of the latest record's table.
func (s *Store) LatestData() *types.DataTable { return s.Latest().Data() }

// LatestColumns returns the latest record's column names.
func (s *Store) LatestColumns() []string { return s.Latest().Columns() }

// LatestCreated returns the latest record's timestamp.
func (s *Store) LatestCreated() time.Time { return s.Latest().created }

// LatestDelta returns the latest record's delta.
func (s *Store) LatestDelta() time.Duration { return s.Latest().delta }

// Since returns the time elapsed since the latest record was appended.
func (s *Store) Since() time.Duration { return s.now().Sub(s.Latest().created) }

// Len returns the number of real records, excluding the sentinel.
func (s *Store) Len() int { return len(s.records) - 1 }

// Keys returns the keys of the real records in order.
func (s *Store) Keys() []int {
	out := make([]int, 0, s.Len())
	for _, r := range s.records[1:] {
		out = append(out, r.key)
	}
	return out
}

// Titles returns every title in key order, sentinel included.
func (s *Store) Titles() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.title
	}
	return out
}

// ExpectedLen returns the enforced per-row value count.
func (s *Store) ExpectedLen() int { return s.expectedLen }

// IDColumn returns the name of the id column used for rebasing.
func (s *Store) IDColumn() string { return s.idColumn }

// Base returns a copy of the base table, or nil.
func (s *Store) Base() *types.Frame {
	if s.base == nil {
		return nil
	}
	b := s.base.Clone()
	return &b
}

// resolve checks that every key names a real record.
func (s *Store) resolve(keys []int) ([]*Record, error) {
	if len(keys) == 0 {
		if s.LatestKey() == 0 {
			return nil, fmt.Errorf("%w: store has no records", ErrNotFound)
		}
		return []*Record{s.Latest()}, nil
	}
	out := make([]*Record, 0, len(keys))
	for _, k := range keys {
		r, err := s.Record(k)
		if err != nil {
			return nil, err
		}
		if k == 0 {
			return nil, errors.New("the initialisation record has no table")
		}
		out = append(out, r)
	}
	return out, nil
}
