package types

import (
	"sort"
	"strconv"
)

// RowID identifies one row across every table in a lineage. Integer ids from
// ingestion are stored in their decimal form.
type RowID string

// NewRowID converts an ingested id cell into a RowID.
func NewRowID(v Value) RowID {
	return RowID(FormatValue(v))
}

// Less orders ids numerically when both parse as integers, else lexically.
func (id RowID) Less(other RowID) bool {
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(string(other), 10, 64)
	if errA == nil && errB == nil {
		return a < b
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return id < other
}

// SortRowIDs sorts ids in place using RowID.Less.
func SortRowIDs(ids []RowID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Row is the ordered value list for one row id.
type Row []Value

// DataTable maps row ids to ordered value lists, keeping insertion order.
type DataTable struct {
	keys []RowID
	rows map[RowID]Row
}

// NewDataTable creates an empty table.
func NewDataTable() *DataTable {
	return &DataTable{rows: make(map[RowID]Row)}
}

// TableFromRows builds a table from parallel id and row slices.
func TableFromRows(ids []RowID, rows []Row) *DataTable {
	t := NewDataTable()
	for i, id := range ids {
		t.Set(id, rows[i])
	}
	return t
}

// Set stores a copy of row under id. New ids are appended to the key order.
func (t *DataTable) Set(id RowID, row Row) {
	if _, ok := t.rows[id]; !ok {
		t.keys = append(t.keys, id)
	}
	cp := make(Row, len(row))
	copy(cp, row)
	t.rows[id] = cp
}

// Get returns the row for id. The returned slice must not be modified.
func (t *DataTable) Get(id RowID) (Row, bool) {
	r, ok := t.rows[id]
	return r, ok
}

// Has reports whether id is present.
func (t *DataTable) Has(id RowID) bool {
	_, ok := t.rows[id]
	return ok
}

// Keys returns the row ids in insertion order.
func (t *DataTable) Keys() []RowID {
	out := make([]RowID, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of rows.
func (t *DataTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// RowLen returns the length of the first row, or false for an empty table.
func (t *DataTable) RowLen() (int, bool) {
	if t.Len() == 0 {
		return 0, false
	}
	return len(t.rows[t.keys[0]]), true
}

// Clone returns a deep copy of the row lists. Cell values are shared.
func (t *DataTable) Clone() *DataTable {
	out := NewDataTable()
	for _, id := range t.keys {
		out.Set(id, t.rows[id])
	}
	return out
}

// KeyDiff compares the id sets of two tables. missing holds ids in want that
// are absent from got; extra holds ids in got that want lacks. Both are sorted.
func KeyDiff(want, got *DataTable) (missing, extra []RowID) {
	for _, id := range want.keys {
		if !got.Has(id) {
			missing = append(missing, id)
		}
	}
	for _, id := range got.keys {
		if !want.Has(id) {
			extra = append(extra, id)
		}
	}
	SortRowIDs(missing)
	SortRowIDs(extra)
	return missing, extra
}
