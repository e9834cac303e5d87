package types

// Frame is a materialised table: named columns over rows aligned with Index.
type Frame struct {
	Title   string
	Columns []string
	Index   []RowID
	Rows    [][]Value
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Index)
}

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every value of the named column.
func (f *Frame) Column(name string) ([]Value, bool) {
	i := f.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	out := make([]Value, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out, true
}

// Row returns the row for id.
func (f *Frame) Row(id RowID) ([]Value, bool) {
	for i, rid := range f.Index {
		if rid == id {
			return f.Rows[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the frame structure.
func (f *Frame) Clone() Frame {
	out := Frame{
		Title:   f.Title,
		Columns: append([]string(nil), f.Columns...),
		Index:   append([]RowID(nil), f.Index...),
		Rows:    make([][]Value, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = append([]Value(nil), row...)
	}
	return out
}

// InsertColumn returns a copy with a column inserted at pos.
func (f *Frame) InsertColumn(pos int, name string, values []Value) Frame {
	out := Frame{
		Title:   f.Title,
		Columns: make([]string, 0, len(f.Columns)+1),
		Index:   append([]RowID(nil), f.Index...),
		Rows:    make([][]Value, len(f.Rows)),
	}
	out.Columns = append(out.Columns, f.Columns[:pos]...)
	out.Columns = append(out.Columns, name)
	out.Columns = append(out.Columns, f.Columns[pos:]...)
	for i, row := range f.Rows {
		nr := make([]Value, 0, len(row)+1)
		nr = append(nr, row[:pos]...)
		nr = append(nr, values[i])
		nr = append(nr, row[pos:]...)
		out.Rows[i] = nr
	}
	return out
}

// IndexValues returns the index as cell values.
func (f *Frame) IndexValues() []Value {
	out := make([]Value, len(f.Index))
	for i, id := range f.Index {
		out[i] = string(id)
	}
	return out
}
