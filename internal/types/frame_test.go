package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameInsertColumn(t *testing.T) {
	f := Frame{
		Title:   "t",
		Columns: []string{"a", "b"},
		Index:   []RowID{"1", "2"},
		Rows:    [][]Value{{"x", 1}, {"y", 2}},
	}

	got := f.InsertColumn(0, "id", f.IndexValues())

	want := Frame{
		Title:   "t",
		Columns: []string{"id", "a", "b"},
		Index:   []RowID{"1", "2"},
		Rows:    [][]Value{{"1", "x", 1}, {"2", "y", 2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("InsertColumn mismatch (-want +got):\n%s", diff)
	}
	if len(f.Columns) != 2 {
		t.Fatalf("original frame modified: %v", f.Columns)
	}

	col, ok := got.Column("b")
	if !ok || col[1] != 2 {
		t.Fatalf("Column(b) = %v, %v", col, ok)
	}
	if row, ok := got.Row("2"); !ok || row[1] != "y" {
		t.Fatalf("Row(2) = %v, %v", row, ok)
	}
	if got.ColumnIndex("missing") != -1 {
		t.Fatal("ColumnIndex(missing) should be -1")
	}
}
