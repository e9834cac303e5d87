package records

import (
	"errors"
	"fmt"

	"glyphdeck/internal/types"
)

var (
	// ErrDuplicateTitle is returned when an appended title already exists.
	ErrDuplicateTitle = errors.New("duplicate record title")
	// ErrSchemaMismatch is returned when row or column lengths break expected_len.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrKeySetMismatch is returned when row ids differ from the initial record.
	ErrKeySetMismatch = errors.New("key set mismatch")
	// ErrNotFound is returned for unknown keys and titles.
	ErrNotFound = errors.New("record not found")
)

// SchemaError reports a length mismatch. Row is empty for column-name checks.
type SchemaError struct {
	Title    string
	Row      types.RowID
	Got      int
	Expected int
	Columns  bool
}

func (e *SchemaError) Error() string {
	if e.Columns {
		return fmt.Sprintf("%v: record %q: %d columns expected, but column names contain %d entries; "+
			"if this is expected append with updateExpectedLen=true, otherwise review your data",
			ErrSchemaMismatch, e.Title, e.Expected, e.Got)
	}
	return fmt.Sprintf("%v: record %q: row %s has %d values, %d expected; "+
		"if this is expected append with updateExpectedLen=true, otherwise review your data",
		ErrSchemaMismatch, e.Title, e.Row, e.Got, e.Expected)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

// KeySetError lists row ids missing from, and extra to, the new record.
type KeySetError struct {
	Title   string
	Missing []types.RowID // in the initial record, absent from the new one
	Extra   []types.RowID // in the new record, absent from the initial one
}

func (e *KeySetError) Error() string {
	return fmt.Sprintf("%v: record %q: missing keys %v, unexpected keys %v",
		ErrKeySetMismatch, e.Title, e.Missing, e.Extra)
}

func (e *KeySetError) Unwrap() error { return ErrKeySetMismatch }
