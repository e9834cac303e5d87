package records

import (
	"fmt"

	"glyphdeck/internal/logging"
	"glyphdeck/internal/types"
)

// CombinedTitle titles a frame joined from several records.
const CombinedTitle = "combined"

// Shape selects how Output returns its frames.
type Shape int

const (
	ShapeFrame Shape = iota // one frame
	ShapeList               // frames in key order
	ShapePairs              // (title, frame) pairs in key order
	ShapeMap                // frames keyed by title
)

// OutputOptions controls Output. Keys defaults to the latest record.
type OutputOptions struct {
	Keys    []int
	Shape   Shape
	Combine bool
	Rebase  bool
}

// DefaultOutputOptions returns a single combined, rebased frame of the latest record.
func DefaultOutputOptions() OutputOptions {
	return OutputOptions{Shape: ShapeFrame, Combine: true, Rebase: true}
}

// TitledFrame pairs a frame with the title it is reported under.
type TitledFrame struct {
	Title string
	Frame types.Frame
}

// Output holds materialised frames in the requested shape.
type Output struct {
	Shape  Shape
	Titled []TitledFrame
}

// Frame returns the first frame.
func (o Output) Frame() types.Frame {
	if len(o.Titled) == 0 {
		return types.Frame{}
	}
	return o.Titled[0].Frame
}

// List returns every frame.
func (o Output) List() []types.Frame {
	out := make([]types.Frame, len(o.Titled))
	for i, tf := range o.Titled {
		out[i] = tf.Frame
	}
	return out
}

// Pairs returns (title, frame) pairs.
func (o Output) Pairs() []TitledFrame {
	return append([]TitledFrame(nil), o.Titled...)
}

// Map returns frames keyed by title.
func (o Output) Map() map[string]types.Frame {
	out := make(map[string]types.Frame, len(o.Titled))
	for _, tf := range o.Titled {
		out[tf.Title] = tf.Frame
	}
	return out
}

// Table materialises one record. With suffix every column is renamed
// "<column>_<title>".
func (s *Store) Table(key int, suffix bool) (types.Frame, error) {
	recs, err := s.resolve([]int{key})
	if err != nil {
		return types.Frame{}, err
	}
	return table(recs[0], suffix), nil
}

func table(r *Record, suffix bool) types.Frame {
	f := types.Frame{
		Title:   r.title,
		Columns: make([]string, len(r.columns)),
		Index:   r.data.Keys(),
	}
	for i, c := range r.columns {
		if suffix {
			c = c + "_" + r.title
		}
		f.Columns[i] = c
	}
	f.Rows = make([][]types.Value, len(f.Index))
	for i, id := range f.Index {
		row, _ := r.data.Get(id)
		f.Rows[i] = append([]types.Value(nil), row...)
	}
	return f
}

// Combined joins several records on row id. Columns are suffixed with each
// record's title so names never collide.
func (s *Store) Combined(keys []int) (types.Frame, error) {
	recs, err := s.resolve(keys)
	if err != nil {
		return types.Frame{}, err
	}
	return combine(recs), nil
}

func combine(recs []*Record) types.Frame {
	frames := make([]types.Frame, len(recs))
	for i, r := range recs {
		frames[i] = table(r, true)
	}
	out := types.Frame{Title: CombinedTitle}
	if len(recs) == 1 {
		out.Title = recs[0].title
	}

	pos := make(map[types.RowID]int)
	for _, f := range frames {
		for _, id := range f.Index {
			if _, ok := pos[id]; !ok {
				pos[id] = len(out.Index)
				out.Index = append(out.Index, id)
			}
		}
	}
	width := 0
	for _, f := range frames {
		width += len(f.Columns)
		out.Columns = append(out.Columns, f.Columns...)
	}
	out.Rows = make([][]types.Value, len(out.Index))
	for i := range out.Rows {
		out.Rows[i] = make([]types.Value, width)
	}
	offset := 0
	for _, f := range frames {
		for r, id := range f.Index {
			copy(out.Rows[pos[id]][offset:], f.Rows[r])
		}
		offset += len(f.Columns)
	}
	return out
}

// Rebase left-joins f onto the base table on the id column, so the result
// carries every original row and column. Derived columns whose names clash
// with base columns get a "_<title>" suffix. Without a base table the id
// column is inserted at position 0 instead.
func (s *Store) Rebase(f types.Frame) types.Frame {
	if s.base == nil {
		return s.withIDColumn(f)
	}

	base := s.base
	idPos := base.ColumnIndex(s.idColumn)

	out := types.Frame{
		Title:   f.Title,
		Columns: append([]string(nil), base.Columns...),
		Index:   append([]types.RowID(nil), base.Index...),
	}
	taken := make(map[string]bool, len(base.Columns))
	for _, c := range base.Columns {
		taken[c] = true
	}
	for _, c := range f.Columns {
		if taken[c] {
			c = c + "_" + f.Title
		}
		out.Columns = append(out.Columns, c)
	}

	rowOf := make(map[types.RowID]int, len(f.Index))
	for i, id := range f.Index {
		rowOf[id] = i
	}

	out.Rows = make([][]types.Value, len(base.Rows))
	for i, brow := range base.Rows {
		row := make([]types.Value, 0, len(out.Columns))
		row = append(row, brow...)
		if r, ok := rowOf[types.NewRowID(brow[idPos])]; ok {
			row = append(row, f.Rows[r]...)
		} else {
			row = append(row, make([]types.Value, len(f.Columns))...)
		}
		out.Rows[i] = row
	}
	return out
}

func (s *Store) withIDColumn(f types.Frame) types.Frame {
	if f.ColumnIndex(s.idColumn) >= 0 {
		return f
	}
	return f.InsertColumn(0, s.idColumn, f.IndexValues())
}

// Output materialises records in the requested shape. A frame-shaped output
// of several records is always combined.
func (s *Store) Output(opts OutputOptions) (Output, error) {
	recs, err := s.resolve(opts.Keys)
	if err != nil {
		return Output{}, err
	}
	switch opts.Shape {
	case ShapeFrame, ShapeList, ShapePairs, ShapeMap:
	default:
		return Output{}, fmt.Errorf("unknown output shape %d", opts.Shape)
	}
	combineAll := opts.Combine || (opts.Shape == ShapeFrame && len(recs) > 1)

	var titled []TitledFrame
	if combineAll {
		var f types.Frame
		if len(recs) == 1 {
			f = table(recs[0], false)
		} else {
			f = combine(recs)
		}
		titled = append(titled, TitledFrame{Title: f.Title, Frame: f})
	} else {
		for _, r := range recs {
			titled = append(titled, TitledFrame{Title: r.title, Frame: table(r, false)})
		}
	}

	for i := range titled {
		if opts.Rebase {
			titled[i].Frame = s.Rebase(titled[i].Frame)
		} else {
			titled[i].Frame = s.withIDColumn(titled[i].Frame)
		}
	}
	logging.StoreDebug("output: %d records as %d frames (shape=%d rebase=%v)", len(recs), len(titled), opts.Shape, opts.Rebase)
	return Output{Shape: opts.Shape, Titled: titled}, nil
}
