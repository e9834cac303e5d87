// Package flatten turns per-item structured results into a flat table.
package flatten

import (
	"fmt"

	"glyphdeck/internal/schema"
	"glyphdeck/internal/types"
)

// Flatten builds one row per id from results[row][item]. For item i with
// field f the column is "<columns[i]>_<f>". Columns appear in first-seen
// order across every row; a row lacking a column gets nil. List fields are
// comma-joined and scalars pass through.
func Flatten(ids []types.RowID, results [][]schema.Result, columns []string) (*types.DataTable, []string, error) {
	if len(ids) != len(results) {
		return nil, nil, fmt.Errorf("flatten: %d ids for %d result rows", len(ids), len(results))
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, nil, fmt.Errorf("flatten: duplicate source column %q", c)
		}
		seen[c] = true
	}

	var names []string
	pos := make(map[string]int)
	cells := make([]map[int]types.Value, len(ids))

	for r, items := range results {
		if len(items) > len(columns) {
			return nil, nil, fmt.Errorf("flatten: row %s has %d items for %d columns", ids[r], len(items), len(columns))
		}
		cells[r] = make(map[int]types.Value)
		for i, res := range items {
			for _, pair := range res {
				name := columns[i] + "_" + pair.Field
				p, ok := pos[name]
				if !ok {
					p = len(names)
					pos[name] = p
					names = append(names, name)
				}
				cells[r][p] = cell(pair.Value)
			}
		}
	}

	out := types.NewDataTable()
	for r, id := range ids {
		row := make(types.Row, len(names))
		for p, v := range cells[r] {
			row[p] = v
		}
		out.Set(id, row)
	}
	return out, names, nil
}

func cell(v any) types.Value {
	switch v.(type) {
	case []string, []float64, []any:
		return types.FormatValue(v)
	default:
		return v
	}
}
