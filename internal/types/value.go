package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CELL VALUE EXTRACTION UTILITIES
// =============================================================================
//
// Table cells hold any of these Go types:
//   - string:        Free text (the usual annotation input)
//   - int64, int:    Integers from ingestion or flattened results
//   - float64:       Numeric annotation fields (sentiment scores)
//   - bool:          Rare; passed through untouched
//   - time.Time:     Spreadsheet date cells
//   - nil:           Missing cell after a join

// Value is a single table cell.
type Value = any

// FormatValue renders a cell as text for prompts, CSV output and key building.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case []string:
		return strings.Join(x, ",")
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

// ExtractFloat64 extracts a float64 from a numeric cell.
// Returns (value, true) on success, (0, false) if the type is incompatible.
func ExtractFloat64(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// ExtractInt64 extracts an int64 from a numeric cell. Floats must be whole.
func ExtractInt64(v Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}
