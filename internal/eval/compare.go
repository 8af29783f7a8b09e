package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/koopa0/dash/internal/target"
)

// relTolerance bounds acceptable floating-point drift between golden
// and actual aggregates.
const relTolerance = 1e-6

// maxCompareRows caps the result sizes golden_compare will match; a
// golden query returning more rows than this is a battery bug, not an
// agent failure.
const maxCompareRows = 1000

// compareResults checks two result sets for equality. ordered demands
// identical row order; otherwise rows match as a multiset. Numeric
// cells compare within relTolerance; everything else compares as
// trimmed strings. The returned detail explains the first mismatch.
func compareResults(golden, actual *target.ResultSet, ordered bool) (bool, string) {
	if golden == nil || actual == nil {
		return false, "missing result set"
	}
	if len(golden.Rows) != len(actual.Rows) {
		return false, fmt.Sprintf("row count %d, want %d", len(actual.Rows), len(golden.Rows))
	}
	if len(golden.Rows) > maxCompareRows {
		return false, fmt.Sprintf("golden result too large to compare: %d rows", len(golden.Rows))
	}
	if len(golden.Columns) != len(actual.Columns) {
		return false, fmt.Sprintf("column count %d, want %d", len(actual.Columns), len(golden.Columns))
	}

	if ordered {
		for i := range golden.Rows {
			if ok, detail := rowsEqual(golden.Rows[i], actual.Rows[i]); !ok {
				return false, fmt.Sprintf("row %d: %s", i, detail)
			}
		}
		return true, ""
	}

	// Unordered: greedy multiset match. Quadratic, bounded by
	// maxCompareRows.
	used := make([]bool, len(actual.Rows))
	for i, grow := range golden.Rows {
		matched := false
		for j, arow := range actual.Rows {
			if used[j] {
				continue
			}
			if ok, _ := rowsEqual(grow, arow); ok {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false, fmt.Sprintf("golden row %d has no match: %v", i, grow)
		}
	}
	return true, ""
}

func rowsEqual(golden, actual []any) (bool, string) {
	if len(golden) != len(actual) {
		return false, fmt.Sprintf("cell count %d, want %d", len(actual), len(golden))
	}
	for i := range golden {
		if !cellsEqual(golden[i], actual[i]) {
			return false, fmt.Sprintf("cell %d: %v != %v", i, actual[i], golden[i])
		}
	}
	return true, ""
}

// cellsEqual compares two cells across the type skew different drivers
// introduce (int64 vs float64 vs []byte vs string).
func cellsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return floatsClose(af, bf)
	}

	return cellString(a) == cellString(b)
}

func floatsClose(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return diff == 0
	}
	return diff/scale <= relTolerance
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func cellString(v any) string {
	switch x := v.(type) {
	case []byte:
		return strings.TrimSpace(string(x))
	case string:
		return strings.TrimSpace(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
