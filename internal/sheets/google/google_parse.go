package google

import (
	"fmt"
	"strconv"
	"strings"
)

// toRows converts a values matrix as returned by the Sheets API into
// trimmed strings. Rows with no content are dropped.
func toRows(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, v := range values {
		row := toStrings(v)
		if blank(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

// cellString renders a cell without exponent notation, so large numbers
// read back exactly as typed.
func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
