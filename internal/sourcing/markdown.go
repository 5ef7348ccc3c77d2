package sourcing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatQueryResultMarkdown renders a query result as a Markdown section with
// a bounded-width table. Nulls render as "-", integral numbers without
// decimals, other numbers to two decimals.
func FormatQueryResultMarkdown(result QueryResult, heading, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#### %s\n\n**Scope**: %s\n\n", heading, description)

	if result.Error != "" {
		fmt.Fprintf(&b, "Query failed: %s\n", result.Error)
		return b.String()
	}
	if len(result.Rows) == 0 {
		b.WriteString("No matching records\n")
		return b.String()
	}

	columns := result.Columns
	if len(columns) == 0 {
		for col := range result.Rows[0] {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		b.WriteString("No matching records\n")
		return b.String()
	}

	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range result.Rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	fmt.Fprintf(&b, "\n%d records\n", len(result.Rows))
	return b.String()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return formatCell(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		if f, err := x.Float64(); err == nil {
			return formatCell(f)
		}
		return x.String()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
