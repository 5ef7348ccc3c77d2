package sourcing

import (
	"strings"
	"testing"
)

func TestFormatQueryResultMarkdown(t *testing.T) {
	res := QueryResult{
		Columns: []string{"supplier_name", "win_count", "win_rate_pct", "note"},
		Rows: []map[string]any{
			{"supplier_name": "Acme", "win_count": float64(3), "win_rate_pct": 62.5, "note": nil},
			{"supplier_name": "Globex", "win_count": float64(1), "win_rate_pct": 12.345, "note": "late delivery"},
		},
	}
	out := FormatQueryResultMarkdown(res, "Historical performance", "per supplier")

	if !strings.Contains(out, "| supplier_name | win_count | win_rate_pct | note |") {
		t.Fatalf("header row missing:\n%s", out)
	}
	// Integral floats render without decimals, others to two places, nil as "-".
	if !strings.Contains(out, "| Acme | 3 | 62.50 | - |") {
		t.Fatalf("first row misformatted:\n%s", out)
	}
	if !strings.Contains(out, "| Globex | 1 | 12.35 | late delivery |") {
		t.Fatalf("second row misformatted:\n%s", out)
	}
	if !strings.Contains(out, "2 records") {
		t.Fatalf("record count missing:\n%s", out)
	}
}

func TestFormatQueryResultMarkdownEmpty(t *testing.T) {
	out := FormatQueryResultMarkdown(QueryResult{Columns: []string{"a"}}, "x", "y")
	if !strings.Contains(out, "No matching records") {
		t.Fatalf("empty result not labeled:\n%s", out)
	}
}

func TestFormatQueryResultMarkdownError(t *testing.T) {
	out := FormatQueryResultMarkdown(QueryResult{Error: "timeout"}, "x", "y")
	if !strings.Contains(out, "Query failed: timeout") {
		t.Fatalf("error not surfaced:\n%s", out)
	}
}

func TestFormatCell(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{float64(1), "1"},
		{2.5, "2.50"},
		{int64(42), "42"},
		{"plain", "plain"},
		{true, "true"},
	}
	for _, c := range cases {
		if got := formatCell(c.in); got != c.want {
			t.Errorf("formatCell(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
