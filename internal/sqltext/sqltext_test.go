package sqltext

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "fenced block",
			text: "Here is the query:\n```sql\nSELECT COUNT(*) FROM customer\n```\nThat counts customers.",
			want: "SELECT COUNT(*) FROM customer",
		},
		{
			name: "fenced block with trailing semicolon",
			text: "```sql\nSELECT 1;\n```",
			want: "SELECT 1",
		},
		{
			name: "fenced wins over bare select",
			text: "SELECT wrong FROM t\n```sql\nSELECT right FROM t\n```",
			want: "SELECT right FROM t",
		},
		{
			name: "bare select",
			text: "The answer comes from SELECT r_name FROM region ORDER BY r_name; as shown above.",
			want: "SELECT r_name FROM region ORDER BY r_name",
		},
		{
			name: "bare cte",
			text: "Using WITH t AS (SELECT 1) SELECT * FROM t",
			want: "WITH t AS (SELECT 1) SELECT * FROM t",
		},
		{
			name: "multiline bare select",
			text: "SELECT n_name,\n  COUNT(*) AS c\nFROM nation\nGROUP BY n_name",
			want: "SELECT n_name,\n  COUNT(*) AS c\nFROM nation\nGROUP BY n_name",
		},
		{
			name: "bare recursive cte",
			text: "WITH RECURSIVE t AS (SELECT 1) SELECT * FROM t",
			want: "WITH RECURSIVE t AS (SELECT 1) SELECT * FROM t",
		},
		{
			name: "prose containing the word with",
			text: "There are 150000 customers in the database, with most of them located in ASIA.",
			want: "",
		},
		{
			name: "prose sentence starting with With",
			text: "With the current data we cannot answer that question.",
			want: "",
		},
		{name: "no sql", text: "I could not produce a query.", want: ""},
		{name: "empty", text: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.text); got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTables(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "single table",
			query: "SELECT COUNT(*) FROM customer",
			want:  []string{"customer"},
		},
		{
			name: "joins deduplicated",
			query: `SELECT n.n_name FROM orders o
				JOIN customer c ON o.o_custkey = c.c_custkey
				JOIN nation n ON c.c_nationkey = n.n_nationkey
				JOIN customer c2 ON c2.c_custkey = o.o_custkey`,
			want: []string{"orders", "customer", "nation"},
		},
		{
			name:  "subquery skipped",
			query: "SELECT * FROM (SELECT 1) t",
			want:  nil,
		},
		{name: "no tables", query: "SELECT 1", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tables(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tables(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestHasOrderBy(t *testing.T) {
	if !HasOrderBy("SELECT 1 FROM t ORDER BY c") {
		t.Error("HasOrderBy() = false for ordered query")
	}
	if !HasOrderBy("select 1 from t order\n  by c") {
		t.Error("HasOrderBy() = false for multiline order by")
	}
	if HasOrderBy("SELECT order_key FROM orders") {
		t.Error("HasOrderBy() = true for column containing 'order'")
	}
	if HasOrderBy("SELECT * FROM (SELECT c FROM t ORDER BY c LIMIT 5) sub") {
		t.Error("HasOrderBy() = true for order by inside a subquery")
	}
	if HasOrderBy("WITH top AS (SELECT c FROM t ORDER BY c LIMIT 5) SELECT COUNT(*) FROM top") {
		t.Error("HasOrderBy() = true for order by inside a CTE body")
	}
	if !HasOrderBy("WITH top AS (SELECT c FROM t) SELECT c FROM top ORDER BY c") {
		t.Error("HasOrderBy() = false for top-level order by after a CTE")
	}
}
