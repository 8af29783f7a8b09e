package knowledge

import (
	"strings"
	"testing"
)

func TestTableMetadataRender(t *testing.T) {
	tm := TableMetadata{
		Table: "orders",
		Columns: []Column{
			{Name: "o_orderkey", Type: "BIGINT", Description: "primary key"},
			{Name: "o_orderdate", Type: "DATE"},
		},
		Notes: "o_orderdate spans 1992-1998",
	}

	got := tm.Render()
	for _, want := range []string{
		"Table: orders",
		"o_orderkey (BIGINT): primary key",
		"o_orderdate (DATE)",
		"Notes: o_orderdate spans 1992-1998",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q in:\n%s", want, got)
		}
	}

	if tm.EntryName() != "table_orders" {
		t.Errorf("EntryName() = %q, want table_orders", tm.EntryName())
	}
	if tm.Metadata()[MetaKind] != KindTableMetadata {
		t.Errorf("Metadata()[kind] = %q, want %q", tm.Metadata()[MetaKind], KindTableMetadata)
	}
}

func TestBusinessRuleRender(t *testing.T) {
	r := BusinessRule{
		Name:       "Revenue",
		Definition: "Discounted extended price",
		Formula:    "SUM(l_extendedprice * (1 - l_discount))",
		Gotchas: []Gotcha{
			{Issue: "l_tax is separate", Solution: "do not fold tax into revenue"},
		},
	}

	got := r.Render()
	for _, want := range []string{
		"Business rule: Revenue",
		"Formula: SUM(l_extendedprice * (1 - l_discount))",
		"Gotcha: l_tax is separate -> do not fold tax into revenue",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q in:\n%s", want, got)
		}
	}
	if r.EntryName() != "rule_revenue" {
		t.Errorf("EntryName() = %q, want rule_revenue", r.EntryName())
	}
}

func TestQueryPatternRender(t *testing.T) {
	q := QueryPattern{
		Name:        "Customer Count",
		Description: "Total number of customers",
		SQL:         "SELECT COUNT(*) FROM customer",
	}

	got := q.Render()
	if !strings.Contains(got, "SELECT COUNT(*) FROM customer") {
		t.Errorf("Render() missing SQL in:\n%s", got)
	}
	if q.EntryName() != "query_customer_count" {
		t.Errorf("EntryName() = %q, want query_customer_count", q.EntryName())
	}
}

func TestLearningRecordRender(t *testing.T) {
	l := LearningRecord{
		Title: "position column is TEXT",
		Body:  "Use position = '1' not position = 1",
		Facts: map[string]string{"table": "drivers_championship", "column": "position"},
	}

	got := l.Render()
	for _, want := range []string{
		"Learning: position column is TEXT",
		"Use position = '1' not position = 1",
		"column: position",
		"table: drivers_championship",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q in:\n%s", want, got)
		}
	}

	md := l.Metadata()
	if md[MetaKind] != KindLearning {
		t.Errorf("Metadata()[kind] = %q, want %q", md[MetaKind], KindLearning)
	}
	if md["fact_table"] != "drivers_championship" {
		t.Errorf("Metadata()[fact_table] = %q, want drivers_championship", md["fact_table"])
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "Customer Count", want: "customer_count"},
		{name: "extra whitespace", input: "  a   b\tc ", want: "a_b_c"},
		{name: "already lower", input: "revenue", want: "revenue"},
		{
			name:  "truncated at 80",
			input: strings.Repeat("x", 100),
			want:  strings.Repeat("x", 80),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slugify(tt.input); got != tt.want {
				t.Errorf("slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
