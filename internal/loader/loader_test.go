package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koopa0/dash/internal/knowledge"
	"github.com/koopa0/dash/internal/log"
)

// fakeStore tracks adds and retires per entry name.
type fakeStore struct {
	entries []knowledge.Entry
	retired []string
}

func (f *fakeStore) Add(ctx context.Context, e knowledge.Entry) (knowledge.Entry, error) {
	e.Seq = int64(len(f.entries) + 1)
	e.Dimension = 768
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeStore) Retire(ctx context.Context, name string) (int64, error) {
	f.retired = append(f.retired, name)
	var n int64
	for _, e := range f.entries {
		if e.Name == name {
			n++
		}
	}
	return n, nil
}

const curatedYAML = `tables:
  - table: customer
    notes: one row per account; c_acctbal can be negative
    columns:
      - name: c_custkey
        type: BIGINT
        description: primary key
      - name: c_mktsegment
        type: TEXT
        description: one of five market segments
rules:
  - name: revenue
    definition: discounted extended price
    formula: l_extendedprice * (1 - l_discount)
    gotchas:
      - issue: o_totalprice includes tax
        solution: use lineitem-derived revenue for margin questions
queries:
  - name: orders per year
    description: yearly order volume
    sql: |
      SELECT strftime('%Y', o_orderdate) AS year, COUNT(*)
      FROM orders GROUP BY 1 ORDER BY 1
`

func writeCurated(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	store := &fakeStore{}
	l := New(store, log.NewNop())
	path := writeCurated(t, t.TempDir(), "tpch.yaml", curatedYAML)

	res, err := l.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if res.Loaded != 3 {
		t.Errorf("Loaded = %d, want 3", res.Loaded)
	}
	if res.Retired != 0 {
		t.Errorf("Retired = %d on first load, want 0", res.Retired)
	}

	names := make(map[string]string)
	for _, e := range store.entries {
		names[e.Name] = e.Content
	}
	if _, ok := names["table_customer"]; !ok {
		t.Errorf("missing table entry; have %v", names)
	}
	if !strings.Contains(names["rule_revenue"], "l_extendedprice * (1 - l_discount)") {
		t.Errorf("rule entry missing formula: %q", names["rule_revenue"])
	}
	if !strings.Contains(names["query_orders_per_year"], "GROUP BY 1") {
		t.Errorf("query entry missing SQL: %q", names["query_orders_per_year"])
	}
	if store.entries[0].Metadata[knowledge.MetaKind] != knowledge.KindTableMetadata {
		t.Errorf("table entry kind = %q", store.entries[0].Metadata[knowledge.MetaKind])
	}
}

func TestLoadFile_ReloadRetiresPrevious(t *testing.T) {
	store := &fakeStore{}
	l := New(store, log.NewNop())
	path := writeCurated(t, t.TempDir(), "tpch.yaml", curatedYAML)

	if _, err := l.LoadFile(context.Background(), path); err != nil {
		t.Fatalf("first load: %v", err)
	}
	res, err := l.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	// Append-only: six entries total, the first three retired.
	if len(store.entries) != 6 {
		t.Errorf("entries after reload = %d, want 6", len(store.entries))
	}
	if res.Retired != 3 {
		t.Errorf("Retired = %d, want 3", res.Retired)
	}
}

func TestLoadFile_UnnamedEntry(t *testing.T) {
	store := &fakeStore{}
	l := New(store, log.NewNop())
	path := writeCurated(t, t.TempDir(), "bad.yaml", "rules:\n  - definition: nameless\n")

	if _, err := l.LoadFile(context.Background(), path); err == nil {
		t.Fatal("LoadFile() accepted an unnamed rule")
	}
	if len(store.entries) != 0 {
		t.Errorf("unnamed rule was stored: %v", store.entries)
	}
}

func TestLoadFile_BadYAML(t *testing.T) {
	l := New(&fakeStore{}, log.NewNop())
	path := writeCurated(t, t.TempDir(), "broken.yaml", "tables: [unclosed")

	if _, err := l.LoadFile(context.Background(), path); err == nil {
		t.Fatal("LoadFile() accepted malformed YAML")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeCurated(t, dir, "b_rules.yaml", "rules:\n  - name: margin\n    definition: revenue minus cost\n")
	writeCurated(t, dir, "a_tables.yml", "tables:\n  - table: orders\n    notes: o_orderdate is a DATE\n")
	writeCurated(t, dir, "ignore.txt", "not yaml")

	store := &fakeStore{}
	l := New(store, log.NewNop())

	res, err := l.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if res.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", res.Loaded)
	}
	// Lexical order: a_tables.yml before b_rules.yaml.
	if store.entries[0].Name != "table_orders" {
		t.Errorf("first entry = %q, want table_orders", store.entries[0].Name)
	}
}

func TestLoadDir_Empty(t *testing.T) {
	l := New(&fakeStore{}, log.NewNop())
	if _, err := l.LoadDir(context.Background(), t.TempDir()); err == nil {
		t.Fatal("LoadDir() accepted a directory with no curated files")
	}
}
