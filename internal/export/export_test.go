package export

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/koopa0/dash/internal/log"
	"github.com/koopa0/dash/internal/target"
)

type fakeExecer struct {
	result *target.ResultSet
	err    error
}

func (f *fakeExecer) Execute(ctx context.Context, query string) (*target.ResultSet, error) {
	return f.result, f.err
}

func testExporter(t *testing.T, exec target.Execer) *Exporter {
	t.Helper()
	e := NewExporter(exec, t.TempDir(), log.NewNop())
	e.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	}
	return e
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		column string
		sample any
		want   string
	}{
		{column: "o_totalprice", sample: float64(1), want: "$#,##0.00"},
		{column: "revenue", sample: float64(1), want: "$#,##0.00"},
		{column: "c_acctbal", sample: float64(1), want: "$#,##0.00"},
		{column: "urgent_pct", sample: float64(1), want: "0.00%"},
		{column: "order_count", sample: int64(1), want: "#,##0"},
		{column: "o_orderdate", sample: "1995-01-01", want: "YYYY-MM-DD"},
		{column: "created_at", sample: "x", want: "YYYY-MM-DD"},
		{column: "score", sample: float64(1), want: "#,##0.00"},
		{column: "seq", sample: int64(1), want: "#,##0"},
		{column: "n_name", sample: "FRANCE", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			if got := detectFormat(tt.column, tt.sample); got != tt.want {
				t.Errorf("detectFormat(%q) = %q, want %q", tt.column, got, tt.want)
			}
		})
	}
}

func TestExport_WritesWorkbook(t *testing.T) {
	exec := &fakeExecer{result: &target.ResultSet{
		Columns: []string{"n_name", "revenue"},
		Rows: [][]any{
			{"FRANCE", float64(1234567.89)},
			{"GERMANY", float64(987654.32)},
			{"JAPAN", float64(555555.55)},
		},
	}}
	e := testExporter(t, exec)

	path, err := e.Export(context.Background(),
		"SELECT n_name, revenue FROM nation_revenue", "Revenue by Nation", "")
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if filepath.Base(path) != "revenue_by_nation_20260314_150926.xlsx" {
		t.Errorf("Export() path = %q", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening exported workbook: %v", err)
	}
	defer f.Close()

	title, err := f.GetCellValue("Data", "A1")
	if err != nil || title != "Revenue by Nation" {
		t.Errorf("title cell = %q (%v)", title, err)
	}
	// Header lands below the title block.
	header, _ := f.GetCellValue("Data", "A3")
	if header != "n_name" {
		t.Errorf("header cell = %q, want n_name", header)
	}
	first, _ := f.GetCellValue("Data", "A4")
	if first != "FRANCE" {
		t.Errorf("first data cell = %q, want FRANCE", first)
	}
	last, _ := f.GetCellValue("Data", "A6")
	if last != "JAPAN" {
		t.Errorf("last data cell = %q, want JAPAN", last)
	}
}

func TestExport_NoTitleStartsAtFirstRow(t *testing.T) {
	exec := &fakeExecer{result: &target.ResultSet{
		Columns: []string{"cnt"},
		Rows:    [][]any{{int64(42)}},
	}}
	e := testExporter(t, exec)

	path, err := e.Export(context.Background(), "SELECT count(*) AS cnt FROM t", "", "Counts")
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "export_") {
		t.Errorf("untitled export file = %q", filepath.Base(path))
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening exported workbook: %v", err)
	}
	defer f.Close()

	header, _ := f.GetCellValue("Counts", "A1")
	if header != "cnt" {
		t.Errorf("header cell = %q, want cnt", header)
	}
	value, _ := f.GetCellValue("Counts", "A2")
	if value != "42" {
		t.Errorf("data cell = %q, want 42", value)
	}
}

func TestExport_RejectsWrites(t *testing.T) {
	e := testExporter(t, &fakeExecer{})
	_, err := e.Export(context.Background(), "DELETE FROM orders", "", "")
	if !errors.Is(err, target.ErrForbiddenSQL) {
		t.Fatalf("Export() = %v, want ErrForbiddenSQL", err)
	}
}

func TestExport_EmptyResult(t *testing.T) {
	e := testExporter(t, &fakeExecer{result: &target.ResultSet{Columns: []string{"n"}}})
	if _, err := e.Export(context.Background(), "SELECT n FROM t WHERE 1=0", "", ""); err == nil {
		t.Fatal("Export() accepted an empty result")
	}
}

func TestExport_TooManyRows(t *testing.T) {
	rows := make([][]any, MaxRows+1)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	e := testExporter(t, &fakeExecer{result: &target.ResultSet{Columns: []string{"n"}, Rows: rows}})

	_, err := e.Export(context.Background(), "SELECT n FROM big", "", "")
	if err == nil || !strings.Contains(err.Error(), "LIMIT") {
		t.Fatalf("Export() = %v, want row-limit error", err)
	}
}

func TestFileSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "Revenue by Nation", want: "revenue_by_nation"},
		{input: "", want: "export"},
		{input: "!!!", want: "export"},
		{input: "Q1 2026: Top-10 Parts (EU)", want: "q1_2026_top_10_parts_eu"},
	}
	for _, tt := range tests {
		if got := fileSlug(tt.input); got != tt.want {
			t.Errorf("fileSlug(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
