package target

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koopa0/dash/internal/log"
)

// openTestDB opens an in-memory sqlite target seeded with a small table.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	d, err := Open("sqlite", ":memory:", log.NewNop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	// A pooled :memory: database is one database per connection; pin the
	// pool to a single connection so every query sees the seeded table.
	d.db.SetMaxOpenConns(1)

	// Seeding goes through the raw handle; Execute is read-only by contract.
	_, err = d.db.Exec(`CREATE TABLE customer (
		c_custkey INTEGER NOT NULL,
		c_name TEXT NOT NULL,
		c_acctbal REAL
	)`)
	if err != nil {
		t.Fatalf("creating test table: %v", err)
	}
	_, err = d.db.Exec(`INSERT INTO customer VALUES
		(1, 'Customer#000000001', 711.56),
		(2, 'Customer#000000002', 121.65),
		(3, 'Customer#000000003', -498.12)`)
	if err != nil {
		t.Fatalf("seeding test table: %v", err)
	}
	return d
}

func TestExecute(t *testing.T) {
	d := openTestDB(t)

	rs, err := d.Execute(context.Background(), "SELECT c_custkey, c_name FROM customer ORDER BY c_custkey")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(rs.Columns) != 2 {
		t.Errorf("Execute() columns = %v, want 2", rs.Columns)
	}
	if len(rs.Rows) != 3 {
		t.Fatalf("Execute() rows = %d, want 3", len(rs.Rows))
	}
	if rs.Empty() {
		t.Error("Execute() result reported Empty()")
	}
}

func TestExecute_SQLErrorIsExecError(t *testing.T) {
	d := openTestDB(t)

	_, err := d.Execute(context.Background(), "SELECT no_such_column FROM customer")
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %T %v, want *ExecError", err, err)
	}
	if execErr.SQL == "" {
		t.Error("ExecError.SQL is empty, want the failing statement")
	}
}

func TestExecute_ForbiddenSQL(t *testing.T) {
	d := openTestDB(t)

	_, err := d.Execute(context.Background(), "DROP TABLE customer")
	if !errors.Is(err, ErrForbiddenSQL) {
		t.Errorf("Execute(DROP) = %v, want ErrForbiddenSQL", err)
	}

	// The guard must fire before the target sees anything.
	rs, err := d.Execute(context.Background(), "SELECT COUNT(*) AS n FROM customer")
	if err != nil {
		t.Fatalf("Execute() after rejected DROP: %v", err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("customer table gone after rejected DROP")
	}
}

func TestExecute_TimeoutClassification(t *testing.T) {
	d := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := d.Execute(ctx, "SELECT COUNT(*) FROM customer")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() with expired deadline = %v, want ErrTimeout", err)
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		t.Errorf("timeout misclassified as ExecError: %v", err)
	}
}

func TestIntrospector_GenericFallback(t *testing.T) {
	// sqlite has no information_schema; Describe must fall through to
	// the generic zero-row probe.
	d := openTestDB(t)
	in := NewIntrospector(d, false, log.NewNop())

	info, err := in.Describe(context.Background(), "customer", "")
	if err != nil {
		t.Fatalf("Describe() error: %v", err)
	}
	if len(info.Columns) != 3 {
		t.Fatalf("Describe() columns = %d, want 3", len(info.Columns))
	}
	if info.Columns[0].Name != "c_custkey" {
		t.Errorf("Describe() first column = %q, want c_custkey", info.Columns[0].Name)
	}
}

func TestIntrospector_SingleColumn(t *testing.T) {
	d := openTestDB(t)
	in := NewIntrospector(d, true, log.NewNop())

	info, err := in.Describe(context.Background(), "customer", "c_acctbal")
	if err != nil {
		t.Fatalf("Describe() error: %v", err)
	}
	if len(info.Columns) != 1 {
		t.Fatalf("Describe(column) returned %d columns, want 1", len(info.Columns))
	}
	if got := info.Columns[0].Name; got != "c_acctbal" {
		t.Errorf("Describe(column) = %q, want c_acctbal", got)
	}
	if len(info.Columns[0].SampleValues) == 0 {
		t.Error("Describe(column) with samples returned none")
	}
}

func TestIntrospector_Unavailable(t *testing.T) {
	d := openTestDB(t)
	in := NewIntrospector(d, false, log.NewNop())

	_, err := in.Describe(context.Background(), "no_such_table", "")
	if !errors.Is(err, ErrSchemaUnavailable) {
		t.Errorf("Describe(missing table) = %v, want ErrSchemaUnavailable", err)
	}

	_, err = in.Describe(context.Background(), "customer; DROP", "")
	if !errors.Is(err, ErrSchemaUnavailable) {
		t.Errorf("Describe(bad identifier) = %v, want ErrSchemaUnavailable", err)
	}
}
