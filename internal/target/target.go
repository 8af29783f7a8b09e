// Package target wraps the analytical database dash answers questions
// about. The rest of the system talks to it through two narrow
// surfaces: Execute (run a SELECT, get rows) and the schema
// Introspector (what is this column, really).
//
// The target is external and untrusted: dash only ever reads from it,
// execution errors drive the recovery loop rather than crashing the
// task, and timeouts are classified separately from SQL errors because
// a timeout does not imply the SQL needs fixing.
package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	_ "modernc.org/sqlite"             // cgo-free sqlite driver
)

var (
	// ErrTimeout indicates the execution exceeded the caller's budget.
	// Classified apart from ExecError: the SQL may be fine, the target slow.
	ErrTimeout = errors.New("target execution timeout")

	// ErrForbiddenSQL indicates a statement rejected by the read-only guard.
	ErrForbiddenSQL = errors.New("forbidden SQL statement")
)

// ExecError is a SQL error from the target database. It is the signal
// that enters the recovery loop.
type ExecError struct {
	SQL string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("executing against target: %v", e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ResultSet is the materialized result of one SELECT.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the result has no rows.
func (r *ResultSet) Empty() bool { return r == nil || len(r.Rows) == 0 }

// Execer runs one SQL statement against the target database.
// Implementations must classify context expiry as ErrTimeout and SQL
// failures as *ExecError.
type Execer interface {
	Execute(ctx context.Context, query string) (*ResultSet, error)
}

// DB is the production Execer over database/sql. Supported drivers:
// "pgx" and "sqlite".
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the target database.
func Open(driver, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening target database: %w", err)
	}
	return &DB{db: db, logger: logger}, nil
}

// Ping verifies the target is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging target database: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Execute runs a read-only statement and materializes the full result.
// Statements failing the read-only guard are rejected before touching
// the target.
func (d *DB) Execute(ctx context.Context, query string) (*ResultSet, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(ctx, query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(ctx, query, err)
	}

	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(ctx, query, err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, query, err)
	}

	d.logger.Debug("executed target query",
		"rows", len(rs.Rows), "elapsed", time.Since(start))
	return rs, nil
}

// classify maps a driver error to the package taxonomy: context expiry
// is a Timeout, everything else an ExecError carrying the SQL.
func classify(ctx context.Context, query string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	return &ExecError{SQL: query, Err: err}
}
