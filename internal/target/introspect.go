package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ErrSchemaUnavailable indicates introspection failed on every path.
// Callers surface it and move on; a missing schema never kills the task.
var ErrSchemaUnavailable = errors.New("schema unavailable")

// ColumnInfo is the live truth about one column, as opposed to whatever
// the curated metadata claims.
type ColumnInfo struct {
	Name         string
	Type         string
	Nullable     bool
	SampleValues []string
}

// TableInfo is the live schema of one table.
type TableInfo struct {
	Table   string
	Columns []ColumnInfo
}

// Introspector answers "what is this table/column really" against the
// live target. It is independent of the knowledge spaces and callable
// at any time, typically while diagnosing a failed execution.
type Introspector struct {
	db      *sql.DB
	samples bool
	logger  *slog.Logger
}

// NewIntrospector creates an Introspector over the target connection.
// When samples is true, Describe also fetches a few distinct values per
// column, which costs one extra query per column.
func NewIntrospector(db *DB, samples bool, logger *slog.Logger) *Introspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Introspector{db: db.db, samples: samples, logger: logger}
}

// identRe is the shape of a bare SQL identifier. Table and column names
// are interpolated into introspection queries, so anything else is
// rejected up front.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Describe reports the live schema of a table, or of a single column
// when column is non-empty.
//
// Two paths, tried in order:
//
//  1. information_schema.columns, for precise types and nullability on
//     engines that have it.
//  2. A zero-row SELECT against the table itself, reading driver
//     column-type metadata. Works on engines whose catalogs differ
//     from the reference layout (no information_schema, columnar
//     catalogs, etc.).
//
// Only when both fail does Describe return ErrSchemaUnavailable.
func (in *Introspector) Describe(ctx context.Context, table, column string) (*TableInfo, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrSchemaUnavailable, table)
	}
	if column != "" && !identRe.MatchString(column) {
		return nil, fmt.Errorf("%w: invalid column name %q", ErrSchemaUnavailable, column)
	}

	info, primaryErr := in.describeCatalog(ctx, table)
	if primaryErr != nil {
		in.logger.Debug("catalog introspection failed, trying generic path",
			"table", table, "error", primaryErr)
		var fallbackErr error
		info, fallbackErr = in.describeGeneric(ctx, table)
		if fallbackErr != nil {
			return nil, fmt.Errorf("%w: catalog path: %v; generic path: %v",
				ErrSchemaUnavailable, primaryErr, fallbackErr)
		}
	}

	if column != "" {
		filtered := make([]ColumnInfo, 0, 1)
		for _, c := range info.Columns {
			if strings.EqualFold(c.Name, column) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("%w: column %q not found in %q",
				ErrSchemaUnavailable, column, table)
		}
		info.Columns = filtered
	}

	if in.samples {
		in.attachSamples(ctx, info)
	}

	return info, nil
}

// describeCatalog reads information_schema.columns.
func (in *Introspector) describeCatalog(ctx context.Context, table string) (*TableInfo, error) {
	const catalogSQL = `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`

	rows, err := in.db.QueryContext(ctx, catalogSQL, table)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema: %w", err)
	}
	defer rows.Close()

	info := &TableInfo{Table: table}
	for rows.Next() {
		var c ColumnInfo
		var nullable string
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		info.Columns = append(info.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog rows: %w", err)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %q not present in information_schema", table)
	}
	return info, nil
}

// describeGeneric reads driver metadata from a zero-row scan of the
// table itself.
func (in *Introspector) describeGeneric(ctx context.Context, table string) (*TableInfo, error) {
	// table passed identRe; interpolation is safe.
	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, fmt.Errorf("probing table: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}

	info := &TableInfo{Table: table}
	for _, ct := range types {
		c := ColumnInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
		if nullable, ok := ct.Nullable(); ok {
			c.Nullable = nullable
		}
		info.Columns = append(info.Columns, c)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns", table)
	}
	return info, nil
}

// maxSampleValues caps per-column sample fetches.
const maxSampleValues = 5

// attachSamples best-effort fetches a few distinct values per column.
// Failures are logged and skipped; samples are a diagnosis aid, not a
// contract.
func (in *Introspector) attachSamples(ctx context.Context, info *TableInfo) {
	for i := range info.Columns {
		col := info.Columns[i].Name
		if !identRe.MatchString(col) {
			continue
		}
		sampleSQL := fmt.Sprintf(
			"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
			col, info.Table, col, maxSampleValues)

		rows, err := in.db.QueryContext(ctx, sampleSQL)
		if err != nil {
			in.logger.Debug("sample fetch failed", "column", col, "error", err)
			continue
		}
		for rows.Next() {
			var v any
			if err := rows.Scan(&v); err != nil {
				break
			}
			info.Columns[i].SampleValues = append(info.Columns[i].SampleValues,
				fmt.Sprintf("%v", v))
		}
		rows.Close()
	}
}

// Render formats the table info as the diagnosis context block handed
// to the model.
func (ti *TableInfo) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Live schema for %s:\n", ti.Table)
	for _, c := range ti.Columns {
		fmt.Fprintf(&b, "- %s %s", c.Name, c.Type)
		if c.Nullable {
			b.WriteString(" NULL")
		} else {
			b.WriteString(" NOT NULL")
		}
		if len(c.SampleValues) > 0 {
			fmt.Fprintf(&b, " (samples: %s)", strings.Join(c.SampleValues, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
