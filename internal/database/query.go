package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/querygate/internal/errs"
)

// Dialect controls placeholder style, identifier quoting and how the row
// limit is expressed.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and LIMIT.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders, backtick quoting and LIMIT.
	DialectMySQL

	// DialectSQLServer uses @p1, @p2, … placeholders, bracket quoting and TOP.
	DialectSQLServer

	// DialectDuckDB uses ? placeholders and LIMIT.
	DialectDuckDB
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":    true,
	"!=":   true,
	"<>":   true,
	"<":    true,
	">":    true,
	"<=":   true,
	">=":   true,
	"LIKE": true,
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string; they are always passed as args.
// Table and column names may be schema-qualified ("information_schema.tables").
//
// Usage (SQL Server):
//
//	sql, args, err := Select("INFORMATION_SCHEMA.TABLES", DialectSQLServer).
//	    Columns("TABLE_SCHEMA", "TABLE_NAME").
//	    Where("TABLE_TYPE", "=", "BASE TABLE").
//	    OrderBy("TABLE_SCHEMA", Asc).
//	    OrderBy("TABLE_NAME", Asc).
//	    Limit(25).
//	    Build()
//
//	// SELECT TOP (@p1) [TABLE_SCHEMA], [TABLE_NAME] FROM [INFORMATION_SCHEMA].[TABLES]
//	// WHERE [TABLE_TYPE] = @p2 ORDER BY [TABLE_SCHEMA] ASC, [TABLE_NAME] ASC
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	values []any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition. op must be one of the allowed comparison
// operators (=, !=, <>, <, >, <=, >=, LIKE).
// Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, op: op, values: []any{value}})
	return b
}

// WhereNotIn excludes rows whose column matches any of values.
// An empty values list adds no condition.
func (b *SelectBuilder) WhereNotIn(column string, values ...any) *SelectBuilder {
	if len(values) == 0 {
		return b
	}
	b.where = append(b.where, whereClause{column: column, op: "NOT IN", values: values})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist or the
// limit is negative.
func (b *SelectBuilder) Build() (string, []any, error) {
	if b.limit != nil && *b.limit < 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("negative limit: %d", *b.limit))
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return b.placeholder(len(args))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")

	// --- TOP (SQL Server) ---
	// Bound first so its placeholder is @p1.
	if b.limit != nil && b.dialect == DialectSQLServer {
		sb.WriteString(fmt.Sprintf("TOP (%s) ", next(*b.limit)))
	}

	// --- column list ---
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.quoteIdent(b.table))

	// --- WHERE ---
	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			op := strings.ToUpper(w.op)
			if op == "NOT IN" {
				ph := make([]string, len(w.values))
				for i, v := range w.values {
					ph[i] = next(v)
				}
				parts = append(parts, fmt.Sprintf("%s NOT IN (%s)", b.quoteIdent(w.column), strings.Join(ph, ", ")))
				continue
			}
			if !validOps[op] {
				return "", nil, errs.New(errs.ErrKindInvalidInput,
					fmt.Sprintf("unsupported WHERE operator: %q", w.op))
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", b.quoteIdent(w.column), op, next(w.values[0])))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.quoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT ---
	if b.limit != nil && b.dialect != DialectSQLServer {
		sb.WriteString(" LIMIT ")
		sb.WriteString(next(*b.limit))
	}

	return sb.String(), args, nil
}

// placeholder returns the correct parameter placeholder for the dialect.
// Postgres: $1, $2, …   SQL Server: @p1, @p2, …   MySQL/DuckDB: ?
func (b *SelectBuilder) placeholder(idx int) string {
	switch b.dialect {
	case DialectMySQL, DialectDuckDB:
		return "?"
	case DialectSQLServer:
		return fmt.Sprintf("@p%d", idx)
	default:
		return fmt.Sprintf("$%d", idx)
	}
}

// quoteIdent quotes every dot-separated part of a possibly qualified name.
// ANSI double quotes for Postgres/DuckDB, backticks for MySQL (which only
// honours double quotes in ANSI_QUOTES mode), brackets for SQL Server.
func (b *SelectBuilder) quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		switch b.dialect {
		case DialectMySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case DialectSQLServer:
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}
