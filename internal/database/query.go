package database

import (
	"fmt"
	"strings"

	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string; they are always passed as args.
// Identifiers are quoted, but callers must still only pass names taken from
// an introspected TableInfo.
//
// Usage (SQLite):
//
//	sql, args, err := Select("Products", DialectSQLite).
//	    WhereAny([]string{"name", "desc"}, "LIKE", "%red%").
//	    OrderBy("rowid", Asc).
//	    Limit(10).
//	    Offset(0).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereGroup
	orderBy []orderClause
	limit   *int
	offset  *int
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
	value  any
}

// whereGroup is a disjunction; groups are combined with AND.
type whereGroup []whereClause

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
// operators (=, !=, <, >, <=, >=, LIKE, ILIKE).
// Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereGroup{{column, op, value}})
	return b
}

// WhereAny adds one condition group that holds when `column op value` is true
// for at least one of columns. The value is bound once per column.
// Groups from separate calls are combined with AND. An empty column list adds
// nothing.
func (b *SelectBuilder) WhereAny(columns []string, op string, value any) *SelectBuilder {
	if len(columns) == 0 {
		return b
	}
	g := make(whereGroup, len(columns))
	for i, c := range columns {
		g[i] = whereClause{c, op, value}
	}
	b.where = append(b.where, g)
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

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	// --- column list ---
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.dialect.QuoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteIdent(b.table))

	args, err := b.writeWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	argIdx := len(args) + 1

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.dialect.QuoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT ---
	if b.limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %s", b.dialect.Placeholder(argIdx)))
		args = append(args, *b.limit)
		argIdx++
	}

	// --- OFFSET ---
	if b.offset != nil {
		sb.WriteString(fmt.Sprintf(" OFFSET %s", b.dialect.Placeholder(argIdx)))
		args = append(args, *b.offset)
	}

	return sb.String(), args, nil
}

// BuildCount produces a SELECT COUNT(*) over the same table and WHERE groups
// as Build. Columns, ORDER BY, LIMIT and OFFSET are ignored.
func (b *SelectBuilder) BuildCount() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(b.dialect.QuoteIdent(b.table))

	args, err := b.writeWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

// writeWhere renders the WHERE clause, numbering placeholders from 1.
func (b *SelectBuilder) writeWhere(sb *strings.Builder) ([]any, error) {
	if len(b.where) == 0 {
		return nil, nil
	}

	var args []any
	argIdx := 1
	groups := make([]string, 0, len(b.where))
	for _, g := range b.where {
		parts := make([]string, 0, len(g))
		for _, w := range g {
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", b.dialect.QuoteIdent(w.column), op, b.dialect.Placeholder(argIdx)))
			args = append(args, w.value)
			argIdx++
		}
		if len(parts) == 1 {
			groups = append(groups, parts[0])
		} else {
			groups = append(groups, "("+strings.Join(parts, " OR ")+")")
		}
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(groups, " AND "))
	return args, nil
}

// InsertBuilder constructs a single-row parameterized INSERT.
type InsertBuilder struct {
	table   string
	dialect Dialect
	columns []string
	values  []any
}

// Insert starts a new InsertBuilder for the given table and dialect.
func Insert(table string, d Dialect) *InsertBuilder {
	return &InsertBuilder{table: table, dialect: d}
}

// Set adds one column/value pair to the row.
func (b *InsertBuilder) Set(column string, value any) *InsertBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
	return b
}

// Build produces the INSERT statement and its arguments. A row without
// columns is inserted with DEFAULT VALUES.
func (b *InsertBuilder) Build() (string, []any) {
	table := b.dialect.QuoteIdent(b.table)
	if len(b.columns) == 0 {
		if b.dialect == DialectMySQL {
			return "INSERT INTO " + table + " () VALUES ()", nil
		}
		return "INSERT INTO " + table + " DEFAULT VALUES", nil
	}

	cols := make([]string, len(b.columns))
	marks := make([]string, len(b.columns))
	for i, c := range b.columns {
		cols[i] = b.dialect.QuoteIdent(c)
		marks[i] = b.dialect.Placeholder(i + 1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return q, append([]any(nil), b.values...)
}
