package database

import (
	"fmt"
	"strings"
)

// Dialect controls placeholder style, identifier quoting and type
// classification for one SQL flavour.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and "double" quotes.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `backtick` quotes.
	DialectMySQL

	// DialectSQLite uses ? placeholders and "double" quotes.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Placeholder returns the bind parameter marker for the 1-based position idx.
func (d Dialect) Placeholder(idx int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// QuoteIdent wraps a SQL identifier in the dialect's quote characters,
// doubling any embedded quote character.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ContainsOperator is the case-insensitive pattern operator used for search.
// SQLite LIKE and MySQL LIKE (default collations) already ignore ASCII case.
func (d Dialect) ContainsOperator() string {
	if d == DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// ImplicitRowKey names a hidden column that gives every row a stable
// position when the table declares no primary key. Empty when the
// dialect has none.
func (d Dialect) ImplicitRowKey() string {
	if d == DialectSQLite {
		return "rowid"
	}
	return ""
}

// IsTextType reports whether a declared column type holds text and can be
// searched with a pattern match.
func (d Dialect) IsTextType(dataType string) bool {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch d {
	case DialectSQLite:
		// SQLite type affinity rule 2: CHAR, CLOB or TEXT anywhere in the name.
		return strings.Contains(t, "char") || strings.Contains(t, "clob") || strings.Contains(t, "text")
	case DialectPostgres:
		switch t {
		case "text", "character varying", "varchar", "character", "char", "bpchar", "citext", "name":
			return true
		}
		return false
	case DialectMySQL:
		if i := strings.IndexByte(t, '('); i >= 0 {
			t = t[:i]
		}
		switch t {
		case "char", "varchar", "tinytext", "text", "mediumtext", "longtext", "enum", "set":
			return true
		}
		return false
	default:
		return false
	}
}
