package tabular

import (
	"strings"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
)

// Predicate is the row filter for a free-text search: every term must
// appear in at least one of the text columns. Terms are matched as
// substrings; LIKE wildcards inside a term are not escaped.
type Predicate struct {
	Terms   []string
	Columns []string
}

// BuildPredicate splits search on whitespace and pairs the terms with the
// table's text columns.
func BuildPredicate(search string, textColumns []string) Predicate {
	return Predicate{
		Terms:   strings.Fields(search),
		Columns: textColumns,
	}
}

// MatchAll reports whether the predicate filters nothing: there are no
// terms, or no column a term could be matched against.
func (p Predicate) MatchAll() bool {
	return len(p.Terms) == 0 || len(p.Columns) == 0
}

// Args returns the bound parameters in placeholder order: for each term,
// "%term%" once per column.
func (p Predicate) Args() []any {
	if p.MatchAll() {
		return nil
	}
	args := make([]any, 0, len(p.Terms)*len(p.Columns))
	for _, t := range p.Terms {
		pattern := "%" + t + "%"
		for range p.Columns {
			args = append(args, pattern)
		}
	}
	return args
}

// Apply adds one OR group per term to b, using the dialect's
// case-insensitive pattern operator.
func (p Predicate) Apply(b *database.SelectBuilder, d database.Dialect) *database.SelectBuilder {
	if p.MatchAll() {
		return b
	}
	op := d.ContainsOperator()
	for _, t := range p.Terms {
		b.WhereAny(p.Columns, op, "%"+t+"%")
	}
	return b
}
