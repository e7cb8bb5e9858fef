// Package query turns a raw search string and an optional date range into
// parameterized SQL over the note table. User input only ever travels as
// bound arguments.
package query

import "strings"

// Columns selected by every listing query, in scan order.
const Columns = "rowid, uuid4, title, url, tags, description, comments, annotations, created_at, is_public"

// Fields matched by each search token.
var searchFields = []string{"title", "url", "tags", "description"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Tokenize collapses ASCII whitespace runs, trims and splits q.
func Tokenize(q string) []string {
	return strings.FieldsFunc(q, isASCIISpace)
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Where is a composed WHERE clause and its positional arguments.
// SQL is empty when no predicate applies.
type Where struct {
	SQL  string
	Args []any
}

// Build composes the predicate for q and the optional [from, to] date range.
// The range only applies when both bounds are non-empty. Tokens match as
// literal substrings; SQLite LIKE folds case for ASCII letters only.
func Build(q, from, to string) Where {
	var (
		parts []string
		args  []any
	)
	for _, tok := range Tokenize(q) {
		pattern := "%" + likeEscaper.Replace(tok) + "%"
		ors := make([]string, len(searchFields))
		for i, f := range searchFields {
			ors[i] = f + ` LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	if from != "" && to != "" {
		parts = append(parts, "substr(created_at, 1, 10) BETWEEN ? AND ?")
		args = append(args, from, to)
	}
	if len(parts) == 0 {
		return Where{}
	}
	return Where{SQL: " WHERE " + strings.Join(parts, " AND "), Args: args}
}

// Page returns the ordered, paginated listing query.
func (w Where) Page(limit, offset int64) (string, []any) {
	sql := "SELECT " + Columns + " FROM note" + w.SQL +
		" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	return sql, append(w.cloneArgs(), limit, offset)
}

// Count returns the COUNT(1) query.
func (w Where) Count() (string, []any) {
	return "SELECT COUNT(1) FROM note" + w.SQL, w.cloneArgs()
}

// ByDay returns the per-day histogram query ordered by day.
func (w Where) ByDay() (string, []any) {
	sql := "SELECT substr(created_at, 1, 10) AS dt, COUNT(1) FROM note" + w.SQL +
		" GROUP BY dt ORDER BY dt"
	return sql, w.cloneArgs()
}

// Tags returns the query fetching raw tag strings; folding happens in Go.
func (w Where) Tags() (string, []any) {
	return "SELECT tags FROM note" + w.SQL, w.cloneArgs()
}

func (w Where) cloneArgs() []any {
	out := make([]any, len(w.Args), len(w.Args)+2)
	copy(out, w.Args)
	return out
}
