// Package sqltemplate reduces SQL queries to structural templates: clause
// and operator structure is preserved while tables, columns and literals
// are replaced with type-tagged placeholders. Two queries are structurally
// equivalent iff their templates are equal, independent of identifier
// casing and literal values.
//
// All dialect quirks (quoting styles, keyword sets) are isolated here; the
// rest of the pipeline only ever compares Templates, never raw SQL text.
package sqltemplate

import (
	"fmt"
	"strings"
)

// Placeholder tokens emitted for abstracted terms.
const (
	PlaceholderTable  = "<TABLE>"
	PlaceholderColumn = "<COL>"
	PlaceholderNumber = "<NUM>"
	PlaceholderString = "<STR>"
)

// Template is the structural abstraction of one SQL query: an ordered
// token sequence with identifiers and literals normalized. Derived on
// demand, never persisted as authoritative data.
type Template struct {
	tokens []string
}

// String renders the template as a space-joined token sequence.
func (t Template) String() string { return strings.Join(t.tokens, " ") }

// Equal reports structural equivalence with another template.
func (t Template) Equal(other Template) bool {
	if len(t.tokens) != len(other.tokens) {
		return false
	}
	for i, tok := range t.tokens {
		if tok != other.tokens[i] {
			return false
		}
	}
	return true
}

// ParseError indicates malformed SQL. Callers treat it as a classification
// outcome ("unparseable"), not a pipeline failure.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sql parse error at offset %d: %s", e.Pos, e.Message)
}

// tableContextKeywords introduce identifiers that name tables rather than
// columns.
var tableContextKeywords = map[string]bool{
	"FROM": true, "JOIN": true, "INTO": true, "UPDATE": true, "TABLE": true,
}

// keywords is the SQLite keyword set, which covers the shared core of the
// dialects the pipeline maps across.
var keywords = makeSet(
	"ABORT", "ACTION", "ADD", "AFTER", "ALL", "ALTER", "ALWAYS", "ANALYZE",
	"AND", "AS", "ASC", "ATTACH", "AUTOINCREMENT", "BEFORE", "BEGIN",
	"BETWEEN", "BY", "CASCADE", "CASE", "CAST", "CHECK", "COLLATE", "COLUMN",
	"COMMIT", "CONFLICT", "CONSTRAINT", "CREATE", "CROSS", "CURRENT",
	"CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "DATABASE",
	"DEFAULT", "DEFERRABLE", "DEFERRED", "DELETE", "DESC", "DETACH",
	"DISTINCT", "DO", "DROP", "EACH", "ELSE", "END", "ESCAPE", "EXCEPT",
	"EXCLUDE", "EXCLUSIVE", "EXISTS", "EXPLAIN", "FAIL", "FILTER", "FIRST",
	"FOLLOWING", "FOR", "FOREIGN", "FROM", "FULL", "GENERATED", "GLOB",
	"GROUP", "GROUPS", "HAVING", "IF", "IGNORE", "IMMEDIATE", "IN", "INDEX",
	"INDEXED", "INITIALLY", "INNER", "INSERT", "INSTEAD", "INTERSECT",
	"INTO", "IS", "ISNULL", "JOIN", "KEY", "LAST", "LEFT", "LIKE", "LIMIT",
	"MATCH", "MATERIALIZED", "NATURAL", "NO", "NOT", "NOTHING", "NOTNULL",
	"NULL", "NULLS", "OF", "OFFSET", "ON", "OR", "ORDER", "OTHERS", "OUTER",
	"OVER", "PARTITION", "PLAN", "PRAGMA", "PRECEDING", "PRIMARY", "QUERY",
	"RAISE", "RANGE", "RECURSIVE", "REFERENCES", "REGEXP", "REINDEX",
	"RELEASE", "RENAME", "REPLACE", "RESTRICT", "RETURNING", "RIGHT",
	"ROLLBACK", "ROW", "ROWS", "SAVEPOINT", "SELECT", "SET", "TABLE", "TEMP",
	"TEMPORARY", "THEN", "TIES", "TO", "TRANSACTION", "TRIGGER", "UNBOUNDED",
	"UNION", "UNIQUE", "UPDATE", "USING", "VACUUM", "VALUES", "VIEW",
	"VIRTUAL", "WHEN", "WHERE", "WINDOW", "WITH", "WITHOUT",
)

func makeSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Abstract computes the structural template of a SQL query. It is
// deterministic: identical input always yields an identical template.
// Malformed SQL returns a *ParseError.
func Abstract(sql string) (Template, error) {
	toks, err := scan(sql)
	if err != nil {
		return Template{}, err
	}
	if len(toks) == 0 {
		return Template{}, &ParseError{Pos: 0, Message: "empty statement"}
	}

	out := make([]string, 0, len(toks))
	depth := 0
	// tableCtx tracks, per paren depth, whether the next identifiers name
	// tables. A FROM inside a subquery must not leak into the outer level.
	tableCtx := map[int]bool{}

	for i, tok := range toks {
		switch tok.kind {
		case tokKeyword:
			upper := tok.upper
			if tableCtx[depth] && upper != "AS" {
				tableCtx[depth] = false
			}
			if tableContextKeywords[upper] {
				tableCtx[depth] = true
			}
			out = append(out, upper)

		case tokIdent, tokQuotedIdent:
			// A bare name followed by "(" is a function call, not a
			// column; function names are part of the structure and kept
			// verbatim (uppercased).
			if tok.kind == tokIdent && nextIsOpenParen(toks, i) {
				out = append(out, tok.upper)
				continue
			}
			if tableCtx[depth] {
				out = append(out, PlaceholderTable)
			} else {
				out = append(out, PlaceholderColumn)
			}

		case tokNumber:
			out = append(out, PlaceholderNumber)

		case tokString:
			out = append(out, PlaceholderString)

		case tokOperator:
			out = append(out, tok.text)

		case tokPunct:
			switch tok.text {
			case "(":
				depth++
				tableCtx[depth] = false
				out = append(out, "(")
			case ")":
				delete(tableCtx, depth)
				depth--
				if depth < 0 {
					return Template{}, &ParseError{Pos: tok.pos, Message: "unbalanced close paren"}
				}
				out = append(out, ")")
			default:
				out = append(out, tok.text)
			}
		}
	}

	if depth != 0 {
		return Template{}, &ParseError{Pos: len(sql), Message: "unbalanced open paren"}
	}
	return Template{tokens: out}, nil
}

func nextIsOpenParen(toks []token, i int) bool {
	return i+1 < len(toks) && toks[i+1].kind == tokPunct && toks[i+1].text == "("
}
