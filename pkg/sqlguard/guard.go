// Package sqlguard screens model-generated SQL before it touches a live
// database. Generated queries are untrusted input: they may contain
// multiple statements, writes, or injection-shaped literals, none of which
// the execution evaluator should ever pass to an engine unchecked.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL
	// statements; only single statements are executed.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")

	// ErrNotReadOnly indicates the statement is not a plain query.
	ErrNotReadOnly = errors.New("only SELECT/WITH statements are executed")
)

// Normalize strips the trailing semicolon and rejects multi-statement
// input. Returns the normalized single statement.
func Normalize(sqlQuery string) (string, error) {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return "", nil
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// EnsureReadOnly rejects statements that are not queries. The execution
// evaluator additionally wraps every run in a rolled-back transaction, but
// a mutating statement should never get that far.
func EnsureReadOnly(sqlQuery string) error {
	trimmed := strings.TrimSpace(sqlQuery)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return nil
	}
	return fmt.Errorf("%w: statement begins with %q", ErrNotReadOnly, firstWord(trimmed))
}

// InjectionCheckResult describes an injection-shaped literal found in a
// generated query.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string // libinjection fingerprint of the detected pattern
	Literal     string
}

// ScreenLiterals runs libinjection over every string literal in the query.
// A mapped constant that itself parses as SQL is a strong sign the model
// smuggled structure into a value position.
func ScreenLiterals(sqlQuery string) *InjectionCheckResult {
	for _, literal := range stringLiterals(sqlQuery) {
		isSQLi, fingerprint := libinjection.IsSQLi(literal)
		if isSQLi {
			return &InjectionCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				Literal:     literal,
			}
		}
	}
	return nil
}

// stringLiterals extracts the contents of single-quoted literals, honoring
// the SQL '' escape.
func stringLiterals(sqlQuery string) []string {
	var literals []string
	i := 0
	n := len(sqlQuery)
	for i < n {
		if sqlQuery[i] != '\'' {
			i++
			continue
		}
		j := i + 1
		var sb strings.Builder
		for j < n {
			if sqlQuery[j] == '\'' {
				if j+1 < n && sqlQuery[j+1] == '\'' {
					sb.WriteByte('\'')
					j += 2
					continue
				}
				break
			}
			sb.WriteByte(sqlQuery[j])
			j++
		}
		literals = append(literals, sb.String())
		i = j + 1
	}
	return literals
}

func firstWord(s string) string {
	if idx := strings.IndexAny(s, " \t\n\r("); idx > 0 {
		return s[:idx]
	}
	return s
}

// hasSemicolonOutsideStrings returns true if the SQL contains any
// semicolon outside of string literals or quoted identifiers.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Both backslash escape (\') and SQL standard escape ('')
			// keep us inside the literal.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}
	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	sqlQuery = strings.TrimSuffix(sqlQuery, ";")
	return strings.TrimRight(sqlQuery, " \t\n\r")
}
