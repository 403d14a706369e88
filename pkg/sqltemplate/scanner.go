package sqltemplate

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokKeyword tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokNumber
	tokString
	tokOperator
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string // verbatim for operators/punctuation
	upper string // uppercased form for keywords/identifiers
	pos   int
}

// scan tokenizes a SQL statement. It understands single-quoted strings
// (with '' escaping), double-quoted / backtick / bracket-quoted
// identifiers, line and block comments, qualified names and numeric
// literals. Anything it cannot place is a ParseError.
func scan(sql string) ([]token, error) {
	var toks []token
	i := 0
	n := len(sql)

	for i < n {
		c := sql[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			// Line comment.
			for i < n && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end == -1 {
				return nil, &ParseError{Pos: i, Message: "unterminated block comment"}
			}
			i += end + 4

		case c == '\'':
			j, err := scanSingleQuoted(sql, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, pos: i})
			i = j

		case isDigit(c), c == '.' && i+1 < n && isDigit(sql[i+1]):
			j := i
			for j < n && (isDigit(sql[j]) || sql[j] == '.' ||
				sql[j] == 'e' || sql[j] == 'E' ||
				((sql[j] == '+' || sql[j] == '-') && j > i && (sql[j-1] == 'e' || sql[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, pos: i})
			i = j

		case isIdentStart(c), c == '"', c == '`', c == '[':
			tok, j, err := scanName(sql, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = j

		case strings.IndexByte("<>=!|", c) >= 0:
			j := i + 1
			for j < n && strings.IndexByte("<>=|", sql[j]) >= 0 {
				j++
			}
			toks = append(toks, token{kind: tokOperator, text: sql[i:j], pos: i})
			i = j

		case strings.IndexByte("+-*/%", c) >= 0:
			toks = append(toks, token{kind: tokOperator, text: string(c), pos: i})
			i++

		case strings.IndexByte("(),;", c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++

		case c == '?' || c == ':' || c == '$' || c == '@':
			// Bind parameter markers abstract like literals.
			j := i + 1
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			toks = append(toks, token{kind: tokString, pos: i})
			i = j

		default:
			return nil, &ParseError{Pos: i, Message: "unexpected character " + string(rune(c))}
		}
	}
	return toks, nil
}

// scanName consumes one identifier: a bare, double-quoted, backtick or
// bracket-quoted part, optionally qualified with further dot-joined parts
// in any mix of quoting styles ("t"."c", t."c", `T1`.`col`, s.[name]).
// The whole name is a single token, so quoting never changes the shape of
// the resulting template. A final .* wildcard part belongs to the name.
func scanName(sql string, start int) (token, int, error) {
	i := start
	n := len(sql)
	parts := 0
	quoted := false
	bare := ""

	for {
		switch c := sql[i]; {
		case c == '"' || c == '`':
			j := scanDelimited(sql, i, rune(c))
			if j == -1 {
				return token{}, 0, &ParseError{Pos: i, Message: "unterminated quoted identifier"}
			}
			quoted = true
			i = j

		case c == '[':
			j := strings.IndexByte(sql[i+1:], ']')
			if j == -1 {
				return token{}, 0, &ParseError{Pos: i, Message: "unterminated bracket identifier"}
			}
			quoted = true
			i += j + 2

		default:
			j := i
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			bare = sql[i:j]
			i = j
		}
		parts++

		if i+1 < n && sql[i] == '.' {
			if sql[i+1] == '*' {
				i += 2
				parts++
				break
			}
			next := sql[i+1]
			if isIdentStart(next) || next == '"' || next == '`' || next == '[' {
				i++
				continue
			}
		}
		break
	}

	// Only a single unquoted part can be a keyword or a function name.
	if parts == 1 && !quoted {
		upper := strings.ToUpper(bare)
		kind := tokIdent
		if keywords[upper] {
			kind = tokKeyword
		}
		return token{kind: kind, text: bare, upper: upper, pos: start}, i, nil
	}
	return token{kind: tokQuotedIdent, pos: start}, i, nil
}

// scanSingleQuoted returns the index just past a single-quoted string,
// honoring the SQL '' escape.
func scanSingleQuoted(sql string, start int) (int, error) {
	i := start + 1
	n := len(sql)
	for i < n {
		if sql[i] == '\'' {
			if i+1 < n && sql[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, &ParseError{Pos: start, Message: "unterminated string literal"}
}

// scanDelimited returns the index just past a quote-delimited identifier,
// or -1 if unterminated.
func scanDelimited(sql string, start int, quote rune) int {
	for i := start + 1; i < len(sql); i++ {
		if rune(sql[i]) == quote {
			return i + 1
		}
	}
	return -1
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return c == '_' || isDigit(c) || unicode.IsLetter(rune(c))
}
