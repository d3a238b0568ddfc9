// Package lexer provides lexical normalization for Cypher text. Stripping
// string literals and comments lets downstream pattern checks see the clause
// skeleton of a query without being fooled by quoted or commented content.
package lexer

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Strip replaces single-quoted, double-quoted, and backtick-quoted spans,
// line comments, and block comments with a fixed-width placeholder, leaving
// the clause structure of the query intact.
//
// The placeholder is seeded randomly per call so user-supplied identifiers
// cannot collide with it on purpose. Escaped quotes inside string literals
// are honored. Unterminated spans are left verbatim: when the lexer cannot
// find the end of a literal it refuses to strip, so real structure is never
// destroyed by malformed input.
func Strip(text string) string {
	marker := fmt.Sprintf("~%08x~", rand.Uint32())

	var out strings.Builder
	out.Grow(len(text))

	runes := []rune(text)
	n := len(runes)

	for i := 0; i < n; {
		c := runes[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			end, ok := scanQuoted(runes, i)
			if !ok {
				// Unterminated literal: keep the rest verbatim.
				out.WriteString(string(runes[i:]))
				return out.String()
			}
			out.WriteString(marker)
			i = end

		case c == '/' && i+1 < n && runes[i+1] == '/':
			// Line comment runs to end of line; the newline itself stays.
			j := i + 2
			for j < n && runes[j] != '\n' {
				j++
			}
			out.WriteString(marker)
			i = j

		case c == '/' && i+1 < n && runes[i+1] == '*':
			end, ok := scanBlockComment(runes, i)
			if !ok {
				out.WriteString(string(runes[i:]))
				return out.String()
			}
			out.WriteString(marker)
			i = end

		default:
			out.WriteRune(c)
			i++
		}
	}

	return out.String()
}

// scanQuoted scans a quoted span starting at start and returns the index one
// past the closing quote. Backslash escapes are honored inside single and
// double quotes; backtick identifiers have no escapes.
func scanQuoted(runes []rune, start int) (int, bool) {
	quote := runes[start]
	i := start + 1
	for i < len(runes) {
		c := runes[i]
		if c == '\\' && quote != '`' && i+1 < len(runes) {
			i += 2
			continue
		}
		if c == quote {
			return i + 1, true
		}
		i++
	}
	return 0, false
}

// scanBlockComment scans a /* ... */ span, which may cross lines, and returns
// the index one past the closing delimiter.
func scanBlockComment(runes []rune, start int) (int, bool) {
	i := start + 2
	for i+1 < len(runes) {
		if runes[i] == '*' && runes[i+1] == '/' {
			return i + 2, true
		}
		i++
	}
	return 0, false
}
