// Package limitinject bounds result sets by appending a LIMIT clause to
// queries that lack one, when it is syntactically safe to do so.
package limitinject

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cyphergate/cyphergate/pkg/lexer"
	"github.com/cyphergate/cyphergate/pkg/models"
)

var (
	limitRe = regexp.MustCompile(`(?i)\blimit\b`)

	// Keywords that terminate a bounding expression. The set is broad on
	// purpose: "LIMIT UNION ..." or "LIMIT DELETE ..." must not count as a
	// bounded query.
	boundTerminatorRe = regexp.MustCompile(`(?i)\b(union|order|skip|match|optional|with|return|where|create|merge|delete|detach|remove|set|foreach|call|load|unwind|drop|yield)\b|;`)

	// A bounding expression starts with a numeric literal, a parameter
	// reference, a brace parameter, a function call, or a parenthesized
	// arithmetic expression.
	boundExprRe = regexp.MustCompile(`^(\d|\$\w|\{\s*\w|[A-Za-z_]\w*\s*\(|\()`)

	clauseKeywordRe = regexp.MustCompile(`(?i)\b(match|where|with|return|unwind|create|merge|delete|detach|remove|set|foreach|call|load|union|order|skip|limit|drop|yield)\b`)
)

// HasBoundingClause reports whether the query already carries a LIMIT with a
// valid bounding expression. String literals and comments are stripped
// first, so LIMIT inside a comment does not count. The expression may span
// multiple lines.
func HasBoundingClause(query string) bool {
	stripped := lexer.Strip(query)

	for _, loc := range limitRe.FindAllStringIndex(stripped, -1) {
		rest := stripped[loc[1]:]
		if t := boundTerminatorRe.FindStringIndex(rest); t != nil {
			rest = rest[:t[0]]
		}
		expr := strings.TrimSpace(rest)
		if expr != "" && boundExprRe.MatchString(expr) {
			return true
		}
	}
	return false
}

// ShouldInject reports whether appending a bound is both needed and safe.
// It is safe only when the query's last clause produces rows (RETURN or
// WITH); a query ending in a mutation or termination clause cannot take a
// trailing LIMIT.
func ShouldInject(query string) bool {
	if HasBoundingClause(query) {
		return false
	}

	stripped := lexer.Strip(query)
	keywords := clauseKeywordRe.FindAllString(stripped, -1)
	if len(keywords) == 0 {
		return false
	}
	last := strings.ToLower(keywords[len(keywords)-1])
	return last == "return" || last == "with"
}

// Inject appends "LIMIT maxRows" to the query, first dropping one trailing
// statement separator and any trailing whitespace. Unless forced, a query
// that already has a bounding clause is returned unchanged. Inject does not
// consult ShouldInject; callers do that first in normal operation.
func Inject(query string, maxRows int, force bool) models.LimitInjectionResult {
	if !force && HasBoundingClause(query) {
		return models.LimitInjectionResult{Query: query, Injected: false}
	}

	trimmed := strings.TrimRight(query, " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimRight(trimmed, " \t\r\n")

	return models.LimitInjectionResult{
		Query:    fmt.Sprintf("%s LIMIT %d", trimmed, maxRows),
		Injected: true,
	}
}
