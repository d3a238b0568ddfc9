// Package complexity scores the likely resource cost of a Cypher query from
// syntactic signals, so runaway queries are rejected before execution.
package complexity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cyphergate/cyphergate/pkg/models"
)

// Scoring weights. The heuristics are deliberately simple and additive;
// downstream behavior depends on these exact values.
const (
	costMatchClause    = 5
	costCartesianPair  = 50
	costWithStar       = 50
	costUnboundedPath  = 25
	costOverlongPath   = 30
	costBoundedPath    = 10
	costMissingLimit   = 20
	costWithClause     = 5
	costSubquery       = 15
	costAggregation    = 3
	costUnion          = 10
	costOptionalMatch  = 5
	subqueryWarnDepth  = 3
	defaultMaxAllowed  = 100
	defaultMaxPathHops = 10
)

// Config holds analyzer settings.
type Config struct {
	Enabled                 bool `yaml:"enabled" json:"enabled"`
	MaxComplexity           int  `yaml:"max_complexity" json:"max_complexity"`
	MaxVariablePathLength   int  `yaml:"max_variable_path_length" json:"max_variable_path_length"`
	RequireLimitOnUnbounded bool `yaml:"require_limit_on_unbounded" json:"require_limit_on_unbounded"`
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		MaxComplexity:           defaultMaxAllowed,
		MaxVariablePathLength:   defaultMaxPathHops,
		RequireLimitOnUnbounded: true,
	}
}

// Analyzer scores queries. It is pure given its configuration and safe for
// concurrent use; identical input always produces an identical score.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given configuration.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.MaxComplexity <= 0 {
		cfg.MaxComplexity = defaultMaxAllowed
	}
	if cfg.MaxVariablePathLength <= 0 {
		cfg.MaxVariablePathLength = defaultMaxPathHops
	}
	return &Analyzer{cfg: cfg}
}

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	matchRe         = regexp.MustCompile(`\bmatch\b`)
	optionalMatchRe = regexp.MustCompile(`\boptional match\b`)
	withStarRe      = regexp.MustCompile(`\bwith \*`)
	withRe          = regexp.MustCompile(`\bwith\b`)
	unionRe         = regexp.MustCompile(`\bunion\b`)
	limitRe         = regexp.MustCompile(`\blimit\b`)
	subqueryRe      = regexp.MustCompile(`\bcall \{|\bcall\{`)
	aggregationRe   = regexp.MustCompile(`\b(count|sum|avg|min|max|collect|stdev|percentilecont|percentiledisc)\s*\(`)

	// Variable-length relationship bounds: [*], [*3], [*1..5], [*..5], [*2..].
	varLengthRe = regexp.MustCompile(`\[\s*\w*\s*:?[\w|]*\s*\*\s*(\d*)\s*(?:\.\.\s*(\d*))?\s*\]`)

	// Variables declared in a pattern: (n), (n:Label), [r:TYPE].
	patternVarRe = regexp.MustCompile(`[(\[]\s*([a-z_][a-z0-9_]*)`)

	// Keywords that terminate a match clause's pattern.
	clauseBoundaryRe = regexp.MustCompile(`\b(where|with|return|unwind|order|skip|limit|call|create|merge|delete|detach|set|remove|foreach|union|optional|match)\b`)
)

// Analyze scores a query. The returned breakdown is additive: Total is
// always the sum of its values.
func (a *Analyzer) Analyze(query string) models.ComplexityScore {
	score := models.ComplexityScore{
		Breakdown:  make(map[string]int),
		MaxAllowed: a.cfg.MaxComplexity,
	}
	if !a.cfg.Enabled {
		score.WithinLimit = true
		return score
	}

	normalized := normalize(query)

	add := func(category string, points int) {
		if points != 0 {
			score.Breakdown[category] += points
			score.Total += points
		}
	}

	// Base cost per MATCH clause.
	matches := findMatchClauses(normalized)
	add("match_clauses", len(matches)*costMatchClause)

	// Cartesian-product risk: adjacent MATCH clauses with disjoint variable
	// sets and no filter or projection between them.
	cartesianPairs := 0
	for i := 1; i < len(matches); i++ {
		prev, cur := matches[i-1], matches[i]
		if sharesVariable(prev.vars, cur.vars) {
			continue
		}
		between := normalized[prev.end:cur.start]
		if containsAny(between, "where", "with", "return", "unwind") {
			continue
		}
		cartesianPairs++
	}
	if cartesianPairs > 0 {
		add("cartesian_product", cartesianPairs*costCartesianPair)
		score.Warnings = append(score.Warnings,
			fmt.Sprintf("potential cartesian product: %d adjacent MATCH clause pair(s) share no variables", cartesianPairs))
	}
	if len(matches) >= 2 && withStarRe.MatchString(normalized) {
		add("with_star", costWithStar)
		score.Warnings = append(score.Warnings, "WITH * between MATCH clauses carries all rows forward")
	}

	// Variable-length relationship patterns.
	unbounded, overlong, bounded := a.classifyVarLengthPaths(normalized)
	if unbounded > 0 {
		add("unbounded_path", costUnboundedPath)
		score.Warnings = append(score.Warnings, "unbounded variable-length path [*]")
	}
	if overlong > 0 {
		add("overlong_path", costOverlongPath)
		score.Warnings = append(score.Warnings,
			fmt.Sprintf("variable-length path exceeds maximum of %d hops", a.cfg.MaxVariablePathLength))
	}
	add("variable_paths", bounded*costBoundedPath)

	// Missing bounding clause on an unbounded result set.
	if a.cfg.RequireLimitOnUnbounded && (len(matches) > 0 || unbounded > 0) && !limitRe.MatchString(normalized) {
		add("missing_limit", costMissingLimit)
		score.Warnings = append(score.Warnings, "query has no LIMIT clause")
	}

	// Smaller additive costs.
	add("with_clauses", len(withRe.FindAllString(normalized, -1))*costWithClause)

	subqueries := len(subqueryRe.FindAllString(normalized, -1))
	add("subqueries", subqueries*costSubquery)
	if subqueries > subqueryWarnDepth {
		score.Warnings = append(score.Warnings, fmt.Sprintf("%d nested subqueries", subqueries))
	}

	add("aggregations", len(aggregationRe.FindAllString(normalized, -1))*costAggregation)
	add("union", len(unionRe.FindAllString(normalized, -1))*costUnion)
	add("optional_match", len(optionalMatchRe.FindAllString(normalized, -1))*costOptionalMatch)

	score.WithinLimit = score.Total <= score.MaxAllowed
	if !score.WithinLimit {
		summary := fmt.Sprintf("complexity %d exceeds maximum %d", score.Total, score.MaxAllowed)
		score.Warnings = append([]string{summary}, score.Warnings...)
	}
	return score
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(whitespaceRe.ReplaceAllString(query, " ")))
}

// matchClause is one MATCH clause with its declared variables and the span
// of its pattern text in the normalized query.
type matchClause struct {
	start, end int
	vars       map[string]bool
}

// findMatchClauses locates every MATCH clause and extracts the variables
// its pattern declares.
func findMatchClauses(normalized string) []matchClause {
	var clauses []matchClause
	for _, loc := range matchRe.FindAllStringIndex(normalized, -1) {
		rest := normalized[loc[1]:]
		end := len(normalized)
		if b := clauseBoundaryRe.FindStringIndex(rest); b != nil {
			end = loc[1] + b[0]
		}
		pattern := normalized[loc[1]:end]

		vars := make(map[string]bool)
		for _, m := range patternVarRe.FindAllStringSubmatch(pattern, -1) {
			vars[m[1]] = true
		}
		clauses = append(clauses, matchClause{start: loc[0], end: end, vars: vars})
	}
	return clauses
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sharesVariable(a, b map[string]bool) bool {
	for v := range a {
		if b[v] {
			return true
		}
	}
	return false
}

// classifyVarLengthPaths buckets variable-length relationship patterns into
// unbounded ([*] or [*n..]), over the configured hop ceiling, and bounded.
func (a *Analyzer) classifyVarLengthPaths(normalized string) (unbounded, overlong, bounded int) {
	for _, m := range varLengthRe.FindAllStringSubmatch(normalized, -1) {
		lower, upper := m[1], m[2]
		hasRange := strings.Contains(m[0], "..")

		switch {
		case lower == "" && upper == "" && !hasRange:
			// [*]
			unbounded++
		case hasRange && upper == "":
			// [*2..]
			unbounded++
		default:
			bound := upper
			if bound == "" {
				// [*3] pins the hop count exactly.
				bound = lower
			}
			if n, err := strconv.Atoi(bound); err == nil && n > a.cfg.MaxVariablePathLength {
				overlong++
			} else {
				bounded++
			}
		}
	}
	return unbounded, overlong, bounded
}
