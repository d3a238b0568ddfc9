// Package readonly blocks write-capable Cypher when the deployment is
// configured as read-only. Matching is deliberately conservative: a keyword
// inside a string literal still rejects, which fails closed.
package readonly

import (
	"fmt"
	"regexp"
	"strings"
)

// Config holds validator settings.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Validator checks queries against the read-only policy. Stateless and safe
// for concurrent use.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator with the given configuration.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

var (
	normalizeRe = regexp.MustCompile(`\s+`)

	foreachRe = regexp.MustCompile(`\bFOREACH\b`)
	loadCSVRe = regexp.MustCompile(`\bLOAD CSV\b`)

	// Procedure families that mutate data or schema. Matched as call-target
	// prefixes on the normalized, uppercased query.
	mutatingProcedureRe = regexp.MustCompile(`\b(` +
		`APOC\.CREATE\.|` +
		`APOC\.MERGE\.|` +
		`APOC\.REFACTOR\.|` +
		`APOC\.ATOMIC\.|` +
		`APOC\.NODES\.DELETE|` +
		`APOC\.PERIODIC\.COMMIT|` +
		`APOC\.TRIGGER\.|` +
		`DB\.CREATE|` +
		`DB\.INDEX\.FULLTEXT\.CREATE|` +
		`DB\.CLEARQUERYCACHES` +
		`)`)

	writeKeywordRe = regexp.MustCompile(`\b(CREATE|MERGE|DELETE|REMOVE|SET|DETACH|DROP)\b`)
)

// Check returns a non-empty reason when the query uses write-capable syntax
// and read-only enforcement is enabled. Checks run in a fixed precedence
// order so the diagnostic names the most specific construct first.
func (v *Validator) Check(query string) string {
	if !v.cfg.Enabled {
		return ""
	}

	// Collapse all whitespace runs so keywords split across lines or tabs
	// still match.
	normalized := strings.ToUpper(strings.TrimSpace(normalizeRe.ReplaceAllString(query, " ")))

	if foreachRe.MatchString(normalized) {
		return "FOREACH construct can embed write operations"
	}
	if loadCSVRe.MatchString(normalized) {
		return "LOAD CSV is not permitted in read-only mode"
	}
	if proc := mutatingProcedureRe.FindString(normalized); proc != "" {
		return fmt.Sprintf("mutating procedure call %s is not permitted in read-only mode", strings.TrimSuffix(proc, "."))
	}
	if kw := writeKeywordRe.FindString(normalized); kw != "" {
		return fmt.Sprintf("write operation %s is not permitted in read-only mode", kw)
	}
	return ""
}
