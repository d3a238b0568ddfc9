package sanitize

import "regexp"

// Pattern tables for the sanitizer. Dangerous patterns are unconditional
// rejections; suspicious patterns warn in normal mode and reject in strict
// mode unless explicitly allowlisted. All matching runs on lexically
// stripped text so quoted and commented content cannot trigger a hit, and
// every pattern is case-insensitive and whitespace-tolerant.

// dangerousPattern pairs a compiled pattern with the reason reported on a hit.
type dangerousPattern struct {
	re     *regexp.Regexp
	reason string
}

var dangerousPatterns = []dangerousPattern{
	// File and URL loading procedures.
	{regexp.MustCompile(`(?i)apoc\s*\.\s*load\s*\.`), "file/URL loading procedure (apoc.load)"},
	{regexp.MustCompile(`(?i)apoc\s*\.\s*import\s*\.`), "file import procedure (apoc.import)"},
	{regexp.MustCompile(`(?i)apoc\s*\.\s*export\s*\.`), "file export procedure (apoc.export)"},

	// Dynamic code execution.
	{regexp.MustCompile(`(?i)apoc\s*\.\s*cypher\s*\.\s*run`), "dynamic query execution (apoc.cypher.run)"},
	{regexp.MustCompile(`(?i)apoc\s*\.\s*cypher\s*\.\s*doIt`), "dynamic query execution (apoc.cypher.doIt)"},

	// Security and cluster administration.
	{regexp.MustCompile(`(?i)dbms\s*\.\s*security\s*\.`), "security administration procedure (dbms.security)"},
	{regexp.MustCompile(`(?i)dbms\s*\.\s*cluster\s*\.`), "cluster administration procedure (dbms.cluster)"},

	// Statement chaining into a write or control statement.
	{regexp.MustCompile(`(?i);\s*(CREATE|MERGE|DELETE|DETACH|REMOVE|SET|DROP|CALL|LOAD)\b`), "statement chaining into a write/control statement"},

	// Resource exhaustion through huge bounded iteration.
	{regexp.MustCompile(`(?i)\brange\s*\(\s*\d+\s*,\s*\d{7,}`), "excessively large iteration range"},
	{regexp.MustCompile(`(?i)\bUNWIND\s+range\s*\(\s*\d+\s*,\s*\d{7,}`), "excessively large UNWIND range"},

	// Batch and parallel execution procedures.
	{regexp.MustCompile(`(?i)apoc\s*\.\s*periodic\s*\.`), "batch execution procedure (apoc.periodic)"},
	{regexp.MustCompile(`(?i)\bIN\s+TRANSACTIONS\b`), "batched transaction execution"},
}

// suspiciousPattern pairs a pattern with its warning text and the allowlist
// category that can clear it.
type suspiciousPattern struct {
	re       *regexp.Regexp
	warning  string
	category allowCategory
}

type allowCategory int

const (
	allowAdmin allowCategory = iota
	allowSchema
)

var suspiciousPatterns = []suspiciousPattern{
	{regexp.MustCompile(`(?i)\bCALL\s+dbms\s*\.`), "admin-adjacent procedure call (dbms.*)", allowAdmin},
	{regexp.MustCompile(`(?i)\bCALL\s+db\s*\.\s*(createLabel|createProperty|createRelationshipType)`), "schema-touching procedure call", allowAdmin},
	{regexp.MustCompile(`(?i)apoc\s*\.\s*trigger\s*\.`), "trigger management procedure (apoc.trigger)", allowAdmin},
	{regexp.MustCompile(`(?i)\bCREATE\s+(INDEX|CONSTRAINT)\b`), "schema mutation (CREATE INDEX/CONSTRAINT)", allowSchema},
	{regexp.MustCompile(`(?i)\bDROP\s+(INDEX|CONSTRAINT)\b`), "schema mutation (DROP INDEX/CONSTRAINT)", allowSchema},
}

// Escape-injection heuristics run on the raw query text, where escape
// sequences are still visible.
var (
	hexEscapeRe   = regexp.MustCompile(`\\x[0-9a-fA-F]{2}`)
	uniEscapeRe   = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)
	octalEscapeRe = regexp.MustCompile(`\\[0-7]{3}`)
	concatRe      = regexp.MustCompile(`'[^']*'\s*\+\s*'`)
)

// Parameter validation patterns.
var (
	paramNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	paramValuePatterns = []dangerousPattern{
		{regexp.MustCompile(`(?i);\s*(CREATE|MERGE|DELETE|DETACH|REMOVE|SET|DROP|CALL|LOAD)\b`), "statement separator followed by a keyword"},
		{regexp.MustCompile(`(?i)\b(DETACH\s+DELETE|DROP\s+(DATABASE|INDEX|CONSTRAINT))\b`), "destructive keyword sequence"},
		{regexp.MustCompile(`//`), "comment start"},
		{regexp.MustCompile(`/\*`), "comment start"},
	}
)
