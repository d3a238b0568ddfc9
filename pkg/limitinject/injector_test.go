package limitinject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasBoundingClause(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"numeric literal", "MATCH (n) RETURN n LIMIT 10", true},
		{"parameter", "MATCH (n) RETURN n LIMIT $max", true},
		{"nested parameter", "MATCH (n) RETURN n LIMIT $opts.max", true},
		{"brace parameter", "MATCH (n) RETURN n LIMIT {max}", true},
		{"function call", "MATCH (n) RETURN n LIMIT toInteger($max)", true},
		{"arithmetic", "MATCH (n) RETURN n LIMIT 10 + 5", true},
		{"parenthesized", "MATCH (n) RETURN n LIMIT ($page * 10)", true},
		{"multiline expression", "MATCH (n) RETURN n LIMIT\n  25", true},
		{"mid-query limit", "MATCH (n) WITH n LIMIT 10 RETURN n", true},
		{"no limit", "MATCH (n) RETURN n", false},
		{"limit in line comment", "MATCH (n) RETURN n // LIMIT 1", false},
		{"limit in block comment", "MATCH (n) /* LIMIT 1 */ RETURN n", false},
		{"limit in string", "MATCH (n) WHERE n.x = 'LIMIT 1' RETURN n", false},
		{"limit with no expression", "MATCH (n) RETURN n LIMIT", false},
		{"limit followed by union", "MATCH (n) RETURN n LIMIT UNION MATCH (m) RETURN m", false},
		{"limit followed by delete", "MATCH (n) RETURN n LIMIT DELETE n", false},
		{"limit followed by separator", "MATCH (n) RETURN n LIMIT ;", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasBoundingClause(tt.query))
		})
	}
}

func TestShouldInject(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"ends with return", "MATCH (n) RETURN n", true},
		{"ends with return expression", "MATCH (n) RETURN n.name, n.age", true},
		{"ends with with", "MATCH (n) WITH n", true},
		{"comment limit does not count", "MATCH (n) RETURN n // LIMIT 1", true},
		{"already bounded", "MATCH (n) RETURN n LIMIT 10", false},
		{"ends with delete", "MATCH (n) DELETE n", false},
		{"ends with set", "MATCH (n) SET n.x = 1", false},
		{"ends with call", "MATCH (n) CALL db.labels()", false},
		{"ends with order", "MATCH (n) RETURN n ORDER BY n.name", false},
		{"no clause keywords", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldInject(tt.query))
		})
	}
}

func TestInject(t *testing.T) {
	t.Run("appends limit", func(t *testing.T) {
		r := Inject("MATCH (n) RETURN n", 100, false)
		assert.True(t, r.Injected)
		assert.Equal(t, "MATCH (n) RETURN n LIMIT 100", r.Query)
	})

	t.Run("strips trailing separator and whitespace", func(t *testing.T) {
		r := Inject("MATCH (n) RETURN n ;  \n", 50, false)
		assert.True(t, r.Injected)
		assert.Equal(t, "MATCH (n) RETURN n LIMIT 50", r.Query)
	})

	t.Run("idempotent on bounded query", func(t *testing.T) {
		const q = "MATCH (n) RETURN n LIMIT 10"
		r := Inject(q, 100, false)
		assert.False(t, r.Injected)
		assert.Equal(t, q, r.Query)
	})

	t.Run("force overrides existing bound", func(t *testing.T) {
		r := Inject("MATCH (n) RETURN n LIMIT 10", 100, true)
		assert.True(t, r.Injected)
		assert.Equal(t, "MATCH (n) RETURN n LIMIT 10 LIMIT 100", r.Query)
	})
}

// Any query reported as bounded must come back from Inject unchanged.
func TestInject_IdempotenceProperty(t *testing.T) {
	queries := []string{
		"MATCH (n) RETURN n LIMIT 10",
		"MATCH (n) RETURN n LIMIT $max",
		"MATCH (n) WITH n LIMIT 5 RETURN n",
		"MATCH (n) RETURN n LIMIT\n  toInteger($max)",
	}
	for _, q := range queries {
		if !HasBoundingClause(q) {
			t.Fatalf("expected bounding clause: %s", q)
		}
		r := Inject(q, 100, false)
		assert.False(t, r.Injected, q)
		assert.Equal(t, q, r.Query, q)
	}
}
