// Package sanitize implements the injection and abuse checks that gate every
// query before it can reach the graph database.
package sanitize

import (
	"fmt"
	"strings"

	"github.com/cyphergate/cyphergate/pkg/lexer"
	"github.com/cyphergate/cyphergate/pkg/models"
)

// Config holds sanitizer settings. The zero value disables nothing useful;
// construct via DefaultConfig and override.
type Config struct {
	Enabled              bool `yaml:"enabled" json:"enabled"`
	StrictMode           bool `yaml:"strict_mode" json:"strict_mode"`
	AllowAdminProcedures bool `yaml:"allow_admin_procedures" json:"allow_admin_procedures"`
	AllowSchemaChanges   bool `yaml:"allow_schema_changes" json:"allow_schema_changes"`
	BlockNonASCII        bool `yaml:"block_non_ascii" json:"block_non_ascii"`
	MaxQueryLength       int  `yaml:"max_query_length" json:"max_query_length"`
	MaxParameters        int  `yaml:"max_parameters" json:"max_parameters"`
	MaxParameterLength   int  `yaml:"max_parameter_length" json:"max_parameter_length"`
}

// DefaultConfig returns the default sanitizer configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxQueryLength:     10000,
		MaxParameters:      100,
		MaxParameterLength: 5000,
	}
}

// Sanitizer validates query text and parameters against injection and
// Unicode attack patterns. It is pure given its configuration and safe for
// concurrent use.
type Sanitizer struct {
	cfg Config
}

// NewSanitizer creates a sanitizer with the given configuration.
func NewSanitizer(cfg Config) *Sanitizer {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 10000
	}
	if cfg.MaxParameters <= 0 {
		cfg.MaxParameters = 100
	}
	if cfg.MaxParameterLength <= 0 {
		cfg.MaxParameterLength = 5000
	}
	return &Sanitizer{cfg: cfg}
}

// Sanitize runs the full check pipeline over a query and its parameters,
// short-circuiting on the first violation.
func (s *Sanitizer) Sanitize(query string, parameters map[string]any) models.SanitizationVerdict {
	if !s.cfg.Enabled {
		return models.SanitizationVerdict{Safe: true}
	}

	var warnings []string

	// 1. Length and emptiness.
	if strings.TrimSpace(query) == "" {
		return unsafe("query is empty")
	}
	if len(query) > s.cfg.MaxQueryLength {
		return unsafe(fmt.Sprintf("query length %d exceeds maximum %d", len(query), s.cfg.MaxQueryLength))
	}

	// Pattern matching runs on lexically stripped text so string literals
	// and comments can neither hide an attack nor fake one.
	stripped := lexer.Strip(query)

	// 2. Dangerous patterns: unconditional rejection.
	for _, p := range dangerousPatterns {
		if p.re.MatchString(stripped) {
			return unsafe("dangerous pattern detected: " + p.reason)
		}
	}

	// 3. Suspicious patterns: warn in normal mode, reject in strict mode
	// unless the matching allowlist flag is set.
	for _, p := range suspiciousPatterns {
		if !p.re.MatchString(stripped) {
			continue
		}
		if s.allowed(p.category) {
			continue
		}
		if s.cfg.StrictMode {
			return unsafe("suspicious pattern rejected in strict mode: " + p.warning)
		}
		warnings = append(warnings, p.warning)
	}

	// 4. Balanced delimiters, counted outside literals.
	if reason := checkBalancedDelimiters(stripped); reason != "" {
		return unsafe(reason)
	}

	// 5. String escape injection, on the raw text where escapes are visible.
	if reason := checkEscapeInjection(query); reason != "" {
		return unsafe(reason)
	}

	// 6. Unicode attack detection.
	if reason := s.checkUnicode(query); reason != "" {
		return unsafe(reason)
	}

	// Parameters.
	if ok, reason := s.SanitizeParameters(parameters); !ok {
		return unsafe(reason)
	}

	return models.SanitizationVerdict{Safe: true, Warnings: warnings}
}

func (s *Sanitizer) allowed(cat allowCategory) bool {
	switch cat {
	case allowAdmin:
		return s.cfg.AllowAdminProcedures
	case allowSchema:
		return s.cfg.AllowSchemaChanges
	}
	return false
}

func unsafe(reason string) models.SanitizationVerdict {
	return models.SanitizationVerdict{Safe: false, Reason: reason}
}

// checkBalancedDelimiters verifies that (), {}, and [] nest correctly in the
// stripped text. Input must already have literals removed.
func checkBalancedDelimiters(stripped string) string {
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	var stack []rune

	for _, c := range stripped {
		switch c {
		case '(', '{', '[':
			stack = append(stack, c)
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Sprintf("unbalanced delimiter %q", c)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		return fmt.Sprintf("unclosed delimiter %q", stack[len(stack)-1])
	}
	return ""
}

// checkEscapeInjection flags escape sequences and suspicious string
// concatenation in the raw query.
func checkEscapeInjection(query string) string {
	switch {
	case hexEscapeRe.MatchString(query):
		return "hex escape sequence in query"
	case uniEscapeRe.MatchString(query):
		return "unicode escape sequence in query"
	case octalEscapeRe.MatchString(query):
		return "octal escape sequence in query"
	case concatRe.MatchString(query):
		return "suspicious string concatenation in query"
	}
	return ""
}
