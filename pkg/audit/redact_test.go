package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	l := &Logger{cfg: Config{PIIRedaction: true}}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"email",
			"MATCH (u {email: 'alice@example.com'}) RETURN u",
			"MATCH (u {email: '[EMAIL_REDACTED]'}) RETURN u",
		},
		{
			"phone dashed",
			"call me at 555-867-5309 please",
			"call me at [PHONE_REDACTED] please",
		},
		{
			"phone parenthesized",
			"contact (212) 555-0147 today",
			"contact [PHONE_REDACTED] today",
		},
		{
			"credit card",
			"card 4111-1111-1111-1111 on file",
			"card [CARD_REDACTED] on file",
		},
		{
			"credit card spaced",
			"card 4111 1111 1111 1111 on file",
			"card [CARD_REDACTED] on file",
		},
		{
			"ssn",
			"ssn 123-45-6789 recorded",
			"ssn [SSN_REDACTED] recorded",
		},
		{
			"no pii untouched",
			"MATCH (n:Person) RETURN n LIMIT 10",
			"MATCH (n:Person) RETURN n LIMIT 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Redact(tt.in))
		})
	}
}

func TestRedact_DisabledIsNoOp(t *testing.T) {
	l := &Logger{cfg: Config{PIIRedaction: false}}
	const in = "email alice@example.com ssn 123-45-6789"
	assert.Equal(t, in, l.Redact(in))
}
