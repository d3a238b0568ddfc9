package audit

import "regexp"

// PII redaction patterns. Order matters: longer digit shapes (card numbers,
// SSNs) are replaced before the looser phone pattern can eat part of them.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	cardRe  = regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`)
	ssnRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phoneRe = regexp.MustCompile(`(\+?\d{1,2}[ .\-]?)?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`)
)

// Redact replaces common PII shapes with fixed placeholder tokens. A no-op
// when redaction is disabled.
func (l *Logger) Redact(text string) string {
	if !l.cfg.PIIRedaction {
		return text
	}
	text = emailRe.ReplaceAllString(text, "[EMAIL_REDACTED]")
	text = cardRe.ReplaceAllString(text, "[CARD_REDACTED]")
	text = ssnRe.ReplaceAllString(text, "[SSN_REDACTED]")
	text = phoneRe.ReplaceAllString(text, "[PHONE_REDACTED]")
	return text
}
