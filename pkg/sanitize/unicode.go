package sanitize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Unicode attack detection. Attackers use invisible characters, direction
// overrides, combining marks, and lookalike glyphs from other scripts to
// smuggle keywords past pattern matching. Checks run in a fixed order and
// the first hit names its attack class in the rejection reason.

// zeroWidthRunes are invisible characters that can split a keyword without
// changing its rendering: zero-width space, non-joiner, joiner, and the
// no-break space/BOM.
var zeroWidthRunes = map[rune]string{
	'\u200B': "zero-width space",
	'\u200C': "zero-width non-joiner",
	'\u200D': "zero-width joiner",
	'\uFEFF': "zero-width no-break space (BOM)",
}

// bidiRunes are directional override and embedding controls that reorder
// rendered text.
var bidiRunes = map[rune]string{
	'\u202A': "left-to-right embedding",
	'\u202B': "right-to-left embedding",
	'\u202C': "pop directional formatting",
	'\u202D': "left-to-right override",
	'\u202E': "right-to-left override",
	'\u2066': "left-to-right isolate",
	'\u2067': "right-to-left isolate",
	'\u2068': "first strong isolate",
	'\u2069': "pop directional isolate",
}

// confusableRunes maps Cyrillic and Greek glyphs that render identically to
// Latin letters. This is the manual fallback table; it covers the lookalikes
// that matter for Cypher keywords.
var confusableRunes = map[rune]rune{
	// Cyrillic lowercase.
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', 'у': 'y',
	'і': 'i', 'ѕ': 's', 'ј': 'j', 'ԁ': 'd', 'һ': 'h', 'ԝ': 'w',
	// Cyrillic uppercase.
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O',
	'Р': 'P', 'С': 'C', 'Т': 'T', 'Х': 'X', 'Ѕ': 'S', 'І': 'I', 'Ј': 'J',
	// Greek lowercase.
	'ο': 'o', 'ν': 'v', 'α': 'a', 'ι': 'i', 'κ': 'k', 'ρ': 'p', 'τ': 't', 'υ': 'u',
	// Greek uppercase.
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K',
	'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
}

// allowedTypographicRunes are the non-ASCII characters tolerated even when
// BlockNonASCII is enabled: curly quotes pasted from documents.
var allowedTypographicRunes = map[rune]bool{
	'\u2018': true, // left single quote
	'\u2019': true, // right single quote
	'\u201C': true, // left double quote
	'\u201D': true, // right double quote
}

// checkUnicode returns a rejection reason naming the attack class, or "".
func (s *Sanitizer) checkUnicode(query string) string {
	// Normalization shrinking the text by more than 10% means it was dense
	// with compatibility characters or ignorables, which legitimate queries
	// never are.
	normalized := norm.NFKC.String(query)
	if len(query) > 0 && len(normalized) < len(query)*9/10 {
		return fmt.Sprintf("unicode normalization removed %d of %d bytes (compatibility character smuggling)",
			len(query)-len(normalized), len(query))
	}

	if strings.ContainsRune(query, '\x00') {
		return "null byte in query"
	}

	for _, r := range query {
		if name, ok := zeroWidthRunes[r]; ok {
			return fmt.Sprintf("zero-width character U+%04X (%s)", r, name)
		}
	}

	for _, r := range query {
		if name, ok := bidiRunes[r]; ok {
			return fmt.Sprintf("bidirectional control character U+%04X (%s)", r, name)
		}
	}

	for _, r := range query {
		if r >= 0x0300 && r <= 0x036F {
			return fmt.Sprintf("combining diacritical mark U+%04X", r)
		}
	}

	for _, r := range query {
		if r >= 0x1D400 && r <= 0x1D7FF {
			return fmt.Sprintf("mathematical alphanumeric symbol U+%04X impersonating ASCII", r)
		}
	}

	for _, r := range query {
		if latin, ok := confusableRunes[r]; ok {
			return fmt.Sprintf("homograph character U+%04X visually matching %q", r, latin)
		}
	}

	if s.cfg.BlockNonASCII {
		for _, r := range query {
			if r > 127 && !allowedTypographicRunes[r] {
				return fmt.Sprintf("non-ASCII character U+%04X rejected by policy", r)
			}
		}
	}

	if !utf8.ValidString(query) {
		return "query is not valid UTF-8"
	}

	return ""
}
