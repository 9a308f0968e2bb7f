package csv

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(s string) string { return strings.TrimPrefix(s, utf8BOM) }

// NormalizeFieldName converts header text into a lowercase ASCII identifier:
// accents are stripped (NFD, drop Mn, NFC), letters and digits are kept,
// runs of space, dash, dot and underscore collapse to one underscore, and
// everything else is dropped. Leading and trailing underscores are trimmed.
// The result may be empty.
func NormalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
