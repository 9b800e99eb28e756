package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Minimum normalized lengths for document identifiers. Shorter values never
// match on their tier.
const (
	MinCPFDigits  = 11
	MinCNPJDigits = 14
)

// NormalizeDocument keeps only the ASCII digits of a tax id.
func NormalizeDocument(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeText lowercases and trims free-text identifiers such as account
// numbers and names.
func NormalizeText(s string) string {
	s = strings.TrimFunc(s, unicode.IsSpace)
	if s == "" {
		return ""
	}
	// Casers keep state, so one per call.
	return cases.Lower(language.Und).String(s)
}
