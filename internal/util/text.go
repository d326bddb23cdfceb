package util

import (
	"strings"
	"unicode"
)

// NormalizeSearchTerm prepares user text for a database parameter. Invalid
// UTF-8, NUL bytes and other control characters are dropped and runs of
// whitespace collapse to a single space.
func NormalizeSearchTerm(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	sanitized = strings.Map(func(r rune) rune {
		switch {
		case r == 0:
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, sanitized)
	return strings.Join(strings.Fields(sanitized), " ")
}
