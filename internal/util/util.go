// Package util provides small string helpers used when reading brake
// parameter tables.
package util

import (
	"strings"
	"unicode"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// NormalizeKey folds a parameter name so "maxApplicationRate",
// "max_application_rate" and "Max-Application-Rate" compare equal.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(TrimQuotes(s)) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// SplitUnit splits a value such as "5.2bar" or "0.3 m3" into its numeric
// part and its lowercase unit suffix. A value with no suffix returns an
// empty unit.
func SplitUnit(s string) (number, unit string) {
	s = strings.TrimSpace(TrimQuotes(s))
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
		i++
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return s[:i], strings.ToLower(strings.TrimSpace(s[i:]))
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
