package textnorm

import (
	"strings"
	"unicode/utf8"
)

const (
	lineSeparator      = '\u2028'
	paragraphSeparator = '\u2029'
)

// lineEndings folds CRLF and bare CR into LF. CRLF must come first so a
// Windows line ending becomes one LF rather than two.
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize prepares arbitrary user text for transmission to the model
// backend. It removes ASCII control characters other than tab, LF and CR,
// replaces Unicode line and paragraph separators with a space, converts all
// line endings to LF and trims surrounding whitespace. It never fails.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := lineEndings.Replace(raw)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == lineSeparator || r == paragraphSeparator:
			b.WriteByte(' ')
		case isStrippedControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// isStrippedControl reports whether r is in 0x00-0x08, 0x0B-0x0C,
// 0x0E-0x1F or is DEL.
func isStrippedControl(r rune) bool {
	switch {
	case r < 0x09:
		return true
	case r == 0x0B, r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	}
	return false
}

// Length returns the number of characters in s. Length thresholds across the
// pipeline are expressed in characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}
