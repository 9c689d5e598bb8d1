package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateUTF8 drops invalid UTF-8 and cuts s to at most max bytes on a
// rune boundary. Text stored in utf8mb4 columns goes through it.
func TruncateUTF8(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
