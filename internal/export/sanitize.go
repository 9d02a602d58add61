package export

import (
	"strings"
	"unicode"
)

// SanitizeName strips control characters and replaces anything outside the
// editor-safe set with underscores. EDL parsers are picky about comment
// lines, so names are cleaned before they land in one.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		case strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s)

	cleaned = strings.TrimSpace(cleaned)
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
