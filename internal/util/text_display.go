package util

import (
	"strings"
	"unicode"
)

// DisplaySnippet collapses whitespace and control characters and cuts the
// result to maxRunes, for log lines and lint output.
func DisplaySnippet(s string, maxRunes int) string {
	return ExactSnippet(strings.Join(strings.Fields(SanitizeText(s)), " "), maxRunes)
}

// ExactSnippet is DisplaySnippet without collapsing whitespace, for output
// where the spacing itself is the point.
func ExactSnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 80
	}
	s = SanitizeText(s)

	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	if len(out) > maxRunes {
		return strings.TrimSpace(string(out[:maxRunes])) + "..."
	}
	return string(out)
}
