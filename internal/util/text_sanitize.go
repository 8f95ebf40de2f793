package util

import "strings"

// SanitizeText removes bytes and control characters that Postgres text columns reject.
// Tabs survive; surrounding whitespace is left for the caller to decide about.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	if !strings.ContainsFunc(s, isRejectedControl) {
		return s
	}
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if isRejectedControl(ch) {
			continue
		}
		r = append(r, ch)
	}
	return string(r)
}

func isRejectedControl(ch rune) bool {
	return ch < 0x20 && ch != '\t'
}
