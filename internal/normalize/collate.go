package normalize

import (
	"slices"
)

// alphabet is the display order of headwords. Runes not listed sort after the
// placeholder, by code point.
const alphabet = "aáàâäãābcdeéèêëẽēfghiíìîïĩījklmnñoóòôöõōpqrstuúùûüũūvwxyzŋ8"

var alphabetRank = func() map[rune]int {
	m := make(map[rune]int)
	for i, r := range []rune(alphabet) {
		m[r] = i
	}
	return m
}()

var unlistedBase = len([]rune(alphabet))

func rank(r rune) int {
	if n, ok := alphabetRank[r]; ok {
		return n
	}
	return unlistedBase + int(r)
}

// Compare orders two words by the headword alphabet. A proper prefix sorts
// first.
func Compare(a, b string) int {
	ar, br := []rune(a), []rune(b)
	for i := 0; i < len(ar) && i < len(br); i++ {
		if x, y := rank(ar[i]), rank(br[i]); x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ar) < len(br):
		return -1
	case len(ar) > len(br):
		return 1
	}
	return 0
}

// SortWords sorts words in place by Compare.
func SortWords(words []string) {
	slices.SortFunc(words, Compare)
}

// SortedPairs flattens a word multiset into parallel word and count slices in
// collation order.
func SortedPairs(counts map[string]int) ([]string, []int) {
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	SortWords(words)
	out := make([]int, len(words))
	for i, w := range words {
		out[i] = counts[w]
	}
	return words, out
}
