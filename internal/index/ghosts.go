package index

import (
	"cmp"
	"slices"

	"github.com/hbollon/go-edlib"

	"github.com/cdnilsen/eliot-web/internal/normalize"
)

// Ghosts returns the persisted headwords that no current text produces, in
// collation order.
func Ghosts(persisted []string, current map[string]struct{}) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range persisted {
		if seen[w] {
			continue
		}
		seen[w] = true
		if _, ok := current[w]; !ok {
			out = append(out, w)
		}
	}
	normalize.SortWords(out)
	return out
}

const maxSuggestions = 3

type candidate struct {
	word string
	dist int
}

// SuggestRespellings pairs each ghost with up to three current headwords whose
// diacritic-folded forms lie within maxDistance edits, closest first. Ghosts
// without a close match are omitted.
func SuggestRespellings(ghosts []string, current map[string]struct{}, maxDistance int) map[string][]string {
	if maxDistance <= 0 || len(ghosts) == 0 {
		return map[string][]string{}
	}
	folded := make(map[string]string, len(current))
	for w := range current {
		folded[w] = normalize.CleanDiacritics(w)
	}

	out := map[string][]string{}
	for _, g := range ghosts {
		key := []rune(normalize.CleanDiacritics(g))
		var cands []candidate
		for w, f := range folded {
			if abs(len([]rune(f))-len(key)) > maxDistance {
				continue
			}
			if d := edlib.LevenshteinDistance(string(key), f); d <= maxDistance {
				cands = append(cands, candidate{word: w, dist: d})
			}
		}
		if len(cands) == 0 {
			continue
		}
		slices.SortFunc(cands, func(a, b candidate) int {
			if c := cmp.Compare(a.dist, b.dist); c != 0 {
				return c
			}
			return normalize.Compare(a.word, b.word)
		})
		if len(cands) > maxSuggestions {
			cands = cands[:maxSuggestions]
		}
		words := make([]string, len(cands))
		for i, c := range cands {
			words[i] = c.word
		}
		out[g] = words
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
