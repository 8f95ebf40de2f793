package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	combiningTilde  = '\u0303'
	combiningMacron = '\u0304'
	superMinus      = '\u207b'

	engma      = 'ŋ'
	upperEngma = 'Ŋ'
)

// CleanDiacritics is the matching key of a headword: diacritics folded, then
// nasal markers assimilated to the following letter.
func CleanDiacritics(word string) string {
	return AssimilateEngma(FoldDiacritics(word))
}

// FoldDiacritics strips diacritics from Latin letters. A tilde or macron on a
// vowel marks nasalisation and becomes a following ŋ; on n or m it doubles
// the consonant, as does a trailing superscript minus. Marks on non-Latin
// letters are left alone.
func FoldDiacritics(word string) string {
	if word == "" {
		return ""
	}
	decomposed := []rune(norm.NFD.String(word))
	var b strings.Builder
	b.Grow(len(word) + 4)

	for i := 0; i < len(decomposed); {
		base := decomposed[i]
		j := i + 1
		for j < len(decomposed) && unicode.Is(unicode.Mn, decomposed[j]) {
			j++
		}
		marks := decomposed[i+1 : j]
		i = j

		if !isLatinLetter(base) {
			b.WriteRune(base)
			for _, m := range marks {
				b.WriteRune(m)
			}
			continue
		}

		nasal := false
		for _, m := range marks {
			if m == combiningTilde || m == combiningMacron {
				nasal = true
			}
		}
		switch {
		case isNasalConsonant(base) && i < len(decomposed) && decomposed[i] == superMinus:
			b.WriteRune(base)
			b.WriteRune(base)
			i++
		case nasal && isVowel(base):
			b.WriteRune(base)
			if unicode.IsUpper(base) {
				b.WriteRune(upperEngma)
			} else {
				b.WriteRune(engma)
			}
		case nasal && isNasalConsonant(base):
			b.WriteRune(base)
			b.WriteRune(base)
		default:
			b.WriteRune(base)
		}
	}
	return norm.NFC.String(b.String())
}

// AssimilateEngma rewrites each nasal marker by the letter after it: m before
// a labial, n before anything else. A word-final marker stays.
func AssimilateEngma(word string) string {
	if !strings.ContainsRune(word, engma) && !strings.ContainsRune(word, upperEngma) {
		return word
	}
	rs := []rune(word)
	for i := 0; i < len(rs)-1; i++ {
		if rs[i] != engma && rs[i] != upperEngma {
			continue
		}
		labial := isLabial(rs[i+1])
		switch {
		case rs[i] == engma && labial:
			rs[i] = 'm'
		case rs[i] == engma:
			rs[i] = 'n'
		case labial:
			rs[i] = 'M'
		default:
			rs[i] = 'N'
		}
	}
	return string(rs)
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouAEIOU", r)
}

func isNasalConsonant(r rune) bool {
	return r == 'n' || r == 'N' || r == 'm' || r == 'M'
}

func isLabial(r rune) bool {
	return strings.ContainsRune("pbmPBM", r)
}
