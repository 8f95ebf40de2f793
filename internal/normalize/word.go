// Package normalize turns raw tokens into index headwords and folds
// diacritics for spelling-insensitive matching.
package normalize

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Placeholder stands in for the archaic doubled-o digraph.
const Placeholder = '8'

var smallCaps = map[rune]rune{
	'ᴀ': 'a', 'ʙ': 'b', 'ᴄ': 'c', 'ᴅ': 'd', 'ᴇ': 'e', 'ꜰ': 'f', 'ɢ': 'g',
	'ʜ': 'h', 'ɪ': 'i', 'ᴊ': 'j', 'ᴋ': 'k', 'ʟ': 'l', 'ᴍ': 'm', 'ɴ': 'n',
	'ᴏ': 'o', 'ᴘ': 'p', 'ʀ': 'r', 'ꜱ': 's', 'ᴛ': 't', 'ᴜ': 'u', 'ᴠ': 'v',
	'ᴡ': 'w', 'ʏ': 'y', 'ᴢ': 'z',
}

var strippedPunctuation = runes.Predicate(func(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '(', ')', '[', ']', '{', '}', '"', '\'',
		'“', '”', '‘', '’', '—', '–', '…', '•', '·', '«', '»', '„', '¶':
		return true
	}
	return false
})

var punctuationRemover = runes.Remove(strippedPunctuation)

// CleanWord produces the headword form of a token: the OO digraph becomes 8,
// small capitals become plain letters, everything is lowercased and the fixed
// punctuation set is removed. The result may be empty.
func CleanWord(word string) string {
	if word == "" {
		return ""
	}
	if strings.HasPrefix(word, "OO") && strings.ToUpper(word) != word {
		word = string(Placeholder) + word[2:]
	}
	word = strings.Map(func(r rune) rune {
		if base, ok := smallCaps[r]; ok {
			return base
		}
		return r
	}, word)
	word = strings.ToLower(word)
	out, _, err := transform.String(punctuationRemover, word)
	if err != nil {
		return word
	}
	return out
}
