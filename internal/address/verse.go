package address

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/cdnilsen/eliot-web/internal/util"
)

// Sentinel is the chapter and verse number of an unaddressable line.
const Sentinel = 999

// Ref is a chapter.verse coordinate within one book.
type Ref struct {
	Chapter int
	Verse   int
}

// Unresolved is the address given to lines whose token is not chapter.verse.
var Unresolved = Ref{Chapter: Sentinel, Verse: Sentinel}

func (r Ref) IsUnresolved() bool { return r == Unresolved }

// InDomain reports whether both parts fit in three digits.
func (r Ref) InDomain() bool {
	return inDomain(r.Chapter) && inDomain(r.Verse)
}

func (r Ref) String() string { return fmt.Sprintf("%d.%d", r.Chapter, r.Verse) }

func inDomain(n int) bool { return n >= 0 && n <= 999 }

//nolint:govet // participle grammar tags are not standard struct tags
type addressGrammar struct {
	Chapter int `parser:"@Int \".\""`
	Verse   int `parser:"@Int"`
}

var addressLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Dot", Pattern: `\.`},
})

var addressParser = participle.MustBuild[addressGrammar](
	participle.Lexer(addressLexer),
)

// ParseAddress reads a "chapter.verse" token. Any other shape yields
// Unresolved and false; the numbers are not range checked here.
func ParseAddress(token string) (Ref, bool) {
	if token == "" {
		return Unresolved, false
	}
	parsed, err := addressParser.ParseString("", token)
	if err != nil {
		return Unresolved, false
	}
	return Ref{Chapter: parsed.Chapter, Verse: parsed.Verse}, true
}

// ZeroPad3 renders n as exactly three digits.
func ZeroPad3(n int) (string, error) {
	if !inDomain(n) {
		return "", &util.AddressError{Field: "number", Value: strconv.Itoa(n)}
	}
	return fmt.Sprintf("%03d", n), nil
}

// VerseID is the ten digit identifier D BBB CCC VVV. D is 1 for a generic id
// and the edition digit otherwise.
type VerseID int64

const (
	verseFactor   = 1
	chapterFactor = 1_000
	bookFactor    = 1_000_000
	digitFactor   = 1_000_000_000
)

// GenericID formats the edition-independent id of a verse.
func GenericID(bookCode string, chapter, verse int) (VerseID, error) {
	return build(genericDigit, bookCode, chapter, verse)
}

// SpecificID formats one edition's id of a verse.
func SpecificID(e Edition, bookCode string, chapter, verse int) (VerseID, error) {
	if !e.Valid() {
		return 0, fmt.Errorf("%w: digit %d", util.ErrUnknownEdition, int(e))
	}
	return build(int(e), bookCode, chapter, verse)
}

func build(digit int, bookCode string, chapter, verse int) (VerseID, error) {
	book, err := parseBookCode(bookCode)
	if err != nil {
		return 0, err
	}
	if !inDomain(chapter) {
		return 0, &util.AddressError{Field: "chapter", Value: strconv.Itoa(chapter)}
	}
	if !inDomain(verse) {
		return 0, &util.AddressError{Field: "verse", Value: strconv.Itoa(verse)}
	}
	id := int64(digit)*digitFactor + int64(book)*bookFactor + int64(chapter)*chapterFactor + int64(verse)*verseFactor
	return VerseID(id), nil
}

func parseBookCode(code string) (int, error) {
	if len(code) != 3 {
		return 0, &util.AddressError{Field: "book code", Value: code}
	}
	n := 0
	for _, c := range code {
		if c < '0' || c > '9' {
			return 0, &util.AddressError{Field: "book code", Value: code}
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// ParseVerseID reads a ten digit id back. The leading digit must be 1 or a
// known edition.
func ParseVerseID(s string) (VerseID, error) {
	if len(s) != 10 {
		return 0, &util.AddressError{Field: "verse id", Value: s}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, &util.AddressError{Field: "verse id", Value: s}
	}
	id := VerseID(n)
	if d := id.digit(); d != genericDigit && !Edition(d).Valid() {
		return 0, &util.AddressError{Field: "verse id", Value: s}
	}
	return id, nil
}

func (id VerseID) digit() int { return int(int64(id) / digitFactor) }

// Edition returns the edition digit, or 0 for a generic id.
func (id VerseID) Edition() Edition {
	d := id.digit()
	if d == genericDigit {
		return 0
	}
	return Edition(d)
}

func (id VerseID) IsGeneric() bool { return id.digit() == genericDigit }

func (id VerseID) BookCode() string {
	return fmt.Sprintf("%03d", (int64(id)/bookFactor)%1000)
}

func (id VerseID) Chapter() int { return int((int64(id) / chapterFactor) % 1000) }

func (id VerseID) Verse() int { return int(int64(id) % 1000) }

func (id VerseID) Ref() Ref { return Ref{Chapter: id.Chapter(), Verse: id.Verse()} }

// Generic substitutes the leading digit with 1.
func (id VerseID) Generic() VerseID {
	return VerseID(int64(genericDigit)*digitFactor + int64(id)%digitFactor)
}

// WithEdition substitutes the leading digit with e.
func (id VerseID) WithEdition(e Edition) VerseID {
	return VerseID(int64(e)*digitFactor + int64(id)%digitFactor)
}

// BookPrefix is the first four digits of the id, used to select all rows of
// one book and edition.
func (id VerseID) BookPrefix() int64 { return int64(id) / bookFactor }

func (id VerseID) String() string { return strconv.FormatInt(int64(id), 10) }

// BookPrefix returns the digit+book prefix shared by every id of one book
// under the given leading digit.
func BookPrefix(digit int, bookCode string) (int64, error) {
	book, err := parseBookCode(bookCode)
	if err != nil {
		return 0, err
	}
	return int64(digit)*1000 + int64(book), nil
}

// GenericPrefix is BookPrefix for generic ids.
func GenericPrefix(bookCode string) (int64, error) { return BookPrefix(genericDigit, bookCode) }
