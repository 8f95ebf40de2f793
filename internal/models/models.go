package models

import (
	"slices"

	"github.com/cdnilsen/eliot-web/internal/address"
)

// VerseRecord is one non-blank line of one edition file.
type VerseRecord struct {
	SpecificID   address.VerseID `json:"specific_id"`
	GenericID    address.VerseID `json:"generic_id"`
	Book         string          `json:"book"`
	Edition      address.Edition `json:"edition"`
	Chapter      int             `json:"chapter"`
	Verse        int             `json:"verse"`
	RawText      string          `json:"raw_text"`
	Translatable bool            `json:"translatable"`
	Resolved     bool            `json:"resolved"`
	Line         int             `json:"line"`
}

// WordCounts is the headword multiset of one verse.
type WordCounts map[string]int

func (w WordCounts) Total() int {
	n := 0
	for _, c := range w {
		n += c
	}
	return n
}

// VerseRow is a persisted all_verses row. Texts is parallel to
// address.Columns().
type VerseRow struct {
	VerseID address.VerseID `json:"verse_id"`
	Book    string          `json:"book"`
	Chapter int             `json:"chapter"`
	Verse   int             `json:"verse"`
	Texts   []string        `json:"texts"`
}

// Text returns the column for e, or "" when the row has no such column.
func (r VerseRow) Text(e address.Edition) string {
	i := address.ColumnIndex(e)
	if i < 0 || i >= len(r.Texts) {
		return ""
	}
	return r.Texts[i]
}

func (r VerseRow) Equal(o VerseRow) bool {
	return r.VerseID == o.VerseID &&
		r.Book == o.Book &&
		r.Chapter == o.Chapter &&
		r.Verse == o.Verse &&
		slices.Equal(r.Texts, o.Texts)
}

func (r VerseRow) Clone() VerseRow {
	r.Texts = slices.Clone(r.Texts)
	return r
}

// ConcordanceEntry is a persisted words_mass row.
type ConcordanceEntry struct {
	Headword     string             `json:"headword"`
	VerseIDs     []address.VerseID  `json:"verse_ids"`
	Counts       []int              `json:"counts"`
	Lemma        string             `json:"lemma,omitempty"`
	NoDiacritics string             `json:"no_diacritics"`
	Editions     address.EditionSet `json:"editions"`
	TotalCount   int                `json:"total_count"`
}

func (e ConcordanceEntry) Equal(o ConcordanceEntry) bool {
	return e.Headword == o.Headword &&
		slices.Equal(e.VerseIDs, o.VerseIDs) &&
		slices.Equal(e.Counts, o.Counts) &&
		e.Lemma == o.Lemma &&
		e.NoDiacritics == o.NoDiacritics &&
		e.Editions == o.Editions &&
		e.TotalCount == o.TotalCount
}

// VerseWordIndex is a persisted verses_to_words row keyed by specific id.
type VerseWordIndex struct {
	VerseID address.VerseID `json:"verse_id"`
	Words   []string        `json:"words"`
	Counts  []int           `json:"counts"`
}

// WordCounts rebuilds the multiset. Mismatched lengths are truncated to the
// shorter slice.
func (v VerseWordIndex) WordCounts() WordCounts {
	n := min(len(v.Words), len(v.Counts))
	out := make(WordCounts, n)
	for i := 0; i < n; i++ {
		out[v.Words[i]] += v.Counts[i]
	}
	return out
}

func (v VerseWordIndex) Equal(o VerseWordIndex) bool {
	return v.VerseID == o.VerseID && slices.Equal(v.Words, o.Words) && slices.Equal(v.Counts, o.Counts)
}

// Hapax is a headword occurring exactly once in the indexed editions.
type Hapax struct {
	Headword     string          `json:"headword"`
	VerseID      address.VerseID `json:"verse_id"`
	NoDiacritics string          `json:"no_diacritics"`
}
