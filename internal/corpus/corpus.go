// Package corpus aggregates the verse records of one book across editions.
package corpus

import (
	"fmt"
	"log/slog"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/parser"
	"github.com/cdnilsen/eliot-web/internal/util"
)

// Model maps generic verse ids to the record of each edition that has the
// verse. It is built once per run and not mutated afterwards.
type Model struct {
	book     address.Book
	order    []address.VerseID
	verses   map[address.VerseID]map[address.Edition]models.VerseRecord
	editions address.EditionSet
	logger   *slog.Logger
}

func New(book address.Book, logger *slog.Logger) *Model {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Model{
		book:   book,
		verses: map[address.VerseID]map[address.Edition]models.VerseRecord{},
		logger: logger,
	}
}

// Build adds records in order and stops at the first consistency error.
func Build(book address.Book, records []models.VerseRecord, logger *slog.Logger) (*Model, error) {
	m := New(book, logger)
	for _, rec := range records {
		if err := m.Add(rec); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add files rec under its generic id after checking that the record agrees
// with that key. A second record of the same edition for the same id is
// merged into the first, texts joined by a space.
func (m *Model) Add(rec models.VerseRecord) error {
	if err := m.check(rec); err != nil {
		return err
	}
	byEdition, ok := m.verses[rec.GenericID]
	if !ok {
		byEdition = map[address.Edition]models.VerseRecord{}
		m.verses[rec.GenericID] = byEdition
		m.order = append(m.order, rec.GenericID)
	}
	if prev, dup := byEdition[rec.Edition]; dup {
		if rec.Resolved {
			m.logger.Warn("duplicate verse address merged",
				"book", m.book.Name,
				"edition", rec.Edition.Tag(),
				"verse_id", rec.SpecificID.String(),
				"first_line", prev.Line,
				"line", rec.Line,
			)
		}
		prev.RawText = joinText(prev.RawText, rec.RawText)
		byEdition[rec.Edition] = prev
		return nil
	}
	byEdition[rec.Edition] = rec
	m.editions = m.editions.Add(rec.Edition)
	return nil
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func (m *Model) check(rec models.VerseRecord) error {
	fail := func(key address.VerseID, reason string) error {
		return &util.CorpusConsistencyError{
			Book:    m.book.Name,
			Key:     key.String(),
			VerseID: rec.SpecificID.String(),
			Reason:  reason,
		}
	}
	if rec.Book != m.book.Name {
		return fail(rec.GenericID, fmt.Sprintf("record belongs to book %q", rec.Book))
	}
	if !rec.Edition.Valid() || rec.SpecificID.Edition() != rec.Edition {
		return fail(rec.GenericID, fmt.Sprintf("specific id does not carry edition %s", rec.Edition.Tag()))
	}
	computed, err := address.GenericID(m.book.Code, rec.Chapter, rec.Verse)
	if err != nil {
		return fail(rec.GenericID, err.Error())
	}
	if computed != rec.GenericID {
		return fail(rec.GenericID, fmt.Sprintf("fields compute generic id %s", computed))
	}
	if rec.SpecificID.Generic() != rec.GenericID {
		return fail(rec.GenericID, fmt.Sprintf("specific id reduces to %s", rec.SpecificID.Generic()))
	}
	return nil
}

func (m *Model) Book() address.Book { return m.book }

func (m *Model) Len() int { return len(m.order) }

// AllGenericIDs returns ids in the order they were first seen.
func (m *Model) AllGenericIDs() []address.VerseID {
	out := make([]address.VerseID, len(m.order))
	copy(out, m.order)
	return out
}

// EditionsPresent lists the editions with at least one record, in column order.
func (m *Model) EditionsPresent() []address.Edition {
	return m.editions.Editions()
}

func (m *Model) HasEdition(e address.Edition) bool { return m.editions.Has(e) }

func (m *Model) Contains(id address.VerseID) bool {
	_, ok := m.verses[id]
	return ok
}

func (m *Model) Record(id address.VerseID, e address.Edition) (models.VerseRecord, bool) {
	rec, ok := m.verses[id][e]
	return rec, ok
}

// Text returns the edition's text of the verse, "" when the edition lacks it.
func (m *Model) Text(id address.VerseID, e address.Edition) string {
	return m.verses[id][e].RawText
}

// Words counts the headwords of one edition's text of the verse.
func (m *Model) Words(id address.VerseID, e address.Edition) models.WordCounts {
	rec, ok := m.Record(id, e)
	if !ok || !rec.Translatable {
		return models.WordCounts{}
	}
	return parser.CountWords(rec.RawText)
}

// Headwords collects every headword of the translatable editions.
func (m *Model) Headwords() map[string]struct{} {
	out := map[string]struct{}{}
	for _, id := range m.order {
		for e, rec := range m.verses[id] {
			if !e.Translatable() {
				continue
			}
			for w := range parser.CountWords(rec.RawText) {
				out[w] = struct{}{}
			}
		}
	}
	return out
}
