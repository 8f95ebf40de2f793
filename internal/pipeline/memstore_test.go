package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/normalize"
)

// memStore is an in-memory Gateway that counts writes and can fail calls on
// demand.
type memStore struct {
	mu      sync.Mutex
	verses  map[address.VerseID]models.VerseRow
	words   map[address.VerseID]models.VerseWordIndex
	entries map[string]models.ConcordanceEntry

	writes int
	// failOnce maps a method name to an error returned by its next call.
	failOnce map[string]error
	// failBook maps a book name to an error returned by FetchVerseRows.
	failBook map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		verses:   map[address.VerseID]models.VerseRow{},
		words:    map[address.VerseID]models.VerseWordIndex{},
		entries:  map[string]models.ConcordanceEntry{},
		failOnce: map[string]error{},
		failBook: map[string]error{},
	}
}

func (s *memStore) injected(op string) error {
	if err, ok := s.failOnce[op]; ok {
		delete(s.failOnce, op)
		return err
	}
	return nil
}

func (s *memStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) FetchVerseRows(ctx context.Context, book address.Book) ([]models.VerseRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failBook[book.Name]; err != nil {
		return nil, err
	}
	if err := s.injected("FetchVerseRows"); err != nil {
		return nil, err
	}
	var out []models.VerseRow
	for id, row := range s.verses {
		if id.BookCode() == book.Code {
			out = append(out, row.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.VerseRow) int { return cmp.Compare(a.VerseID, b.VerseID) })
	return out, nil
}

func (s *memStore) FetchVerseWordIndex(ctx context.Context, book address.Book) ([]models.VerseWordIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FetchVerseWordIndex"); err != nil {
		return nil, err
	}
	var out []models.VerseWordIndex
	for id, row := range s.words {
		if id.BookCode() == book.Code {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b models.VerseWordIndex) int { return cmp.Compare(a.VerseID, b.VerseID) })
	return out, nil
}

func (s *memStore) UpsertVerseRows(ctx context.Context, rows []models.VerseRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpsertVerseRows"); err != nil {
		return err
	}
	s.writes++
	for _, r := range rows {
		if len(r.Texts) != address.ColumnCount() {
			return fmt.Errorf("verse %s: %d columns", r.VerseID, len(r.Texts))
		}
		s.verses[r.VerseID] = r.Clone()
	}
	return nil
}

func (s *memStore) FetchConcordanceEntries(ctx context.Context, headwords []string) ([]models.ConcordanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FetchConcordanceEntries"); err != nil {
		return nil, err
	}
	var out []models.ConcordanceEntry
	for _, w := range headwords {
		if e, ok := s.entries[w]; ok {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *memStore) UpsertConcordanceEntries(ctx context.Context, entries []models.ConcordanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpsertConcordanceEntries"); err != nil {
		return err
	}
	s.writes++
	for _, e := range entries {
		if e.Lemma == "" {
			e.Lemma = s.entries[e.Headword].Lemma
		}
		s.entries[e.Headword] = cloneEntry(e)
	}
	return nil
}

func (s *memStore) DeleteConcordanceEntries(ctx context.Context, headwords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteConcordanceEntries"); err != nil {
		return err
	}
	s.writes++
	for _, w := range headwords {
		delete(s.entries, w)
	}
	return nil
}

func (s *memStore) UpsertVerseWordIndex(ctx context.Context, rows []models.VerseWordIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpsertVerseWordIndex"); err != nil {
		return err
	}
	s.writes++
	for _, r := range rows {
		s.words[r.VerseID] = models.VerseWordIndex{
			VerseID: r.VerseID,
			Words:   slices.Clone(r.Words),
			Counts:  slices.Clone(r.Counts),
		}
	}
	return nil
}

func (s *memStore) DeleteVerseWordIndex(ctx context.Context, ids []address.VerseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteVerseWordIndex"); err != nil {
		return err
	}
	s.writes++
	for _, id := range ids {
		delete(s.words, id)
	}
	return nil
}

func (s *memStore) ListHeadwords(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ListHeadwords"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.entries))
	for w := range s.entries {
		out = append(out, w)
	}
	normalize.SortWords(out)
	return out, nil
}

func (s *memStore) ListHapaxes(ctx context.Context, limit int) ([]models.Hapax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var words []string
	for w, e := range s.entries {
		if e.TotalCount == 1 {
			words = append(words, w)
		}
	}
	normalize.SortWords(words)
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	out := make([]models.Hapax, 0, len(words))
	for _, w := range words {
		e := s.entries[w]
		out = append(out, models.Hapax{Headword: w, VerseID: e.VerseIDs[0], NoDiacritics: e.NoDiacritics})
	}
	return out, nil
}

func (s *memStore) entry(w string) (models.ConcordanceEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[w]
	return e, ok
}

func (s *memStore) totalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		n += e.TotalCount
	}
	return n
}

func (s *memStore) verseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.verses)
}

func cloneEntry(e models.ConcordanceEntry) models.ConcordanceEntry {
	e.VerseIDs = slices.Clone(e.VerseIDs)
	e.Counts = slices.Clone(e.Counts)
	return e
}
