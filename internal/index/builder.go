// Package index turns a reconciliation plan into verse-word and concordance
// writes.
package index

import (
	"context"
	"fmt"
	"slices"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/normalize"
	"github.com/cdnilsen/eliot-web/internal/reconcile"
)

// ConcordanceReader loads the persisted entries of the given headwords.
// Missing headwords are simply absent from the result.
type ConcordanceReader interface {
	FetchConcordanceEntries(ctx context.Context, headwords []string) ([]models.ConcordanceEntry, error)
}

// Changes are the index writes of one book.
type Changes struct {
	VerseWords    []models.VerseWordIndex
	ClearedVerses []address.VerseID
	Upserts       []models.ConcordanceEntry
	Deletes       []string
}

func (c *Changes) Empty() bool {
	return len(c.VerseWords) == 0 && len(c.ClearedVerses) == 0 && len(c.Upserts) == 0 && len(c.Deletes) == 0
}

// Delta maps a specific verse id to the headword's new count in that verse.
// Zero removes the verse from the entry.
type Delta map[address.VerseID]int

// Build computes the index writes for plan. The only store access is one
// read of the touched concordance entries.
func Build(ctx context.Context, reader ConcordanceReader, plan *reconcile.Plan) (*Changes, error) {
	changes := &Changes{}
	deltas := map[string]Delta{}

	for _, tgt := range plan.IndexTargets {
		if len(tgt.Words) > 0 {
			words, counts := normalize.SortedPairs(tgt.Words)
			changes.VerseWords = append(changes.VerseWords, models.VerseWordIndex{
				VerseID: tgt.VerseID,
				Words:   words,
				Counts:  counts,
			})
		} else if tgt.HadRow {
			changes.ClearedVerses = append(changes.ClearedVerses, tgt.VerseID)
		}

		for w, c := range tgt.Words {
			if tgt.Previous[w] != c {
				addDelta(deltas, w, tgt.VerseID, c)
			}
		}
		for w := range tgt.Previous {
			if _, still := tgt.Words[w]; !still {
				addDelta(deltas, w, tgt.VerseID, 0)
			}
		}
	}
	if len(deltas) == 0 {
		return changes, nil
	}

	headwords := make([]string, 0, len(deltas))
	for w := range deltas {
		headwords = append(headwords, w)
	}
	normalize.SortWords(headwords)

	existing, err := reader.FetchConcordanceEntries(ctx, headwords)
	if err != nil {
		return nil, fmt.Errorf("fetch concordance entries: %w", err)
	}
	stored := make(map[string]models.ConcordanceEntry, len(existing))
	for _, e := range existing {
		stored[e.Headword] = e
	}

	for _, w := range headwords {
		old, found := stored[w]
		if !found {
			old = models.ConcordanceEntry{Headword: w}
		}
		merged := Merge(old, deltas[w])
		switch {
		case len(merged.VerseIDs) == 0:
			if found {
				changes.Deletes = append(changes.Deletes, w)
			}
		case found && merged.Equal(old):
		default:
			changes.Upserts = append(changes.Upserts, merged)
		}
	}
	return changes, nil
}

func addDelta(deltas map[string]Delta, word string, id address.VerseID, count int) {
	d, ok := deltas[word]
	if !ok {
		d = Delta{}
		deltas[word] = d
	}
	d[id] = count
}

// Merge applies delta to entry and recomputes the derived fields. Duplicate
// verse ids in entry collapse to the last pair, non-positive counts are
// dropped and verse ids come out ascending.
func Merge(entry models.ConcordanceEntry, delta Delta) models.ConcordanceEntry {
	pairs := make(map[address.VerseID]int, len(entry.VerseIDs)+len(delta))
	n := min(len(entry.VerseIDs), len(entry.Counts))
	for i := 0; i < n; i++ {
		pairs[entry.VerseIDs[i]] = entry.Counts[i]
	}
	for id, c := range delta {
		pairs[id] = c
	}

	out := models.ConcordanceEntry{
		Headword:     entry.Headword,
		Lemma:        entry.Lemma,
		NoDiacritics: normalize.CleanDiacritics(entry.Headword),
	}
	ids := make([]address.VerseID, 0, len(pairs))
	for id, c := range pairs {
		if c > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out.VerseIDs = ids
	out.Counts = make([]int, len(ids))
	for i, id := range ids {
		c := pairs[id]
		out.Counts[i] = c
		out.TotalCount += c
		if e := id.Edition(); e.Valid() && e.Translatable() {
			out.Editions = out.Editions.Add(e)
		}
	}
	return out
}
