// Package reconcile diffs a freshly parsed book against its persisted rows.
package reconcile

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/corpus"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/util"
)

// Change is one verse row to write.
type Change struct {
	GenericID address.VerseID
	Row       models.VerseRow
	// Old is nil for an insert.
	Old *models.VerseRow
	// ChangedEditions holds the columns whose text differs from Old.
	ChangedEditions address.EditionSet
	// MassChange is set when a word-indexed column changed.
	MassChange bool
	// Orphaned marks a stored verse that no longer occurs in the sources.
	Orphaned bool
}

// IndexTarget is one edition's verse whose word index must be recomputed.
type IndexTarget struct {
	VerseID  address.VerseID
	Words    models.WordCounts
	Previous models.WordCounts
	// HadRow is set when a verses_to_words row is persisted for VerseID.
	HadRow bool
}

type Plan struct {
	Book     address.Book
	Editions []address.Edition

	ToInsert  []Change
	ToUpdate  []Change
	Unchanged []address.VerseID
	// Reindex holds verses whose rows match but whose persisted word index
	// does not, as left behind by an interrupted index phase.
	Reindex []address.VerseID
	Orphans []address.VerseID

	IndexTargets []IndexTarget
}

// Rows returns every verse row to upsert: inserts first, then updates.
func (p *Plan) Rows() []models.VerseRow {
	out := make([]models.VerseRow, 0, len(p.ToInsert)+len(p.ToUpdate))
	for _, c := range p.ToInsert {
		out = append(out, c.Row)
	}
	for _, c := range p.ToUpdate {
		out = append(out, c.Row)
	}
	return out
}

func (p *Plan) MassChanges() int {
	n := 0
	for _, c := range p.ToInsert {
		if c.MassChange {
			n++
		}
	}
	for _, c := range p.ToUpdate {
		if c.MassChange {
			n++
		}
	}
	return n
}

// Empty reports whether the plan requires no writes at all.
func (p *Plan) Empty() bool {
	return len(p.ToInsert) == 0 && len(p.ToUpdate) == 0 && len(p.IndexTargets) == 0
}

// Reconcile classifies every verse of model against the stored rows of its
// book. storedIndex holds the persisted verses_to_words rows of the book.
// Classification follows model order, then orphaned stored ids ascending.
func Reconcile(model *corpus.Model, stored []models.VerseRow, storedIndex []models.VerseWordIndex) (*Plan, error) {
	book := model.Book()
	storedByID, err := indexRows(book, stored)
	if err != nil {
		return nil, err
	}
	persisted, err := indexWords(book, storedIndex)
	if err != nil {
		return nil, err
	}

	present := model.EditionsPresent()
	covered := append(slices.Clone(present), retired(present, storedByID, persisted)...)
	var indexed []address.Edition
	for _, e := range covered {
		if e.Translatable() {
			indexed = append(indexed, e)
		}
	}

	plan := &Plan{Book: book, Editions: present}
	var needIndex []address.VerseID

	for _, id := range model.AllGenericIDs() {
		old, exists := storedByID[id]
		row := newRow(book, id, old, exists, covered, func(e address.Edition) string {
			return model.Text(id, e)
		})

		if !exists {
			change := Change{GenericID: id, Row: row}
			for _, e := range present {
				change.ChangedEditions = change.ChangedEditions.Add(e)
			}
			change.MassChange = len(indexed) > 0
			plan.ToInsert = append(plan.ToInsert, change)
			needIndex = append(needIndex, id)
			continue
		}

		change, differs := diff(id, old, row)
		drift := drifted(id, indexed, persisted, func(e address.Edition) models.WordCounts {
			return model.Words(id, e)
		})
		switch {
		case differs:
			plan.ToUpdate = append(plan.ToUpdate, change)
			if change.MassChange || drift {
				needIndex = append(needIndex, id)
			}
		case drift:
			plan.Reindex = append(plan.Reindex, id)
			needIndex = append(needIndex, id)
		default:
			plan.Unchanged = append(plan.Unchanged, id)
		}
	}

	var orphans []address.VerseID
	for id := range storedByID {
		if !model.Contains(id) {
			orphans = append(orphans, id)
		}
	}
	slices.Sort(orphans)
	empty := func(address.Edition) string { return "" }
	noWords := func(address.Edition) models.WordCounts { return models.WordCounts{} }
	for _, id := range orphans {
		old := storedByID[id]
		row := newRow(book, id, old, true, covered, empty)
		change, differs := diff(id, old, row)
		drift := drifted(id, indexed, persisted, noWords)
		if !differs && !drift {
			continue
		}
		plan.Orphans = append(plan.Orphans, id)
		if differs {
			change.Orphaned = true
			plan.ToUpdate = append(plan.ToUpdate, change)
		} else {
			plan.Reindex = append(plan.Reindex, id)
		}
		if change.MassChange || drift {
			needIndex = append(needIndex, id)
		}
	}

	for _, id := range needIndex {
		for _, e := range indexed {
			specific := id.WithEdition(e)
			prev, hadRow := persisted[specific]
			words := model.Words(id, e)
			if prev == nil {
				prev = models.WordCounts{}
			}
			if len(words) == 0 && !hadRow {
				continue
			}
			if hadRow && maps.Equal(words, prev) {
				continue
			}
			plan.IndexTargets = append(plan.IndexTargets, IndexTarget{
				VerseID:  specific,
				Words:    words,
				Previous: prev,
				HadRow:   hadRow,
			})
		}
	}
	return plan, nil
}

// retired lists the translatable editions that still have stored text or
// indexed words in the book but no source file any more. Their columns are
// cleared like those of a present edition that lacks the verse.
func retired(present []address.Edition, stored map[address.VerseID]models.VerseRow, persisted map[address.VerseID]models.WordCounts) []address.Edition {
	var out []address.Edition
	for _, e := range address.Translatable() {
		if slices.Contains(present, e) {
			continue
		}
		found := false
		col := address.ColumnIndex(e)
		for _, row := range stored {
			if row.Texts[col] != "" {
				found = true
				break
			}
		}
		for id, words := range persisted {
			if found {
				break
			}
			found = id.Edition() == e && len(words) > 0
		}
		if found {
			out = append(out, e)
		}
	}
	return out
}

// newRow lays the covered editions' texts over the stored row, or over a
// blank row for a new verse. Reference columns without a source file keep
// their stored value.
func newRow(book address.Book, id address.VerseID, old models.VerseRow, exists bool, present []address.Edition, text func(address.Edition) string) models.VerseRow {
	row := models.VerseRow{
		VerseID: id,
		Book:    book.Name,
		Chapter: id.Chapter(),
		Verse:   id.Verse(),
		Texts:   make([]string, address.ColumnCount()),
	}
	if exists {
		copy(row.Texts, old.Texts)
	}
	for _, e := range present {
		row.Texts[address.ColumnIndex(e)] = text(e)
	}
	return row
}

func diff(id address.VerseID, old, row models.VerseRow) (Change, bool) {
	oldCopy := old.Clone()
	change := Change{GenericID: id, Row: row, Old: &oldCopy}
	differs := old.Book != row.Book || old.Chapter != row.Chapter || old.Verse != row.Verse
	for i, e := range address.Columns() {
		if old.Texts[i] == row.Texts[i] {
			continue
		}
		differs = true
		change.ChangedEditions = change.ChangedEditions.Add(e)
		if e.Translatable() {
			change.MassChange = true
		}
	}
	return change, differs
}

func drifted(id address.VerseID, indexed []address.Edition, persisted map[address.VerseID]models.WordCounts, words func(address.Edition) models.WordCounts) bool {
	for _, e := range indexed {
		prev := persisted[id.WithEdition(e)]
		cur := words(e)
		if len(prev) == 0 && len(cur) == 0 {
			continue
		}
		if !maps.Equal(prev, cur) {
			return true
		}
	}
	return false
}

func indexRows(book address.Book, stored []models.VerseRow) (map[address.VerseID]models.VerseRow, error) {
	out := make(map[address.VerseID]models.VerseRow, len(stored))
	for _, row := range stored {
		fail := func(reason string) error {
			return &util.ReconciliationError{Book: book.Name, VerseID: row.VerseID.String(), Reason: reason}
		}
		if len(row.Texts) != address.ColumnCount() {
			return nil, fail(fmt.Sprintf("has %d edition columns, want %d", len(row.Texts), address.ColumnCount()))
		}
		if !row.VerseID.IsGeneric() {
			return nil, fail("verse id is not a generic id")
		}
		if row.VerseID.BookCode() != book.Code {
			return nil, fail(fmt.Sprintf("verse id belongs to book code %s", row.VerseID.BookCode()))
		}
		if _, dup := out[row.VerseID]; dup {
			return nil, fail("stored more than once")
		}
		out[row.VerseID] = row
	}
	return out, nil
}

func indexWords(book address.Book, rows []models.VerseWordIndex) (map[address.VerseID]models.WordCounts, error) {
	out := make(map[address.VerseID]models.WordCounts, len(rows))
	for _, row := range rows {
		e := row.VerseID.Edition()
		if row.VerseID.BookCode() != book.Code || !e.Valid() || !e.Translatable() {
			continue
		}
		if len(row.Words) != len(row.Counts) {
			return nil, &util.ReconciliationError{
				Book:    book.Name,
				VerseID: row.VerseID.String(),
				Reason:  fmt.Sprintf("word index has %d words and %d counts", len(row.Words), len(row.Counts)),
			}
		}
		if _, dup := out[row.VerseID]; dup {
			return nil, &util.ReconciliationError{Book: book.Name, VerseID: row.VerseID.String(), Reason: "word index stored more than once"}
		}
		out[row.VerseID] = row.WordCounts()
	}
	return out, nil
}
