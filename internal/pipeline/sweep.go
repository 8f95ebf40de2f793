package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/corpus"
	"github.com/cdnilsen/eliot-web/internal/index"
)

// SweepGhosts deletes concordance entries whose headword no current text
// produces. Every book is parsed first; any parse failure aborts the sweep
// before anything is deleted. Headwords still indexed for a book without
// source files are kept, since no run can clear that book's word index.
func (r *Runner) SweepGhosts(ctx context.Context) (*SweepReport, error) {
	books, err := r.Books()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	current := map[string]struct{}{}
	for _, b := range books {
		sources, err := r.parser.Discover(r.texts, b)
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", b.Name, err)
		}
		model := corpus.New(b, r.logger)
		for _, src := range sources {
			recs, err := r.parser.ParseFile(r.texts, src.Path)
			if err != nil {
				return nil, fmt.Errorf("sweep %s: %w", b.Name, err)
			}
			for _, rec := range recs {
				if err := model.Add(rec); err != nil {
					return nil, fmt.Errorf("sweep %s: %w", b.Name, err)
				}
			}
		}
		for w := range model.Headwords() {
			current[w] = struct{}{}
		}
	}

	if err := r.keepUnparsed(ctx, books, current); err != nil {
		return nil, err
	}

	persisted, err := r.store.ListHeadwords(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep list headwords: %w", err)
	}
	ghosts := index.Ghosts(persisted, current)
	rep := &SweepReport{
		Ghosts:      ghosts,
		Respellings: index.SuggestRespellings(ghosts, current, r.respell),
	}
	if len(ghosts) > 0 {
		if err := r.store.DeleteConcordanceEntries(ctx, ghosts); err != nil {
			return nil, fmt.Errorf("sweep delete ghosts: %w", err)
		}
		rep.Deleted = len(ghosts)
	}
	r.logger.Info("ghost sweep finished", "ghosts", len(ghosts), "books", len(books))
	return rep, nil
}

// keepUnparsed adds to current every headword of the persisted word index of
// books that have no source files.
func (r *Runner) keepUnparsed(ctx context.Context, parsed []address.Book, current map[string]struct{}) error {
	for _, b := range address.Books() {
		if slices.ContainsFunc(parsed, func(p address.Book) bool { return p.Code == b.Code }) {
			continue
		}
		rows, err := r.store.FetchVerseWordIndex(ctx, b)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", b.Name, err)
		}
		if len(rows) == 0 {
			continue
		}
		r.logger.Warn("book has indexed words but no source files", "book", b.Name, "verses", len(rows))
		for _, row := range rows {
			for _, w := range row.Words {
				current[w] = struct{}{}
			}
		}
	}
	return nil
}
