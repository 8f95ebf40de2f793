package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/normalize"
	"github.com/cdnilsen/eliot-web/internal/util"
)

type ConcordanceRepo struct {
	db        *DB
	batchSize int
}

func NewConcordanceRepo(db *DB, batchSize int) *ConcordanceRepo {
	return &ConcordanceRepo{db: db, batchSize: batchSize}
}

func (r *ConcordanceRepo) Fetch(ctx context.Context, headwords []string) ([]models.ConcordanceEntry, error) {
	if len(headwords) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT headword, verses, counts, COALESCE(lemma, ''), no_diacritics, editions, total_count
FROM words_mass
WHERE headword = ANY($1)`, headwords)
	if err != nil {
		return nil, classify("fetch concordance entries", err)
	}
	defer rows.Close()

	out := make([]models.ConcordanceEntry, 0, len(headwords))
	for rows.Next() {
		var (
			e        models.ConcordanceEntry
			verses   []int64
			counts   []int32
			editions int32
			total    int32
		)
		if err := rows.Scan(&e.Headword, &verses, &counts, &e.Lemma, &e.NoDiacritics, &editions, &total); err != nil {
			return nil, classify("scan concordance entry", err)
		}
		e.VerseIDs = make([]address.VerseID, len(verses))
		for i, v := range verses {
			e.VerseIDs[i] = address.VerseID(v)
		}
		e.Counts = fromInt32s(counts)
		e.Editions = address.EditionSet(editions)
		e.TotalCount = int(total)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate concordance entries", err)
	}
	return out, nil
}

// Upsert writes already-merged entries. A conflicting row is replaced except
// for a lemma, which survives when the new entry has none.
func (r *ConcordanceRepo) Upsert(ctx context.Context, entries []models.ConcordanceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return classify("begin tx upsert concordance", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, page := range util.Batches(entries, r.batchSize) {
		batch := &pgx.Batch{}
		for _, e := range page {
			verses := make([]int64, len(e.VerseIDs))
			for i, id := range e.VerseIDs {
				verses[i] = int64(id)
			}
			batch.Queue(`
INSERT INTO words_mass (headword, verses, counts, lemma, no_diacritics, editions, total_count)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
ON CONFLICT (headword)
DO UPDATE SET
  verses = EXCLUDED.verses,
  counts = EXCLUDED.counts,
  lemma = COALESCE(EXCLUDED.lemma, words_mass.lemma),
  no_diacritics = EXCLUDED.no_diacritics,
  editions = EXCLUDED.editions,
  total_count = EXCLUDED.total_count`,
				e.Headword, verses, toInt32s(e.Counts), e.Lemma, e.NoDiacritics, int32(e.Editions), int32(e.TotalCount),
			)
		}
		if err := sendBatch(ctx, tx, batch, "upsert concordance entry"); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit concordance tx", err)
	}
	return nil
}

func (r *ConcordanceRepo) Delete(ctx context.Context, headwords []string) error {
	if len(headwords) == 0 {
		return nil
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM words_mass WHERE headword = ANY($1)`, headwords); err != nil {
		return classify("delete concordance entries", err)
	}
	return nil
}

func (r *ConcordanceRepo) ListHeadwords(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT headword FROM words_mass`)
	if err != nil {
		return nil, classify("list headwords", err)
	}
	defer rows.Close()
	out := make([]string, 0, 1024)
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, classify("scan headword", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate headwords", err)
	}
	normalize.SortWords(out)
	return out, nil
}

// ListHapaxes returns entries with a total count of one in collation order,
// at most limit of them when limit is positive.
func (r *ConcordanceRepo) ListHapaxes(ctx context.Context, limit int) ([]models.Hapax, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT headword, verses[1], no_diacritics
FROM words_mass
WHERE total_count = 1 AND cardinality(verses) = 1`)
	if err != nil {
		return nil, classify("list hapaxes", err)
	}
	defer rows.Close()
	out := make([]models.Hapax, 0, 256)
	for rows.Next() {
		var (
			h  models.Hapax
			id int64
		)
		if err := rows.Scan(&h.Headword, &id, &h.NoDiacritics); err != nil {
			return nil, classify("scan hapax", err)
		}
		h.VerseID = address.VerseID(id)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate hapaxes", err)
	}
	return sortHapaxes(out, limit), nil
}

func sortHapaxes(in []models.Hapax, limit int) []models.Hapax {
	words := make([]string, len(in))
	byWord := make(map[string]models.Hapax, len(in))
	for i, h := range in {
		words[i] = h.Headword
		byWord[h.Headword] = h
	}
	normalize.SortWords(words)
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	out := make([]models.Hapax, len(words))
	for i, w := range words {
		out[i] = byWord[w]
	}
	return out
}
