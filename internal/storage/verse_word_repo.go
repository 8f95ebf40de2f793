package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/util"
)

type VerseWordRepo struct {
	db        *DB
	batchSize int
}

func NewVerseWordRepo(db *DB, batchSize int) *VerseWordRepo {
	return &VerseWordRepo{db: db, batchSize: batchSize}
}

// indexPrefixes lists the digit+book prefixes of every word-indexed edition.
func indexPrefixes(bookCode string) ([]int64, error) {
	var out []int64
	for _, e := range address.Translatable() {
		p, err := address.BookPrefix(int(e), bookCode)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *VerseWordRepo) FetchByBook(ctx context.Context, bookCode string) ([]models.VerseWordIndex, error) {
	prefixes, err := indexPrefixes(bookCode)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT verse_id, words, counts
FROM verses_to_words
WHERE verse_id / 1000000 = ANY($1)
ORDER BY verse_id ASC`, prefixes)
	if err != nil {
		return nil, classify("fetch verse word index", err)
	}
	defer rows.Close()

	out := make([]models.VerseWordIndex, 0, 256)
	for rows.Next() {
		var (
			id     int64
			words  []string
			counts []int32
		)
		if err := rows.Scan(&id, &words, &counts); err != nil {
			return nil, classify("scan verse word index", err)
		}
		out = append(out, models.VerseWordIndex{VerseID: address.VerseID(id), Words: words, Counts: fromInt32s(counts)})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate verse word index", err)
	}
	return out, nil
}

func (r *VerseWordRepo) Upsert(ctx context.Context, rows []models.VerseWordIndex) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return classify("begin tx upsert verse words", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, page := range util.Batches(rows, r.batchSize) {
		batch := &pgx.Batch{}
		for _, row := range page {
			if len(row.Words) != len(row.Counts) {
				return fmt.Errorf("upsert verse words %s: %d words, %d counts", row.VerseID, len(row.Words), len(row.Counts))
			}
			batch.Queue(`
INSERT INTO verses_to_words (verse_id, words, counts)
VALUES ($1, $2, $3)
ON CONFLICT (verse_id)
DO UPDATE SET words = EXCLUDED.words, counts = EXCLUDED.counts`,
				int64(row.VerseID), row.Words, toInt32s(row.Counts),
			)
		}
		if err := sendBatch(ctx, tx, batch, "upsert verse words"); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit verse words tx", err)
	}
	return nil
}

func (r *VerseWordRepo) Delete(ctx context.Context, ids []address.VerseID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM verses_to_words WHERE verse_id = ANY($1)`, raw); err != nil {
		return classify("delete verse words", err)
	}
	return nil
}

func toInt32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func fromInt32s(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
