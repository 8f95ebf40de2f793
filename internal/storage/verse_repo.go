package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/util"
)

type VerseRepo struct {
	db        *DB
	batchSize int
}

func NewVerseRepo(db *DB, batchSize int) *VerseRepo {
	return &VerseRepo{db: db, batchSize: batchSize}
}

// upsertVerseSQL is a full replace keyed by verse_id.
var upsertVerseSQL = func() string {
	cols := allVerseColumns()
	params := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	return fmt.Sprintf(`
INSERT INTO all_verses (%s)
VALUES (%s)
ON CONFLICT (verse_id)
DO UPDATE SET %s`, strings.Join(cols, ", "), strings.Join(params, ", "), strings.Join(sets, ", "))
}()

// FetchByBook returns every stored row of the book. All columns are read so
// that a table whose layout drifted surfaces as rows of the wrong width.
func (r *VerseRepo) FetchByBook(ctx context.Context, bookCode string) ([]models.VerseRow, error) {
	prefix, err := address.GenericPrefix(bookCode)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT *
FROM all_verses
WHERE verse_id / 1000000 = $1
ORDER BY verse_id ASC`, prefix)
	if err != nil {
		return nil, classify("fetch verse rows", err)
	}
	defer rows.Close()

	out := make([]models.VerseRow, 0, 256)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classify("scan verse row", err)
		}
		row, err := verseRowFromValues(vals)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate verse rows", err)
	}
	return out, nil
}

func (r *VerseRepo) Upsert(ctx context.Context, rows []models.VerseRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if len(row.Texts) != address.ColumnCount() {
			return fmt.Errorf("upsert verse row %s: %d texts, want %d", row.VerseID, len(row.Texts), address.ColumnCount())
		}
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return classify("begin tx upsert verse rows", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, page := range util.Batches(rows, r.batchSize) {
		batch := &pgx.Batch{}
		for _, row := range page {
			args := make([]any, 0, len(verseColumns)+len(row.Texts))
			args = append(args, int64(row.VerseID), row.Book, row.Chapter, row.Verse)
			for _, t := range row.Texts {
				args = append(args, t)
			}
			batch.Queue(upsertVerseSQL, args...)
		}
		if err := sendBatch(ctx, tx, batch, "upsert verse row"); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit verse rows tx", err)
	}
	return nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, op string) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return classify(op, err)
		}
	}
	if err := br.Close(); err != nil {
		return classify(op, err)
	}
	return nil
}

// verseRowFromValues maps a SELECT * row: four fixed columns, then edition
// texts. NULL texts read as "".
func verseRowFromValues(vals []any) (models.VerseRow, error) {
	if len(vals) < len(verseColumns) {
		return models.VerseRow{}, fmt.Errorf("verse row has %d columns", len(vals))
	}
	id, err := toInt64(vals[0])
	if err != nil {
		return models.VerseRow{}, fmt.Errorf("verse row id: %w", err)
	}
	chapter, err := toInt64(vals[2])
	if err != nil {
		return models.VerseRow{}, fmt.Errorf("verse row %d chapter: %w", id, err)
	}
	verse, err := toInt64(vals[3])
	if err != nil {
		return models.VerseRow{}, fmt.Errorf("verse row %d verse: %w", id, err)
	}
	row := models.VerseRow{
		VerseID: address.VerseID(id),
		Book:    toString(vals[1]),
		Chapter: int(chapter),
		Verse:   int(verse),
		Texts:   make([]string, 0, len(vals)-len(verseColumns)),
	}
	for _, v := range vals[len(verseColumns):] {
		row.Texts = append(row.Texts, toString(v))
	}
	return row, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int16:
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}
