package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/normalize"
	"github.com/cdnilsen/eliot-web/internal/util"
)

// SQLiteGateway stores the same three tables in a single SQLite file, with
// array columns encoded as JSON text.
type SQLiteGateway struct {
	db        *sql.DB
	batchSize int
}

// OpenSQLite opens path, or a private in-memory database for ":memory:".
func OpenSQLite(ctx context.Context, path string, batchSize int) (*SQLiteGateway, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("ping sqlite", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, classify("configure sqlite", err)
	}
	return &SQLiteGateway{db: db, batchSize: batchSize}, nil
}

func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}

func (g *SQLiteGateway) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema() {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return classify("migrate sqlite schema", err)
		}
	}
	return nil
}

func (g *SQLiteGateway) FetchVerseRows(ctx context.Context, book address.Book) ([]models.VerseRow, error) {
	prefix, err := address.GenericPrefix(book.Code)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx, `SELECT * FROM all_verses WHERE verse_id / 1000000 = ? ORDER BY verse_id ASC`, prefix)
	if err != nil {
		return nil, classify("fetch verse rows", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify("read verse columns", err)
	}
	var out []models.VerseRow
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
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

func (g *SQLiteGateway) UpsertVerseRows(ctx context.Context, rows []models.VerseRow) error {
	cols := allVerseColumns()
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	stmt := fmt.Sprintf(`INSERT INTO all_verses (%s) VALUES (%s) ON CONFLICT (verse_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "), strings.Join(sets, ", "))

	return g.inTx(ctx, "upsert verse rows", len(rows), func(tx *sql.Tx, i int) error {
		row := rows[i]
		if len(row.Texts) != address.ColumnCount() {
			return fmt.Errorf("upsert verse row %s: %d texts, want %d", row.VerseID, len(row.Texts), address.ColumnCount())
		}
		args := []any{int64(row.VerseID), row.Book, row.Chapter, row.Verse}
		for _, t := range row.Texts {
			args = append(args, t)
		}
		_, err := tx.ExecContext(ctx, stmt, args...)
		return err
	})
}

func (g *SQLiteGateway) FetchVerseWordIndex(ctx context.Context, book address.Book) ([]models.VerseWordIndex, error) {
	prefixes, err := indexPrefixes(book.Code)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(prefixes))
	for i, p := range prefixes {
		args[i] = p
	}
	rows, err := g.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT verse_id, words, counts FROM verses_to_words WHERE verse_id / 1000000 IN (%s) ORDER BY verse_id ASC`,
		placeholders(len(args))), args...)
	if err != nil {
		return nil, classify("fetch verse word index", err)
	}
	defer rows.Close()

	var out []models.VerseWordIndex
	for rows.Next() {
		var (
			id            int64
			words, counts string
			v             models.VerseWordIndex
		)
		if err := rows.Scan(&id, &words, &counts); err != nil {
			return nil, classify("scan verse word index", err)
		}
		v.VerseID = address.VerseID(id)
		if err := json.Unmarshal([]byte(words), &v.Words); err != nil {
			return nil, fmt.Errorf("decode words of %d: %w", id, err)
		}
		if err := json.Unmarshal([]byte(counts), &v.Counts); err != nil {
			return nil, fmt.Errorf("decode counts of %d: %w", id, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate verse word index", err)
	}
	return out, nil
}

func (g *SQLiteGateway) UpsertVerseWordIndex(ctx context.Context, rows []models.VerseWordIndex) error {
	return g.inTx(ctx, "upsert verse words", len(rows), func(tx *sql.Tx, i int) error {
		row := rows[i]
		if len(row.Words) != len(row.Counts) {
			return fmt.Errorf("upsert verse words %s: %d words, %d counts", row.VerseID, len(row.Words), len(row.Counts))
		}
		words, err := json.Marshal(nonNil(row.Words))
		if err != nil {
			return err
		}
		counts, err := json.Marshal(nonNil(row.Counts))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO verses_to_words (verse_id, words, counts) VALUES (?, ?, ?)
ON CONFLICT (verse_id) DO UPDATE SET words = excluded.words, counts = excluded.counts`,
			int64(row.VerseID), string(words), string(counts))
		return err
	})
}

func (g *SQLiteGateway) DeleteVerseWordIndex(ctx context.Context, ids []address.VerseID) error {
	pages := util.Batches(ids, g.batchSize)
	return g.inTx(ctx, "delete verse words", len(pages), func(tx *sql.Tx, i int) error {
		args := make([]any, len(pages[i]))
		for j, id := range pages[i] {
			args[j] = int64(id)
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM verses_to_words WHERE verse_id IN (%s)`, placeholders(len(args))), args...)
		return err
	})
}

func (g *SQLiteGateway) FetchConcordanceEntries(ctx context.Context, headwords []string) ([]models.ConcordanceEntry, error) {
	var out []models.ConcordanceEntry
	for _, page := range util.Batches(headwords, g.batchSize) {
		args := make([]any, len(page))
		for i, w := range page {
			args[i] = w
		}
		entries, err := g.queryEntries(ctx, fmt.Sprintf(`
SELECT headword, verses, counts, COALESCE(lemma, ''), no_diacritics, editions, total_count
FROM words_mass WHERE headword IN (%s)`, placeholders(len(args))), args...)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (g *SQLiteGateway) queryEntries(ctx context.Context, query string, args ...any) ([]models.ConcordanceEntry, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("fetch concordance entries", err)
	}
	defer rows.Close()
	var out []models.ConcordanceEntry
	for rows.Next() {
		var (
			e              models.ConcordanceEntry
			verses, counts string
			editions       int64
			raw            []int64
		)
		if err := rows.Scan(&e.Headword, &verses, &counts, &e.Lemma, &e.NoDiacritics, &editions, &e.TotalCount); err != nil {
			return nil, classify("scan concordance entry", err)
		}
		if err := json.Unmarshal([]byte(verses), &raw); err != nil {
			return nil, fmt.Errorf("decode verses of %q: %w", e.Headword, err)
		}
		if err := json.Unmarshal([]byte(counts), &e.Counts); err != nil {
			return nil, fmt.Errorf("decode counts of %q: %w", e.Headword, err)
		}
		e.VerseIDs = make([]address.VerseID, len(raw))
		for i, v := range raw {
			e.VerseIDs[i] = address.VerseID(v)
		}
		e.Editions = address.EditionSet(editions)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate concordance entries", err)
	}
	return out, nil
}

func (g *SQLiteGateway) UpsertConcordanceEntries(ctx context.Context, entries []models.ConcordanceEntry) error {
	return g.inTx(ctx, "upsert concordance", len(entries), func(tx *sql.Tx, i int) error {
		e := entries[i]
		raw := make([]int64, len(e.VerseIDs))
		for j, id := range e.VerseIDs {
			raw[j] = int64(id)
		}
		verses, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		counts, err := json.Marshal(nonNil(e.Counts))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO words_mass (headword, verses, counts, lemma, no_diacritics, editions, total_count)
VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?)
ON CONFLICT (headword) DO UPDATE SET
  verses = excluded.verses,
  counts = excluded.counts,
  lemma = COALESCE(excluded.lemma, words_mass.lemma),
  no_diacritics = excluded.no_diacritics,
  editions = excluded.editions,
  total_count = excluded.total_count`,
			e.Headword, string(verses), string(counts), e.Lemma, e.NoDiacritics, int64(e.Editions), e.TotalCount)
		return err
	})
}

func (g *SQLiteGateway) DeleteConcordanceEntries(ctx context.Context, headwords []string) error {
	pages := util.Batches(headwords, g.batchSize)
	return g.inTx(ctx, "delete concordance entries", len(pages), func(tx *sql.Tx, i int) error {
		args := make([]any, len(pages[i]))
		for j, w := range pages[i] {
			args[j] = w
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM words_mass WHERE headword IN (%s)`, placeholders(len(args))), args...)
		return err
	})
}

func (g *SQLiteGateway) ListHeadwords(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT headword FROM words_mass`)
	if err != nil {
		return nil, classify("list headwords", err)
	}
	defer rows.Close()
	var out []string
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

func (g *SQLiteGateway) ListHapaxes(ctx context.Context, limit int) ([]models.Hapax, error) {
	entries, err := g.queryEntries(ctx, `
SELECT headword, verses, counts, COALESCE(lemma, ''), no_diacritics, editions, total_count
FROM words_mass WHERE total_count = 1`)
	if err != nil {
		return nil, err
	}
	out := make([]models.Hapax, 0, len(entries))
	for _, e := range entries {
		if len(e.VerseIDs) != 1 {
			continue
		}
		out = append(out, models.Hapax{Headword: e.Headword, VerseID: e.VerseIDs[0], NoDiacritics: e.NoDiacritics})
	}
	return sortHapaxes(out, limit), nil
}

// inTx runs fn for i in [0, n) inside one transaction.
func (g *SQLiteGateway) inTx(ctx context.Context, op string, n int, fn func(tx *sql.Tx, i int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx "+op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for i := 0; i < n; i++ {
		if err := fn(tx, i); err != nil {
			return classify(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("commit "+op, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
