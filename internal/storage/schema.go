package storage

import (
	"context"
	"strings"

	"github.com/cdnilsen/eliot-web/internal/address"
)

// verseColumns is the fixed part of the all_verses layout; edition text
// columns follow in address.Columns() order.
var verseColumns = []string{"verse_id", "book", "chapter", "verse"}

func editionColumns() []string {
	cols := make([]string, 0, address.ColumnCount())
	for _, e := range address.Columns() {
		cols = append(cols, e.Column())
	}
	return cols
}

func allVerseColumns() []string {
	return append(append([]string{}, verseColumns...), editionColumns()...)
}

func editionColumnDDL(sqlType string) string {
	var b strings.Builder
	for _, c := range editionColumns() {
		b.WriteString(",\n  ")
		b.WriteString(c)
		b.WriteString(" ")
		b.WriteString(sqlType)
	}
	return b.String()
}

func postgresSchema() string {
	return `
CREATE TABLE IF NOT EXISTS all_verses (
  verse_id BIGINT PRIMARY KEY,
  book TEXT NOT NULL,
  chapter INT NOT NULL,
  verse INT NOT NULL` + editionColumnDDL("TEXT") + `
);

CREATE TABLE IF NOT EXISTS verses_to_words (
  verse_id BIGINT PRIMARY KEY,
  words TEXT[] NOT NULL,
  counts INT[] NOT NULL
);

CREATE TABLE IF NOT EXISTS words_mass (
  headword TEXT PRIMARY KEY,
  verses BIGINT[] NOT NULL,
  counts INT[] NOT NULL,
  lemma TEXT,
  no_diacritics TEXT NOT NULL DEFAULT '',
  editions INT NOT NULL DEFAULT 0,
  total_count INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_all_verses_book ON all_verses ((verse_id / 1000000));
CREATE INDEX IF NOT EXISTS idx_verses_to_words_book ON verses_to_words ((verse_id / 1000000));
CREATE INDEX IF NOT EXISTS idx_words_mass_total ON words_mass (total_count);
CREATE INDEX IF NOT EXISTS idx_words_mass_no_diacritics ON words_mass (no_diacritics);
`
}

func sqliteSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS all_verses (
  verse_id INTEGER PRIMARY KEY,
  book TEXT NOT NULL,
  chapter INTEGER NOT NULL,
  verse INTEGER NOT NULL` + editionColumnDDL("TEXT") + `
)`,
		`CREATE TABLE IF NOT EXISTS verses_to_words (
  verse_id INTEGER PRIMARY KEY,
  words TEXT NOT NULL,
  counts TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS words_mass (
  headword TEXT PRIMARY KEY,
  verses TEXT NOT NULL,
  counts TEXT NOT NULL,
  lemma TEXT,
  no_diacritics TEXT NOT NULL DEFAULT '',
  editions INTEGER NOT NULL DEFAULT 0,
  total_count INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE INDEX IF NOT EXISTS idx_words_mass_total ON words_mass (total_count)`,
	}
}

// Migrate creates the three tables when missing.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, postgresSchema()); err != nil {
		return classify("migrate postgres schema", err)
	}
	return nil
}
