package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
)

func openTestSQLite(t *testing.T) *SQLiteGateway {
	t.Helper()
	ctx := context.Background()
	g, err := OpenSQLite(ctx, ":memory:", 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, g.Migrate(ctx))
	require.NoError(t, g.Migrate(ctx))
	return g
}

func ruth(t *testing.T) address.Book {
	t.Helper()
	b, err := address.LookupBook("Ruth")
	require.NoError(t, err)
	return b
}

func TestSQLiteVerseRowsRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := openTestSQLite(t)
	rows := []models.VerseRow{
		{VerseID: 1008001002, Book: "Ruth", Chapter: 1, Verse: 2, Texts: []string{"Nux", "", "", "", "And", ""}},
		{VerseID: 1008001001, Book: "Ruth", Chapter: 1, Verse: 1, Texts: []string{"Ne woh", "", "", "", "In the days", ""}},
		{VerseID: 1008999999, Book: "Ruth", Chapter: 999, Verse: 999, Texts: []string{"kah", "", "", "", "", ""}},
		{VerseID: 1009001001, Book: "1 Samuel", Chapter: 1, Verse: 1, Texts: []string{"", "", "", "", "Now", ""}},
	}
	require.NoError(t, g.UpsertVerseRows(ctx, rows))

	got, err := g.FetchVerseRows(ctx, ruth(t))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, rows[1], got[0])
	assert.Equal(t, rows[0], got[1])
	assert.Equal(t, rows[2], got[2])

	updated := rows[1].Clone()
	updated.Texts[4] = "Now in the days"
	require.NoError(t, g.UpsertVerseRows(ctx, []models.VerseRow{updated}))
	got, err = g.FetchVerseRows(ctx, ruth(t))
	require.NoError(t, err)
	assert.Equal(t, "Now in the days", got[0].Text(address.EditionKJV))

	err = g.UpsertVerseRows(ctx, []models.VerseRow{{VerseID: 1008001003, Texts: []string{"short"}}})
	require.Error(t, err)
}

func TestSQLiteFetchVerseRowsReportsExtraColumns(t *testing.T) {
	ctx := context.Background()
	g := openTestSQLite(t)
	_, err := g.db.ExecContext(ctx, `ALTER TABLE all_verses ADD COLUMN vulgate TEXT`)
	require.NoError(t, err)
	require.NoError(t, g.UpsertVerseRows(ctx, []models.VerseRow{
		{VerseID: 1008001001, Book: "Ruth", Chapter: 1, Verse: 1, Texts: make([]string, address.ColumnCount())},
	}))
	got, err := g.FetchVerseRows(ctx, ruth(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Texts, address.ColumnCount()+1)
}

func TestSQLiteVerseWordIndex(t *testing.T) {
	ctx := context.Background()
	g := openTestSQLite(t)
	rows := []models.VerseWordIndex{
		{VerseID: 2008001001, Words: []string{"kah", "nux"}, Counts: []int{2, 1}},
		{VerseID: 3008001001, Words: []string{"woh"}, Counts: []int{1}},
		{VerseID: 5008001001, Words: []string{"ne"}, Counts: []int{1}},
		{VerseID: 2009001001, Words: []string{"other"}, Counts: []int{1}},
		{VerseID: 4008001001, Words: []string{"kjv"}, Counts: []int{1}},
	}
	require.NoError(t, g.UpsertVerseWordIndex(ctx, rows))

	got, err := g.FetchVerseWordIndex(ctx, ruth(t))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, rows[0], got[0])

	require.NoError(t, g.DeleteVerseWordIndex(ctx, []address.VerseID{2008001001, 3008001001, 5008001001}))
	got, err = g.FetchVerseWordIndex(ctx, ruth(t))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteConcordance(t *testing.T) {
	ctx := context.Background()
	g := openTestSQLite(t)
	entries := []models.ConcordanceEntry{
		{
			Headword: "nux", VerseIDs: []address.VerseID{2008001001}, Counts: []int{1},
			NoDiacritics: "nux", Editions: address.EditionSet(0).Add(address.EditionFirst), TotalCount: 1,
		},
		{
			Headword: "kah", VerseIDs: []address.VerseID{2008001001, 3008001001}, Counts: []int{2, 1},
			Lemma: "kah", NoDiacritics: "kah", TotalCount: 3,
		},
		{
			Headword: "ānu", VerseIDs: []address.VerseID{2008001002}, Counts: []int{1},
			NoDiacritics: "aŋnu", TotalCount: 1,
		},
	}
	require.NoError(t, g.UpsertConcordanceEntries(ctx, entries))

	got, err := g.FetchConcordanceEntries(ctx, []string{"nux", "kah", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	byWord := map[string]models.ConcordanceEntry{}
	for _, e := range got {
		byWord[e.Headword] = e
	}
	assert.Equal(t, entries[0], byWord["nux"])
	assert.Equal(t, entries[1], byWord["kah"])

	// a merged entry without a lemma keeps the stored one
	replaced := entries[1]
	replaced.Lemma = ""
	replaced.VerseIDs = []address.VerseID{3008001001}
	replaced.Counts = []int{1}
	replaced.TotalCount = 1
	require.NoError(t, g.UpsertConcordanceEntries(ctx, []models.ConcordanceEntry{replaced}))
	got, err = g.FetchConcordanceEntries(ctx, []string{"kah"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kah", got[0].Lemma)
	assert.Equal(t, []address.VerseID{3008001001}, got[0].VerseIDs)

	words, err := g.ListHeadwords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ānu", "kah", "nux"}, words)

	hapaxes, err := g.ListHapaxes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hapaxes, 3)
	assert.Equal(t, "ānu", hapaxes[0].Headword)
	assert.Equal(t, address.VerseID(2008001002), hapaxes[0].VerseID)

	hapaxes, err = g.ListHapaxes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, hapaxes, 1)

	require.NoError(t, g.DeleteConcordanceEntries(ctx, []string{"nux", "kah", "ānu"}))
	words, err = g.ListHeadwords(ctx)
	require.NoError(t, err)
	assert.Empty(t, words)
}

func TestEmptyWritesAreNoops(t *testing.T) {
	ctx := context.Background()
	g := openTestSQLite(t)
	require.NoError(t, g.UpsertVerseRows(ctx, nil))
	require.NoError(t, g.UpsertVerseWordIndex(ctx, nil))
	require.NoError(t, g.UpsertConcordanceEntries(ctx, nil))
	require.NoError(t, g.DeleteConcordanceEntries(ctx, nil))
	require.NoError(t, g.DeleteVerseWordIndex(ctx, nil))
	got, err := g.FetchConcordanceEntries(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
