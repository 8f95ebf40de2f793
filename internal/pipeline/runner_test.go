package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/storage"
	"github.com/cdnilsen/eliot-web/internal/util"
)

const (
	ruthFirst = "1.1 Ne woh kah nux\n1.2 Nux pometum kah nashpe.\n"
	ruthKJV   = "1.1 Now it came to pass\n1.2 And the man\n"
	jonahKJV  = "1.1 Now the word of the LORD\n"
)

func textsFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func ruthTexts() fstest.MapFS {
	return textsFS(map[string]string{
		"Ruth.First Edition.txt": ruthFirst,
		"Ruth.KJV.txt":           ruthKJV,
	})
}

func newTestRunner(store Gateway, texts fstest.MapFS) *Runner {
	return NewRunner(store, texts, Options{Logger: logging.Discard(), RespellDistance: 2})
}

func TestReconcileBookFreshInsert(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRunner(store, ruthTexts())

	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)

	assert.Equal(t, "Ruth", rep.Book)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, []string{"First Edition", "KJV"}, rep.Editions)
	assert.Equal(t, []address.VerseID{1008001001, 1008001002}, rep.Inserted)
	assert.Empty(t, rep.Updated)
	assert.Equal(t, 2, rep.MassChanges)
	assert.Equal(t, 2, rep.VerseWordsWritten)
	assert.Len(t, rep.SourceDigest, 16)
	assert.True(t, rep.Wrote())

	kah, ok := store.entry("kah")
	require.True(t, ok)
	assert.Equal(t, []address.VerseID{2008001001, 2008001002}, kah.VerseIDs)
	assert.Equal(t, []int{1, 1}, kah.Counts)
	assert.Equal(t, 2, kah.TotalCount)
	assert.True(t, kah.Editions.Has(address.EditionFirst))

	_, ok = store.entry("now")
	assert.False(t, ok, "KJV text is not word-indexed")

	row := store.verses[1008001002]
	assert.Equal(t, "Nux pometum kah nashpe.", row.Text(address.EditionFirst))
	assert.Equal(t, "And the man", row.Text(address.EditionKJV))
}

func TestReconcileBookUnchangedRerunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRunner(store, ruthTexts())

	first, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	writes := store.Writes()

	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Equal(t, writes, store.Writes())
	assert.False(t, rep.Wrote())
	assert.Equal(t, []address.VerseID{1008001001, 1008001002}, rep.Unchanged)
	assert.Equal(t, first.SourceDigest, rep.SourceDigest)
	assert.NotEqual(t, first.RunID, rep.RunID)
}

func TestReconcileBookRemovesGhostWord(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	texts := ruthTexts()
	r := newTestRunner(store, texts)

	_, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	before := store.totalCount()

	texts["Ruth.First Edition.txt"] = &fstest.MapFile{Data: []byte("1.1 Ne woh kah nux\n1.2 Nux kah nashpe.\n")}
	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)

	assert.Equal(t, []address.VerseID{1008001002}, rep.Updated)
	assert.Equal(t, 1, rep.ConcordanceDeletes)
	_, ok := store.entry("pometum")
	assert.False(t, ok)
	assert.Equal(t, before-1, store.totalCount())

	kah, _ := store.entry("kah")
	assert.Equal(t, 2, kah.TotalCount)
}

func TestReconcileBookReferenceOnlyChange(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	texts := ruthTexts()
	r := newTestRunner(store, texts)

	_, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)

	texts["Ruth.KJV.txt"] = &fstest.MapFile{Data: []byte("1.1 Now it came to pass\n1.2 And a certain man\n")}
	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Equal(t, []address.VerseID{1008001002}, rep.Updated)
	assert.Zero(t, rep.MassChanges)
	assert.Zero(t, rep.ConcordanceUpserts)
	assert.Zero(t, rep.VerseWordsWritten)
}

func TestReconcileBookResumesInterruptedIndex(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failOnce["UpsertVerseWordIndex"] = &util.StoreError{Op: "upsert verse words", Err: errors.New("connection reset")}
	r := newTestRunner(store, ruthTexts())

	_, err := r.ReconcileBook(ctx, "Ruth")
	require.Error(t, err)
	var be *util.BookError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhaseIndex, be.Phase)
	assert.True(t, util.Retryable(err))
	assert.Equal(t, 2, store.verseCount())

	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Equal(t, []address.VerseID{1008001001, 1008001002}, rep.Reindexed)
	assert.Equal(t, 2, rep.VerseWordsWritten)
	assert.Zero(t, rep.ConcordanceUpserts)

	clean := newMemStore()
	_, err = newTestRunner(clean, ruthTexts()).ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Equal(t, clean.verses, store.verses)
	assert.Equal(t, clean.words, store.words)
	assert.Equal(t, clean.entries, store.entries)
}

func TestReconcileBookErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRunner(store, ruthTexts())

	_, err := r.ReconcileBook(ctx, "Tobit")
	require.ErrorIs(t, err, util.ErrUnknownBook)

	_, err = r.ReconcileBook(ctx, "Jonah")
	require.ErrorIs(t, err, util.ErrNoSourceFiles)
	assert.False(t, util.Retryable(err))

	store.verses[1008001001] = models.VerseRow{VerseID: 1008001001, Book: "Ruth", Chapter: 1, Verse: 1, Texts: []string{"a", "b"}}
	_, err = r.ReconcileBook(ctx, "Ruth")
	require.ErrorIs(t, err, util.ErrReconciliation)
	var be *util.BookError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhaseReconcile, be.Phase)
	assert.Zero(t, store.Writes())
}

func TestReconcileBookWritesReport(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(newMemStore(), ruthTexts(), Options{Logger: logging.Discard(), ReportDir: dir})

	rep, err := r.ReconcileBook(context.Background(), "Ruth")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "runs", rep.RunID, "Ruth.json"))
	require.NoError(t, err)
	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Ruth", got.Book)
	assert.Equal(t, rep.Inserted, got.Inserted)
}

func TestReconcileAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	texts := ruthTexts()
	texts["Jonah.KJV.txt"] = &fstest.MapFile{Data: []byte(jonahKJV)}
	store.failBook["Ruth"] = &util.StoreError{Op: "fetch verses", Err: errors.New("connection refused")}
	store.entries["pometom"] = models.ConcordanceEntry{Headword: "pometom", VerseIDs: []address.VerseID{2008001009}, Counts: []int{1}, TotalCount: 1}
	r := newTestRunner(store, texts)

	out, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "Ruth", out.Failures[0].Book)
	assert.Equal(t, PhaseRead, out.Failures[0].Phase)
	assert.True(t, out.Failures[0].Retryable)
	require.Len(t, out.Books, 1)
	assert.Equal(t, "Jonah", out.Books[0].Book)
	assert.Nil(t, out.Sweep)
	_, ok := store.entry("pometom")
	assert.True(t, ok, "no sweep after a failed book")

	delete(store.failBook, "Ruth")
	out, err = r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Failures)
	require.Len(t, out.Books, 2)
	assert.Equal(t, "Ruth", out.Books[0].Book)
	require.NotNil(t, out.Sweep)
	assert.Equal(t, []string{"pometom"}, out.Sweep.Ghosts)
	assert.Equal(t, []string{"pometum"}, out.Sweep.Respellings["pometom"])
	assert.Equal(t, 1, out.Sweep.Deleted)
	_, ok = store.entry("pometom")
	assert.False(t, ok)
}

func TestReconcileAllRetiresRemovedEdition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	texts := textsFS(map[string]string{
		"Ruth.First Edition.txt": "1.1 Ne woh kah nux\n",
		"Ruth.Mayhew.txt":        "1.1 zzzword kah\n",
	})
	r := newTestRunner(store, texts)

	_, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	kah, _ := store.entry("kah")
	assert.Equal(t, []address.VerseID{2008001001, 5008001001}, kah.VerseIDs)

	delete(texts, "Ruth.Mayhew.txt")
	out, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Empty(t, out.Failures)
	require.Len(t, out.Books, 1)
	assert.Equal(t, []address.VerseID{1008001001}, out.Books[0].Updated)
	require.NotNil(t, out.Sweep)
	assert.Empty(t, out.Sweep.Ghosts)

	_, ok := store.entry("zzzword")
	assert.False(t, ok)
	kah, _ = store.entry("kah")
	assert.Equal(t, []address.VerseID{2008001001}, kah.VerseIDs)
	assert.Equal(t, 1, kah.TotalCount)
	_, ok = store.words[5008001001]
	assert.False(t, ok, "retired edition keeps no verse words")
	assert.Equal(t, "", store.verses[1008001001].Text(address.EditionMayhew))

	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Equal(t, []address.VerseID{1008001001}, rep.Unchanged)
	assert.Empty(t, rep.Reindexed)
	assert.False(t, rep.Wrote())
}

func TestSweepGhostsKeepsWordsOfBookWithoutSources(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	jonah, err := address.LookupBook("Jonah")
	require.NoError(t, err)
	id, err := address.SpecificID(address.EditionFirst, jonah.Code, 1, 1)
	require.NoError(t, err)
	store.words[id] = models.VerseWordIndex{VerseID: id, Words: []string{"wunnaumonuh"}, Counts: []int{1}}
	store.entries["wunnaumonuh"] = models.ConcordanceEntry{Headword: "wunnaumonuh", VerseIDs: []address.VerseID{id}, Counts: []int{1}, TotalCount: 1}
	store.entries["pometom"] = models.ConcordanceEntry{Headword: "pometom", VerseIDs: []address.VerseID{2008001009}, Counts: []int{1}, TotalCount: 1}
	r := newTestRunner(store, ruthTexts())

	rep, err := r.SweepGhosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pometom"}, rep.Ghosts)
	_, ok := store.entry("wunnaumonuh")
	assert.True(t, ok)
}

func TestReconcileAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestRunner(newMemStore(), ruthTexts()).ReconcileAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSweepGhostsDeletesNothingOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.entries["pometom"] = models.ConcordanceEntry{Headword: "pometom", VerseIDs: []address.VerseID{2008001009}, Counts: []int{1}, TotalCount: 1}
	store.failOnce["ListHeadwords"] = errors.New("boom")
	r := newTestRunner(store, ruthTexts())

	_, err := r.SweepGhosts(ctx)
	require.Error(t, err)
	_, ok := store.entry("pometom")
	assert.True(t, ok)

	rep, err := r.SweepGhosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deleted)
}

func TestHapaxes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRunner(store, ruthTexts())
	_, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)

	got, err := r.Hapaxes(ctx, 0)
	require.NoError(t, err)
	words := make([]string, len(got))
	for i, h := range got {
		words[i] = h.Headword
	}
	assert.Equal(t, []string{"nashpe", "ne", "pometum", "woh"}, words)
	assert.Equal(t, address.VerseID(2008001002), got[0].VerseID)

	got, err = r.Hapaxes(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReconcileBookAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	texts := ruthTexts()
	r := newTestRunner(store, texts)
	rep, err := r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Len(t, rep.Inserted, 2)

	rep, err = r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.False(t, rep.Wrote())

	texts["Ruth.First Edition.txt"] = &fstest.MapFile{Data: []byte("1.1 Ne woh kah nux\n")}
	texts["Ruth.KJV.txt"] = &fstest.MapFile{Data: []byte("1.1 Now it came to pass\n")}
	rep, err = r.ReconcileBook(ctx, "Ruth")
	require.NoError(t, err)
	assert.Equal(t, []address.VerseID{1008001002}, rep.Orphaned)
	assert.Equal(t, 1, rep.VerseWordsCleared)

	entries, err := store.FetchConcordanceEntries(ctx, []string{"nux", "pometum"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "nux", entries[0].Headword)
	assert.Equal(t, []address.VerseID{2008001001}, entries[0].VerseIDs)

	ruth, err := address.LookupBook("Ruth")
	require.NoError(t, err)
	rows, err := store.FetchVerseRows(ctx, ruth)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[1].Text(address.EditionFirst))
	assert.Equal(t, "", rows[1].Text(address.EditionKJV))
}
