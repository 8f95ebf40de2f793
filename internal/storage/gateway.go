package storage

import (
	"context"
	"fmt"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/config"
	"github.com/cdnilsen/eliot-web/internal/models"
)

// Store is the read/write surface the pipeline needs from a backend.
type Store interface {
	FetchVerseRows(ctx context.Context, book address.Book) ([]models.VerseRow, error)
	FetchVerseWordIndex(ctx context.Context, book address.Book) ([]models.VerseWordIndex, error)
	UpsertVerseRows(ctx context.Context, rows []models.VerseRow) error
	FetchConcordanceEntries(ctx context.Context, headwords []string) ([]models.ConcordanceEntry, error)
	UpsertConcordanceEntries(ctx context.Context, entries []models.ConcordanceEntry) error
	DeleteConcordanceEntries(ctx context.Context, headwords []string) error
	UpsertVerseWordIndex(ctx context.Context, rows []models.VerseWordIndex) error
	DeleteVerseWordIndex(ctx context.Context, ids []address.VerseID) error
	ListHeadwords(ctx context.Context) ([]string, error)
	ListHapaxes(ctx context.Context, limit int) ([]models.Hapax, error)
	Migrate(ctx context.Context) error
	Close() error
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects the backend named by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case DriverPostgres, "":
		db, err := NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return NewGateway(db, cfg.BatchSize), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, cfg.BatchSize)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Gateway is the Postgres store: one repo per table over a shared pool.
type Gateway struct {
	db          *DB
	verses      *VerseRepo
	verseWords  *VerseWordRepo
	concordance *ConcordanceRepo
}

func NewGateway(db *DB, batchSize int) *Gateway {
	return &Gateway{
		db:          db,
		verses:      NewVerseRepo(db, batchSize),
		verseWords:  NewVerseWordRepo(db, batchSize),
		concordance: NewConcordanceRepo(db, batchSize),
	}
}

func (g *Gateway) FetchVerseRows(ctx context.Context, book address.Book) ([]models.VerseRow, error) {
	return g.verses.FetchByBook(ctx, book.Code)
}

func (g *Gateway) FetchVerseWordIndex(ctx context.Context, book address.Book) ([]models.VerseWordIndex, error) {
	return g.verseWords.FetchByBook(ctx, book.Code)
}

func (g *Gateway) UpsertVerseRows(ctx context.Context, rows []models.VerseRow) error {
	return g.verses.Upsert(ctx, rows)
}

func (g *Gateway) FetchConcordanceEntries(ctx context.Context, headwords []string) ([]models.ConcordanceEntry, error) {
	return g.concordance.Fetch(ctx, headwords)
}

func (g *Gateway) UpsertConcordanceEntries(ctx context.Context, entries []models.ConcordanceEntry) error {
	return g.concordance.Upsert(ctx, entries)
}

func (g *Gateway) DeleteConcordanceEntries(ctx context.Context, headwords []string) error {
	return g.concordance.Delete(ctx, headwords)
}

func (g *Gateway) UpsertVerseWordIndex(ctx context.Context, rows []models.VerseWordIndex) error {
	return g.verseWords.Upsert(ctx, rows)
}

func (g *Gateway) DeleteVerseWordIndex(ctx context.Context, ids []address.VerseID) error {
	return g.verseWords.Delete(ctx, ids)
}

func (g *Gateway) ListHeadwords(ctx context.Context) ([]string, error) {
	return g.concordance.ListHeadwords(ctx)
}

func (g *Gateway) ListHapaxes(ctx context.Context, limit int) ([]models.Hapax, error) {
	return g.concordance.ListHapaxes(ctx, limit)
}

func (g *Gateway) Migrate(ctx context.Context) error {
	return g.db.Migrate(ctx)
}

func (g *Gateway) Close() error {
	g.db.Close()
	return nil
}
