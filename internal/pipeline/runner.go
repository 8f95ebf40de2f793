// Package pipeline runs parse, reconcile and index for a book against a store.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/corpus"
	"github.com/cdnilsen/eliot-web/internal/index"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/parser"
	"github.com/cdnilsen/eliot-web/internal/reconcile"
	"github.com/cdnilsen/eliot-web/internal/util"
)

// Gateway is the store surface the runner reads and writes.
type Gateway interface {
	index.ConcordanceReader
	FetchVerseRows(ctx context.Context, book address.Book) ([]models.VerseRow, error)
	FetchVerseWordIndex(ctx context.Context, book address.Book) ([]models.VerseWordIndex, error)
	UpsertVerseRows(ctx context.Context, rows []models.VerseRow) error
	UpsertConcordanceEntries(ctx context.Context, entries []models.ConcordanceEntry) error
	DeleteConcordanceEntries(ctx context.Context, headwords []string) error
	UpsertVerseWordIndex(ctx context.Context, rows []models.VerseWordIndex) error
	DeleteVerseWordIndex(ctx context.Context, ids []address.VerseID) error
	ListHeadwords(ctx context.Context) ([]string, error)
	ListHapaxes(ctx context.Context, limit int) ([]models.Hapax, error)
}

const (
	PhaseParse     = "parse"
	PhaseRead      = "read"
	PhaseReconcile = "reconcile"
	PhaseVerses    = "verses"
	PhaseIndex     = "index"
)

type Options struct {
	Logger *slog.Logger
	// ReportDir receives runs/<run id>/<book>.json when set.
	ReportDir string
	// RespellDistance bounds respelling hints in ghost sweeps; 0 disables them.
	RespellDistance int
}

// Runner reconciles books read from texts against store, one at a time.
// The caller owns the store and closes it after the run.
type Runner struct {
	store     Gateway
	texts     fs.FS
	parser    *parser.Parser
	logger    *slog.Logger
	reportDir string
	respell   int
	now       func() time.Time
}

func NewRunner(store Gateway, texts fs.FS, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Runner{
		store:     store,
		texts:     texts,
		parser:    parser.New(logger),
		logger:    logger,
		reportDir: opts.ReportDir,
		respell:   opts.RespellDistance,
		now:       time.Now,
	}
}

// Books lists the books that have source files.
func (r *Runner) Books() ([]address.Book, error) {
	return r.parser.Books(r.texts)
}

// ReconcileBook parses every edition of the book, diffs it against the store
// and writes only the differences. Phases commit independently; re-running
// the book after any failure is safe.
func (r *Runner) ReconcileBook(ctx context.Context, name string) (*Report, error) {
	return r.reconcileBook(ctx, name, uuid.NewString())
}

func (r *Runner) reconcileBook(ctx context.Context, name, runID string) (*Report, error) {
	book, err := address.LookupBook(name)
	if err != nil {
		return nil, &util.BookError{Book: name, Phase: PhaseParse, Err: err}
	}
	logger := logging.WithBook(r.logger, book.Name).With("run_id", runID)
	rep := &Report{
		RunID:       runID,
		Book:        book.Name,
		StartedAt:   r.now().UTC(),
		PhaseMillis: map[string]int64{},
	}
	fail := func(phase string, err error) (*Report, error) {
		logger.Error("reconcile failed", "phase", phase, "error", err)
		return rep, &util.BookError{Book: book.Name, Phase: phase, Err: err}
	}
	timed := func(phase string, start time.Time) {
		rep.PhaseMillis[phase] = time.Since(start).Milliseconds()
	}

	start := time.Now()
	model, err := r.load(book, rep)
	if err != nil {
		return fail(PhaseParse, err)
	}
	timed(PhaseParse, start)

	start = time.Now()
	stored, err := r.store.FetchVerseRows(ctx, book)
	if err != nil {
		return fail(PhaseRead, err)
	}
	storedIndex, err := r.store.FetchVerseWordIndex(ctx, book)
	if err != nil {
		return fail(PhaseRead, err)
	}
	timed(PhaseRead, start)

	start = time.Now()
	plan, err := reconcile.Reconcile(model, stored, storedIndex)
	if err != nil {
		return fail(PhaseReconcile, err)
	}
	fillPlan(rep, plan)
	timed(PhaseReconcile, start)

	start = time.Now()
	if rows := plan.Rows(); len(rows) > 0 {
		if err := r.store.UpsertVerseRows(ctx, rows); err != nil {
			return fail(PhaseVerses, err)
		}
	}
	timed(PhaseVerses, start)

	start = time.Now()
	changes, err := index.Build(ctx, r.store, plan)
	if err != nil {
		return fail(PhaseIndex, err)
	}
	if err := r.applyIndex(ctx, changes); err != nil {
		return fail(PhaseIndex, err)
	}
	rep.VerseWordsWritten = len(changes.VerseWords)
	rep.VerseWordsCleared = len(changes.ClearedVerses)
	rep.ConcordanceUpserts = len(changes.Upserts)
	rep.ConcordanceDeletes = len(changes.Deletes)
	timed(PhaseIndex, start)

	rep.FinishedAt = r.now().UTC()
	logger.Info("book reconciled",
		"inserted", len(rep.Inserted),
		"updated", len(rep.Updated),
		"unchanged", len(rep.Unchanged),
		"reindexed", len(rep.Reindexed),
		"orphaned", len(rep.Orphaned),
		"mass_changes", rep.MassChanges,
		"concordance_upserts", rep.ConcordanceUpserts,
		"concordance_deletes", rep.ConcordanceDeletes,
	)
	r.writeReport(logger, runID, rep)
	return rep, nil
}

// load parses every edition file of book and hashes what it read.
func (r *Runner) load(book address.Book, rep *Report) (*corpus.Model, error) {
	sources, err := r.parser.Discover(r.texts, book)
	if err != nil {
		return nil, err
	}
	digest := util.NewDigest()
	var records []models.VerseRecord
	for _, src := range sources {
		data, err := fs.ReadFile(r.texts, src.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Path, err)
		}
		if err := digest.Add(src.Path, bytes.NewReader(data)); err != nil {
			return nil, err
		}
		recs, err := r.parser.Parse(bytes.NewReader(data), book, src.Edition)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		rep.Sources = append(rep.Sources, src.Path)
		rep.Editions = append(rep.Editions, src.Edition.Tag())
	}
	rep.SourceDigest = digest.Hex()
	return corpus.Build(book, records, r.logger)
}

// applyIndex writes concordance changes before verse-word rows, so a failure
// part way leaves the old verse-word rows and the next run sees the drift.
func (r *Runner) applyIndex(ctx context.Context, c *index.Changes) error {
	if len(c.Upserts) > 0 {
		if err := r.store.UpsertConcordanceEntries(ctx, c.Upserts); err != nil {
			return err
		}
	}
	if len(c.Deletes) > 0 {
		if err := r.store.DeleteConcordanceEntries(ctx, c.Deletes); err != nil {
			return err
		}
	}
	if len(c.ClearedVerses) > 0 {
		if err := r.store.DeleteVerseWordIndex(ctx, c.ClearedVerses); err != nil {
			return err
		}
	}
	if len(c.VerseWords) > 0 {
		if err := r.store.UpsertVerseWordIndex(ctx, c.VerseWords); err != nil {
			return err
		}
	}
	return nil
}

func fillPlan(rep *Report, plan *reconcile.Plan) {
	for _, c := range plan.ToInsert {
		rep.Inserted = append(rep.Inserted, c.GenericID)
	}
	for _, c := range plan.ToUpdate {
		rep.Updated = append(rep.Updated, c.GenericID)
	}
	rep.Unchanged = plan.Unchanged
	rep.Reindexed = plan.Reindex
	rep.Orphaned = plan.Orphans
	rep.MassChanges = plan.MassChanges()
}

func (r *Runner) writeReport(logger *slog.Logger, runID string, v any) {
	if r.reportDir == "" {
		return
	}
	var name string
	switch rep := v.(type) {
	case *Report:
		name = rep.Book + ".json"
	case *CorpusReport:
		name = "corpus.json"
	default:
		return
	}
	path := util.SafeJoin(filepath.Join(r.reportDir, "runs", runID), name)
	if err := util.WriteJSONAtomic(path, v); err != nil {
		logger.Warn("write report failed", "path", path, "error", err)
	}
}

// ReconcileAll reconciles every book with source files in canonical order.
// A failed book is recorded and the run moves on; the ghost sweep only runs
// when every book succeeded.
func (r *Runner) ReconcileAll(ctx context.Context) (*CorpusReport, error) {
	runID := uuid.NewString()
	out := &CorpusReport{RunID: runID, StartedAt: r.now().UTC()}
	books, err := r.Books()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	for _, b := range books {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := r.reconcileBook(ctx, b.Name, runID)
		if err != nil {
			out.Failures = append(out.Failures, failure(b.Name, err))
			continue
		}
		out.Books = append(out.Books, rep)
	}
	if len(out.Failures) == 0 {
		sweep, err := r.SweepGhosts(ctx)
		if err != nil {
			out.Failures = append(out.Failures, BookFailure{Phase: "sweep", Error: err.Error(), Retryable: util.Retryable(err)})
		} else {
			out.Sweep = sweep
		}
	} else {
		r.logger.Warn("ghost sweep skipped", "run_id", runID, "failed_books", len(out.Failures))
	}
	out.FinishedAt = r.now().UTC()
	r.writeReport(r.logger, runID, out)
	return out, nil
}

func failure(book string, err error) BookFailure {
	f := BookFailure{Book: book, Error: err.Error(), Retryable: util.Retryable(err)}
	var be *util.BookError
	if errors.As(err, &be) {
		f.Phase = be.Phase
	}
	return f
}

// Hapaxes lists headwords occurring exactly once in the indexed editions.
func (r *Runner) Hapaxes(ctx context.Context, limit int) ([]models.Hapax, error) {
	out, err := r.store.ListHapaxes(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list hapaxes: %w", err)
	}
	return out, nil
}
