package activities

import (
	"context"
	"errors"
	"path/filepath"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/pipeline"
	"github.com/cdnilsen/eliot-web/internal/util"
)

// Runner is the part of pipeline.Runner the activities drive.
type Runner interface {
	Books() ([]address.Book, error)
	ReconcileBook(ctx context.Context, book string) (*pipeline.Report, error)
	SweepGhosts(ctx context.Context) (*pipeline.SweepReport, error)
}

type Activities struct {
	runner      Runner
	dataOutRoot string
}

func New(runner Runner, dataOutRoot string) *Activities {
	return &Activities{runner: runner, dataOutRoot: dataOutRoot}
}

func (a *Activities) ListBooksActivity(ctx context.Context, in ListBooksInput) (ListBooksOutput, error) {
	_ = ctx
	books, err := a.runner.Books()
	if err != nil {
		return ListBooksOutput{}, temporalError(err)
	}
	out := ListBooksOutput{Books: make([]string, 0, len(books))}
	for _, b := range books {
		out.Books = append(out.Books, b.Name)
	}
	return out, nil
}

func (a *Activities) ReconcileBookActivity(ctx context.Context, in ReconcileBookInput) (BookSummary, error) {
	activity.GetLogger(ctx).Info("reconciling book", "book", in.Book)
	rep, err := a.runner.ReconcileBook(ctx, in.Book)
	if err != nil {
		return BookSummary{}, temporalError(err)
	}
	return Summarize(rep), nil
}

func (a *Activities) SweepGhostHeadwordsActivity(ctx context.Context, in SweepGhostsInput) (SweepGhostsOutput, error) {
	rep, err := a.runner.SweepGhosts(ctx)
	if err != nil {
		return SweepGhostsOutput{}, temporalError(err)
	}
	return SweepGhostsOutput{Ghosts: rep.Ghosts, Respellings: rep.Respellings, Deleted: rep.Deleted}, nil
}

func (a *Activities) WriteCorpusSummaryActivity(ctx context.Context, in WriteCorpusSummaryInput) (WriteCorpusSummaryOutput, error) {
	_ = ctx
	path := filepath.Join(a.dataOutRoot, "runs", in.RunID, "corpus_summary.json")
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteCorpusSummaryOutput{}, err
	}
	return WriteCorpusSummaryOutput{Path: path}, nil
}

func Summarize(rep *pipeline.Report) BookSummary {
	return BookSummary{
		Book:               rep.Book,
		RunID:              rep.RunID,
		Inserted:           len(rep.Inserted),
		Updated:            len(rep.Updated),
		Unchanged:          len(rep.Unchanged),
		Reindexed:          len(rep.Reindexed),
		Orphaned:           len(rep.Orphaned),
		MassChanges:        rep.MassChanges,
		ConcordanceUpserts: rep.ConcordanceUpserts,
		ConcordanceDeletes: rep.ConcordanceDeletes,
		SourceDigest:       rep.SourceDigest,
	}
}

// Error types reported to workflows. Only store outages are retried; every
// other failure repeats on retry.
const (
	ErrTypeInvalidAddress    = "InvalidAddress"
	ErrTypeCorpusConsistency = "CorpusConsistency"
	ErrTypeReconciliation    = "Reconciliation"
	ErrTypeUnknownBook       = "UnknownBook"
	ErrTypeNoSourceFiles     = "NoSourceFiles"
	ErrTypePipeline          = "Pipeline"
)

func temporalError(err error) error {
	if err == nil || util.Retryable(err) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errorType(err), err)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, util.ErrInvalidAddress):
		return ErrTypeInvalidAddress
	case errors.Is(err, util.ErrCorpusConsistency):
		return ErrTypeCorpusConsistency
	case errors.Is(err, util.ErrReconciliation):
		return ErrTypeReconciliation
	case errors.Is(err, util.ErrUnknownBook):
		return ErrTypeUnknownBook
	case errors.Is(err, util.ErrNoSourceFiles):
		return ErrTypeNoSourceFiles
	}
	return ErrTypePipeline
}
