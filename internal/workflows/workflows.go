package workflows

import (
	"strings"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cdnilsen/eliot-web/internal/activities"
)

const (
	QueryGetBookStatus = "GetBookStatus"
	QueryGetProgress   = "GetProgress"
)

func bookActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    4,
		},
	}
}

// ReconcileBookWorkflow reconciles one book. Store outages are retried by the
// activity policy; any other failure ends the workflow at once.
func ReconcileBookWorkflow(ctx workflow.Context, input ReconcileBookInput) (activities.BookSummary, error) {
	status := BookStatus{Book: input.Book, Status: StatusRunning}
	if err := workflow.SetQueryHandler(ctx, QueryGetBookStatus, func() (BookStatus, error) {
		return status, nil
	}); err != nil {
		return activities.BookSummary{}, err
	}

	ctx = workflow.WithActivityOptions(ctx, bookActivityOptions())
	var out activities.BookSummary
	if err := workflow.ExecuteActivity(ctx, "ReconcileBookActivity", activities.ReconcileBookInput{Book: input.Book}).Get(ctx, &out); err != nil {
		status.Status = StatusFailed
		status.FailReason = err.Error()
		workflow.GetLogger(ctx).Error("book reconcile failed", "book", input.Book, "error", err)
		return activities.BookSummary{}, err
	}
	status.Status = StatusDone
	status.Summary = &out
	return out, nil
}

// ReconcileCorpusWorkflow reconciles every book one after another as child
// workflows. A failed book does not stop the run, but it does skip the ghost
// sweep.
func ReconcileCorpusWorkflow(ctx workflow.Context, input ReconcileCorpusInput) (string, error) {
	runID := input.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.RunID
	}
	progress := CorpusProgress{
		RunID:         runID,
		PerBook:       map[string]string{},
		ChildWorkflow: map[string]string{},
		Phase:         "listing",
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (CorpusProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListBooksOutput
	if err := workflow.ExecuteActivity(ctx, "ListBooksActivity", activities.ListBooksInput{}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	progress.Total = len(listOut.Books)
	for _, b := range listOut.Books {
		progress.PerBook[b] = StatusPending
	}

	progress.Phase = "reconciling"
	failures := map[string]string{}
	summaries := make([]activities.BookSummary, 0, len(listOut.Books))
	for _, book := range listOut.Books {
		// Children share the standalone id, so a book already being
		// reconciled on its own fails to start here instead of running twice.
		workflowID := BookWorkflowID(book)
		progress.PerBook[book] = StatusRunning
		progress.ChildWorkflow[book] = workflowID

		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:            workflowID,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		})
		var summary activities.BookSummary
		err := workflow.ExecuteChildWorkflow(childCtx, ReconcileBookWorkflow, ReconcileBookInput{Book: book}).Get(ctx, &summary)
		if err != nil {
			progress.Failed++
			progress.PerBook[book] = StatusFailed
			failures[book] = err.Error()
			continue
		}
		progress.Done++
		progress.PerBook[book] = StatusDone
		summaries = append(summaries, summary)
	}

	result := StatusCompleted
	swept := false
	switch {
	case progress.Failed > 0:
		result = StatusPartial
		workflow.GetLogger(ctx).Warn("ghost sweep skipped", "failed_books", progress.Failed)
	case !input.SkipSweep:
		progress.Phase = "sweeping"
		sweepCtx := workflow.WithActivityOptions(ctx, bookActivityOptions())
		var sweepOut activities.SweepGhostsOutput
		if err := workflow.ExecuteActivity(sweepCtx, "SweepGhostHeadwordsActivity", activities.SweepGhostsInput{}).Get(ctx, &sweepOut); err != nil {
			failures["sweep"] = err.Error()
			result = StatusPartial
		} else {
			progress.Swept = sweepOut.Deleted
			swept = true
		}
	}

	progress.Phase = "summarizing"
	_ = workflow.ExecuteActivity(ctx, "WriteCorpusSummaryActivity", activities.WriteCorpusSummaryInput{
		RunID: runID,
		Summary: map[string]any{
			"run_id":          runID,
			"total":           progress.Total,
			"done":            progress.Done,
			"failed":          progress.Failed,
			"per_book_status": progress.PerBook,
			"failures":        failures,
			"books":           summaries,
			"swept":           swept,
			"ghosts_swept":    progress.Swept,
			"generated_at":    workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	progress.Phase = result
	return result, nil
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.NewReplacer("(", "", ")", "").Replace(s)
	return s
}

// CorpusWorkflowID names the single full-corpus run; a second start while one
// is running is refused.
const CorpusWorkflowID = "reconcile-corpus"

// BookWorkflowID is the id of every reconciliation of book, standalone or as a
// corpus child, so at most one runs at a time.
func BookWorkflowID(book string) string {
	return "reconcile-" + sanitizeID(book)
}
