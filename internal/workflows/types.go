package workflows

import "github.com/cdnilsen/eliot-web/internal/activities"

type ReconcileBookInput struct {
	Book string `json:"book"`
}

type ReconcileCorpusInput struct {
	RunID string `json:"run_id"`
	// SkipSweep leaves ghost headwords in place even when every book succeeds.
	SkipSweep bool `json:"skip_sweep,omitempty"`
}

type BookStatus struct {
	Book       string                  `json:"book"`
	Status     string                  `json:"status"`
	FailReason string                  `json:"fail_reason,omitempty"`
	Summary    *activities.BookSummary `json:"summary,omitempty"`
}

type CorpusProgress struct {
	RunID         string            `json:"run_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerBook       map[string]string `json:"per_book_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
	Swept         int               `json:"ghosts_swept"`
	Phase         string            `json:"phase"`
}

const (
	StatusPending   = "pending"
	StatusRunning   = "reconciling"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
	// StatusPartial is returned by the corpus workflow when some books failed.
	StatusPartial = "completed_with_failures"
)
