package activities

type ListBooksInput struct{}

type ListBooksOutput struct {
	Books []string `json:"books"`
}

type ReconcileBookInput struct {
	Book string `json:"book"`
}

// BookSummary is the part of a book report carried through workflow history.
// The full report with id lists is written under the data-out root.
type BookSummary struct {
	Book               string `json:"book"`
	RunID              string `json:"run_id"`
	Inserted           int    `json:"inserted"`
	Updated            int    `json:"updated"`
	Unchanged          int    `json:"unchanged"`
	Reindexed          int    `json:"reindexed"`
	Orphaned           int    `json:"orphaned"`
	MassChanges        int    `json:"mass_changes"`
	ConcordanceUpserts int    `json:"concordance_upserts"`
	ConcordanceDeletes int    `json:"concordance_deletes"`
	SourceDigest       string `json:"source_digest"`
}

type SweepGhostsInput struct{}

type SweepGhostsOutput struct {
	Ghosts      []string            `json:"ghosts"`
	Respellings map[string][]string `json:"respellings,omitempty"`
	Deleted     int                 `json:"deleted"`
}

type WriteCorpusSummaryInput struct {
	RunID   string         `json:"run_id"`
	Summary map[string]any `json:"summary"`
}

type WriteCorpusSummaryOutput struct {
	Path string `json:"path"`
}
