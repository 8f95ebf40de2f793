package pipeline

import (
	"time"

	"github.com/cdnilsen/eliot-web/internal/address"
)

// Report describes one reconcileBook run.
type Report struct {
	RunID    string   `json:"run_id"`
	Book     string   `json:"book"`
	Editions []string `json:"editions"`
	Sources  []string `json:"sources"`

	Inserted  []address.VerseID `json:"inserted"`
	Updated   []address.VerseID `json:"updated"`
	Unchanged []address.VerseID `json:"unchanged"`
	Reindexed []address.VerseID `json:"reindexed"`
	Orphaned  []address.VerseID `json:"orphaned"`

	MassChanges        int `json:"mass_changes"`
	VerseWordsWritten  int `json:"verse_words_written"`
	VerseWordsCleared  int `json:"verse_words_cleared"`
	ConcordanceUpserts int `json:"concordance_upserts"`
	ConcordanceDeletes int `json:"concordance_deletes"`

	SourceDigest string           `json:"source_digest"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	PhaseMillis  map[string]int64 `json:"phase_ms"`
}

// Wrote reports whether the run changed anything in the store.
func (r *Report) Wrote() bool {
	return len(r.Inserted) > 0 || len(r.Updated) > 0 ||
		r.VerseWordsWritten > 0 || r.VerseWordsCleared > 0 ||
		r.ConcordanceUpserts > 0 || r.ConcordanceDeletes > 0
}

// BookFailure records a book that could not be reconciled in a corpus run.
type BookFailure struct {
	Book      string `json:"book"`
	Phase     string `json:"phase,omitempty"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// CorpusReport summarises a run over every book with source files.
type CorpusReport struct {
	RunID      string        `json:"run_id"`
	Books      []*Report     `json:"books"`
	Failures   []BookFailure `json:"failures,omitempty"`
	Sweep      *SweepReport  `json:"sweep,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// SweepReport lists the ghost headwords removed from the concordance.
type SweepReport struct {
	Ghosts      []string            `json:"ghosts"`
	Respellings map[string][]string `json:"respellings,omitempty"`
	Deleted     int                 `json:"deleted"`
}
