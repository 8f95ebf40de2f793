package util

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress    = errors.New("invalid verse address")
	ErrCorpusConsistency = errors.New("corpus consistency violation")
	ErrReconciliation    = errors.New("stored verse rows do not match expected schema")
	ErrStoreUnavailable  = errors.New("store unavailable")

	ErrUnknownBook    = errors.New("unknown book")
	ErrUnknownEdition = errors.New("unknown edition")
	ErrNoSourceFiles  = errors.New("no source files found for book")
)

// AddressError reports a chapter or verse outside the three-digit domain,
// or a malformed book code.
type AddressError struct {
	Field string
	Value string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid %s %q: must fit in three digits", e.Field, e.Value)
}

func (e *AddressError) Unwrap() error { return ErrInvalidAddress }

// CorpusConsistencyError means a record disagrees with the key it was filed
// under. It indicates a parser or table bug and is never repaired.
type CorpusConsistencyError struct {
	Book    string
	Key     string
	VerseID string
	Reason  string
}

func (e *CorpusConsistencyError) Error() string {
	return fmt.Sprintf("corpus %s: record %s under key %s: %s", e.Book, e.VerseID, e.Key, e.Reason)
}

func (e *CorpusConsistencyError) Unwrap() error { return ErrCorpusConsistency }

// ReconciliationError reports a stored row whose shape does not match the
// verse table layout.
type ReconciliationError struct {
	Book    string
	VerseID string
	Reason  string
}

func (e *ReconciliationError) Error() string {
	if e.VerseID != "" {
		return fmt.Sprintf("reconcile %s: stored row %s: %s", e.Book, e.VerseID, e.Reason)
	}
	return fmt.Sprintf("reconcile %s: %s", e.Book, e.Reason)
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliation }

// StoreError wraps a transport-level failure talking to the store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// BookError attaches the book and pipeline phase to a failure so operators can
// tell which book to re-run.
type BookError struct {
	Book  string
	Phase string
	Err   error
}

func (e *BookError) Error() string {
	return fmt.Sprintf("book %s: %s: %v", e.Book, e.Phase, e.Err)
}

func (e *BookError) Unwrap() error { return e.Err }

// Retryable reports whether re-running the whole book may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
