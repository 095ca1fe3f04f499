package domain

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnavailable means the tabular backend could not be opened or
	// resolved. The message carries remediation hints for the operator.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrPersistence means a single read or append against an open backend
	// failed.
	ErrPersistence = errors.New("persistence failure")
)

// ListingRepo is the boundary to the persisted tabular store. Appends are
// final: the store is an append-only log. There is no caching; ListAll
// re-reads from the source of truth on every call.
type ListingRepo interface {
	Append(ctx context.Context, rec ListingRecord) error
	ListAll(ctx context.Context) ([]ListingRecord, error)
}

// SessionStore keeps at most one Session per user. Updates are
// last-writer-wins; keys are disjoint per user so no cross-user locking is
// needed.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (Session, bool, error)
	Put(ctx context.Context, sess Session) error
	Delete(ctx context.Context, userID int64) error
}

// SubmissionEvent is the post-commit outcome of a finished submission.
// Err is non-nil when persistence failed; the record is included either way.
type SubmissionEvent struct {
	Record ListingRecord
	Err    error
}

// Notifier delivers best-effort messages to the administrators. Failures are
// logged by implementations and never retried or surfaced to the submitter,
// except for Forward, whose error lets the caller acknowledge the sender.
type Notifier interface {
	SubmissionFinished(ctx context.Context, ev SubmissionEvent)
	Forward(ctx context.Context, text string) error
	Alert(ctx context.Context, text string)
}
