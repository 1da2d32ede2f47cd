package engine

import (
	"context"

	"github.com/cookkie03/davsync/pkg/model"
)

// Adapter is the capability set the engine needs from each side. Both
// remote stores are treated as equivalent despite protocol differences:
// each can enumerate all records, create, update behind a change-token
// precondition, and delete.
//
// Adapters classify their failures through the retry package sentinels:
// a stale token surfaces as retry.ErrPrecondition, validation failures as
// retry.ErrPermanent, anything else is considered transient.
type Adapter interface {
	// Name returns a short lowercase identifier used in logs.
	Name() string

	// ListAll fetches every record currently on this side. Records carry
	// their remote identifier, current change token, fingerprint, and the
	// sync identifier when the record is anchored (empty otherwise).
	ListAll(ctx context.Context) ([]*model.Record, error)

	// Create writes a new record and returns its remote identifier and
	// change token.
	Create(ctx context.Context, rec *model.Record) (remoteID, token string, err error)

	// Update overwrites the record at remoteID, failing with a
	// precondition error when the remote token no longer equals
	// expectedToken. Returns the new change token.
	Update(ctx context.Context, remoteID string, rec *model.Record, expectedToken string) (token string, err error)

	// Delete removes the record at remoteID.
	Delete(ctx context.Context, remoteID string) error

	// Anchor writes syncID into the record at rec.RemoteID as the durable
	// cross-reference, so future runs match by identifier instead of
	// content. Returns the new change token.
	Anchor(ctx context.Context, rec *model.Record, syncID string) (token string, err error)
}

// Archiver is implemented by adapters that support soft-deletion. When the
// completion policy archives a counterpart, an Archiver hides the record
// from future enumerations without destroying it; sides without the
// capability receive a final done-state update instead.
type Archiver interface {
	Archive(ctx context.Context, remoteID string) error
}

// Hooks carries the task-domain completion policy. A nil Hooks (contact
// domain) disables completion special-casing entirely.
type Hooks struct {
	// NextOccurrence computes the next scheduled occurrence of rule after
	// from. ok=false means a non-blocking fallback was used (rule
	// exhausted or unparsable) and the engine logs a warning.
	NextOccurrence func(rule string, from model.Date) (next model.Date, ok bool)

	// ShouldSkip filters records before classification. The task domain
	// skips completed one-shots that never had a counterpart, so history
	// on one side is not resurrected on the other.
	ShouldSkip func(rec *model.Record) bool
}

// Notifier delivers run-level alerts. Implementations are fire-and-forget.
type Notifier interface {
	Notify(title, message string)
}
