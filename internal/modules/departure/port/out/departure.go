package out

import (
	"context"
	"time"
)

type EarlyExitRecord struct {
	ID         string
	At         time.Time
	ReasonCode string
	Details    string
}

// AuditRecorder appends EARLY_EXIT entries. Appending a record whose ID is
// already stored must succeed without a second entry.
type AuditRecorder interface {
	RecordEarlyExit(ctx context.Context, record EarlyExitRecord) error
}

type DriftCounter interface {
	DriftEventsSince(ctx context.Context, since time.Time) (int, error)
}

type Message struct {
	ID        string
	SessionID string
	Kind      string
	Content   string
	CreatedAt time.Time
}

// MessageArchive keeps a copy of every departure statement. Archive is
// idempotent per message ID.
type MessageArchive interface {
	Archive(ctx context.Context, msg Message) error
}

type TaskStats interface {
	TaskCounts(ctx context.Context) (completed, total int, err error)
}

type HoldingCounter interface {
	UnarchivedHoldingItems(ctx context.Context) (int, error)
}

// PendingSubmission is a frozen submission that has not finished yet. It is
// kept outside the process so a rerun repeats the same writes.
type PendingSubmission struct {
	SessionID    string
	SessionStart time.Time
	AuditID      string
	At           time.Time
	Reason       string
	Statement    string
	Details      string
	IsEmergency  bool
}

// PendingStore holds at most one pending submission per session. Load
// returns apperrors.ErrNotFound when the session has none.
type PendingStore interface {
	Save(ctx context.Context, pending PendingSubmission) error
	Load(ctx context.Context, sessionID string) (PendingSubmission, error)
	Clear(ctx context.Context, sessionID string) error
}
