package out

import (
	"context"
	"time"

	"shiftwatch/internal/modules/shift/domain"
)

// SessionStore owns the single-open-session invariant: Insert must check and
// create atomically.
type SessionStore interface {
	Insert(ctx context.Context, session domain.Session) error
	Close(ctx context.Context, id string, end time.Time, itemsCompleted int) error
	FindOpen(ctx context.Context) (domain.Session, error)
	ListClosed(ctx context.Context, limit int) ([]domain.Session, error)
}

type ArrivalReport struct {
	Session  domain.Session
	Earnings float64
	Rate     float64
}

// ReportStore receives a summary for every closed shift.
type ReportStore interface {
	Save(ctx context.Context, report ArrivalReport) (string, error)
}
