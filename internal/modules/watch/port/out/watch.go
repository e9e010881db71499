package out

import (
	"context"
	"time"

	"shiftwatch/internal/modules/watch/domain"
)

// BreakStore holds the single active break. Load returns
// apperrors.ErrNotOnBreak when there is none.
type BreakStore interface {
	Save(ctx context.Context, b domain.Break) error
	Load(ctx context.Context) (domain.Break, error)
	Clear(ctx context.Context) error
}

type SafetyCheck struct {
	ID       string
	At       time.Time
	Details  string
	Duration time.Duration
}

// SafetyRecorder appends SAFETY_CHECK entries, idempotent per ID.
type SafetyRecorder interface {
	RecordSafetyCheck(ctx context.Context, check SafetyCheck) error
}
