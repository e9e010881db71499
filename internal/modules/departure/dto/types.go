package dto

import (
	"context"
	"time"
)

// BeginInput opens a departure for the given session. OnDone runs once both
// writes succeed; it is expected to close the session.
type BeginInput struct {
	SessionID     string
	SessionStart  time.Time
	Elapsed       time.Duration
	ShiftDuration time.Duration
	OnDone        func(ctx context.Context) error
}

type BeginOutput struct {
	Required bool
	State    StateOutput
}

type DraftInput struct {
	Reason    string
	Statement string
}

type StateOutput struct {
	State       string
	SessionID   string
	Reason      string
	Statement   string
	IsEmergency bool
	CanSubmit   bool
	Problems    []string
}

type SubmitOutput struct {
	AuditID string
	Details string
	State   StateOutput
}
