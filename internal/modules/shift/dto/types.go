package dto

import "time"

type StartOutput struct {
	SessionID string
	StartTime time.Time
}

type CloseInput struct {
	SessionID      string
	ItemsCompleted int
}

// ClosedOutput is the payload handed to "session closed" listeners.
type ClosedOutput struct {
	SessionID       string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	Earnings        float64
	ItemsCompleted  int
	ReportPath      string
}

type SessionOutput struct {
	SessionID      string
	StartTime      time.Time
	Open           bool
	EndTime        time.Time
	ItemsCompleted int
}

type StatusOutput struct {
	Open          bool
	SessionID     string
	StartTime     time.Time
	Elapsed       time.Duration
	ShiftDuration time.Duration
	Remaining     time.Duration
	Overtime      bool
	Earnings      float64
}
