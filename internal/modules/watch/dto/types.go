package dto

import "time"

type BeginInput struct {
	Kind string
}

type StatusOutput struct {
	OnBreak         bool
	BreakID         string
	Kind            string
	AwayStart       time.Time
	EstimatedReturn time.Time
	Remaining       time.Duration
	Away            time.Duration
}

type ResumeOutput struct {
	BreakID   string
	Kind      string
	AwayStart time.Time
	Duration  time.Duration
	Details   string
}
