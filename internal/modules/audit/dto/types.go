package dto

import "time"

// RecordInput describes one entry. ID and At are optional; a caller that
// retries a failed append passes the values from its first attempt so the
// retry is verbatim.
type RecordInput struct {
	ID         string
	At         time.Time
	Kind       string
	Details    string
	ReasonCode string
	Duration   *time.Duration
}

type EntryOutput struct {
	ID         string
	Kind       string
	Timestamp  time.Time
	Details    string
	ReasonCode string
	Duration   *time.Duration
}

type TailInput struct {
	Kinds []string
	Since time.Time
	Limit int
}

type CountInput struct {
	Kinds []string
	Since time.Time
}
