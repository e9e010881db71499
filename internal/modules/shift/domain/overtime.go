package domain

import (
	"math"
	"time"
)

// IsOvertime is level-triggered: callers re-evaluate it on every tick with the
// current threshold.
func IsOvertime(elapsed, shiftDuration time.Duration) bool {
	return elapsed > shiftDuration
}

// Earnings is computed from the unrounded elapsed time so the live figure and
// the figure at close agree for the same elapsed value.
func Earnings(elapsed time.Duration, hourlyRate float64) float64 {
	return elapsed.Seconds() / 3600.0 * hourlyRate
}

// RoundCents is for presentation only.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Status is the derived view of an open session at one instant.
type Status struct {
	Session       Session
	Elapsed       time.Duration
	ShiftDuration time.Duration
	Overtime      bool
	Earnings      float64
}

func Evaluate(s Session, now time.Time, shiftDuration time.Duration, hourlyRate float64) Status {
	elapsed := s.Elapsed(now)
	return Status{
		Session:       s,
		Elapsed:       elapsed,
		ShiftDuration: shiftDuration,
		Overtime:      s.IsOpen() && IsOvertime(elapsed, shiftDuration),
		Earnings:      Earnings(elapsed, hourlyRate),
	}
}
