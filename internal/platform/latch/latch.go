// Package latch implements the hold-to-confirm gesture: an action commits only
// after a press has been held for a required duration, and any release before
// that aborts it.
package latch

import (
	"sync"
	"time"
)

// DefaultHold is the hold time used by the exit, SOS and resume gestures.
const DefaultHold = 3 * time.Second

// Latch accumulates press time and fires its callback once per arm cycle.
// It does no I/O and never blocks; the owner drives it by calling Sample on
// its own tick.
type Latch struct {
	mu         sync.Mutex
	required   time.Duration
	armedAt    time.Time
	armed      bool
	onComplete func()
}

// New returns an idle latch. A non-positive required duration falls back to DefaultHold.
func New(required time.Duration, onComplete func()) *Latch {
	if required <= 0 {
		required = DefaultHold
	}
	return &Latch{required: required, onComplete: onComplete}
}

// Arm starts timing from now. Arming an armed latch keeps the original start.
func (l *Latch) Arm(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.armed {
		return
	}
	l.armed = true
	l.armedAt = now
}

// Release aborts the current press. It is a no-op when idle.
func (l *Latch) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.armed = false
	l.armedAt = time.Time{}
}

// Armed reports whether a press is being timed.
func (l *Latch) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

// Required returns the hold duration.
func (l *Latch) Required() time.Duration {
	return l.required
}

// Sample returns progress in [0,1]. When progress reaches 1 the latch resets
// and the callback runs, outside the lock, before Sample returns.
func (l *Latch) Sample(now time.Time) float64 {
	l.mu.Lock()
	if !l.armed {
		l.mu.Unlock()
		return 0
	}
	progress := clamp01(float64(now.Sub(l.armedAt)) / float64(l.required))
	if progress < 1 {
		l.mu.Unlock()
		return progress
	}
	l.armed = false
	l.armedAt = time.Time{}
	fire := l.onComplete
	l.mu.Unlock()

	if fire != nil {
		fire()
	}
	return 1
}

// Progress is Sample without the side effect: it never completes the latch,
// so observers can draw a press they do not own.
func (l *Latch) Progress(now time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.armed {
		return 0
	}
	return clamp01(float64(now.Sub(l.armedAt)) / float64(l.required))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
