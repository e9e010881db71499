package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	auditdto "shiftwatch/internal/modules/audit/dto"
	watchdto "shiftwatch/internal/modules/watch/dto"
	"shiftwatch/internal/platform/latch"
)

// Gesture names a hold-to-confirm action.
type Gesture string

const (
	GestureEndShift Gesture = "end_shift"
	GestureSOS      Gesture = "sos"
	GestureResume   Gesture = "resume"
)

// ErrClosed is returned by Hold once the engine has been closed.
var ErrClosed = errors.New("engine closed")

// HoldTick is how often a driver should sample an armed latch.
const HoldTick = 16 * time.Millisecond

func ParseGesture(raw string) (Gesture, error) {
	switch g := Gesture(raw); g {
	case GestureEndShift, GestureSOS, GestureResume:
		return g, nil
	default:
		return "", fmt.Errorf("unknown gesture %q", raw)
	}
}

// GestureResult is what a completed gesture did. Exactly one of the payload
// fields is set when Err is nil.
type GestureResult struct {
	Gesture   Gesture
	Departure *DepartureOutcome
	Resume    *watchdto.ResumeOutput
	SOS       *auditdto.EntryOutput
	Err       error
}

// Arm starts a press of g. Without hold confirmation the action runs at once.
// Either way the action runs on its own goroutine and reports an
// EventGestureDone event.
func (e *Engine) Arm(g Gesture, now time.Time) {
	if !e.HoldRequired() {
		e.complete(g)
		return
	}
	l := e.latchFor(g)
	if l == nil {
		return
	}
	l.Arm(now)
	e.publish(Event{Topic: TopicEngine, Kind: EventGestureProgress, At: now, Gesture: g})
}

// Release aborts a press of g. Nothing has been written yet when this returns.
func (e *Engine) Release(g Gesture) {
	e.mu.Lock()
	l := e.latches[g]
	e.mu.Unlock()
	if l == nil || !l.Armed() {
		return
	}
	l.Release()
	e.publish(Event{Topic: TopicEngine, Kind: EventGestureProgress, Gesture: g})
}

// Sample advances the press of g and returns its progress in [0,1].
func (e *Engine) Sample(g Gesture, now time.Time) float64 {
	e.mu.Lock()
	l := e.latches[g]
	e.mu.Unlock()
	if l == nil || !l.Armed() {
		return 0
	}
	p := l.Sample(now)
	e.publish(Event{Topic: TopicEngine, Kind: EventGestureProgress, At: now, Gesture: g, Progress: p})
	return p
}

// Hold arms g and samples it every HoldTick until the action has run or ctx is
// done. Cancelling ctx before completion releases the latch.
func (e *Engine) Hold(ctx context.Context, g Gesture) (GestureResult, error) {
	done := make(chan GestureResult, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return GestureResult{Gesture: g, Err: ErrClosed}, ErrClosed
	}
	e.waiters[g] = append(e.waiters[g], done)
	e.mu.Unlock()

	e.Arm(g, e.clock.Now())
	ticker := e.newTicker(HoldTick)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			return res, res.Err
		case <-ctx.Done():
			e.Release(g)
			e.dropWaiter(g, done)
			return GestureResult{Gesture: g}, ctx.Err()
		case <-ticker.C():
			e.Sample(g, e.clock.Now())
		}
	}
}

func (e *Engine) latchFor(g Gesture) *latch.Latch {
	hold := e.settings.Current().HoldDuration()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	l := e.latches[g]
	if l == nil || (!l.Armed() && l.Required() != hold) {
		l = latch.New(hold, func() { e.complete(g) })
		e.latches[g] = l
	}
	return l
}

func (e *Engine) gestureProgress(now time.Time) map[Gesture]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[Gesture]float64{}
	for g, l := range e.latches {
		if !l.Armed() {
			continue
		}
		out[g] = l.Progress(now)
	}
	return out
}

func (e *Engine) dropWaiter(g Gesture, ch chan GestureResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws := e.waiters[g]
	for i, w := range ws {
		if w == ch {
			e.waiters[g] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

func (e *Engine) complete(g Gesture) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	waiters := e.waiters[g]
	delete(e.waiters, g)
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		res := e.runGesture(e.base, g)
		if res.Err != nil {
			e.logger.Warn("gesture action failed", zap.String("gesture", string(g)), zap.Error(res.Err))
		} else {
			e.logger.Info("gesture completed", zap.String("gesture", string(g)))
		}
		e.publish(Event{Topic: TopicEngine, Kind: EventGestureDone, Gesture: g, Result: &res, Err: res.Err})
		for _, w := range waiters {
			w <- res
		}
	}()
}

func (e *Engine) runGesture(ctx context.Context, g Gesture) GestureResult {
	res := GestureResult{Gesture: g}
	switch g {
	case GestureEndShift:
		out, err := e.requestDeparture(ctx)
		if err == nil {
			res.Departure = &out
		}
		res.Err = err
	case GestureSOS:
		out, err := e.triggerSOS(ctx)
		if err == nil {
			res.SOS = &out
		}
		res.Err = err
	case GestureResume:
		out, err := e.resumeBreak(ctx)
		if err == nil {
			res.Resume = &out
		}
		res.Err = err
	default:
		res.Err = fmt.Errorf("unknown gesture %q", g)
	}
	return res
}
