package engine

import (
	"context"
	"slices"
	"time"

	auditdto "shiftwatch/internal/modules/audit/dto"
	depdto "shiftwatch/internal/modules/departure/dto"
	shiftdto "shiftwatch/internal/modules/shift/dto"
	watchdto "shiftwatch/internal/modules/watch/dto"
)

type Topic string

const (
	TopicSessions Topic = "sessions"
	TopicAudit    Topic = "audit_logs"
	TopicEngine   Topic = "engine"
)

type EventKind string

const (
	EventTick            EventKind = "tick"
	EventShiftStarted    EventKind = "shift_started"
	EventShiftClosed     EventKind = "shift_closed"
	EventAuditAppended   EventKind = "audit_appended"
	EventDeparture       EventKind = "departure"
	EventBreak           EventKind = "break"
	EventGestureProgress EventKind = "gesture_progress"
	EventGestureDone     EventKind = "gesture_completed"
	EventError           EventKind = "error"
)

// Event is one notification on a topic. Only the fields relevant to Kind are set.
type Event struct {
	Topic     Topic
	Kind      EventKind
	At        time.Time
	Snapshot  *Snapshot
	Closed    *shiftdto.ClosedOutput
	Audit     *auditdto.EntryOutput
	Departure *depdto.StateOutput
	Break     *watchdto.StatusOutput
	Gesture   Gesture
	Progress  float64
	Result    *GestureResult
	Err       error
}

// Snapshot is everything a presenter needs to draw the current state.
type Snapshot struct {
	At           time.Time
	Shift        shiftdto.StatusOutput
	Break        watchdto.StatusOutput
	Departure    depdto.StateOutput
	HoldRequired bool
	Gestures     map[Gesture]float64
}

// Subscribe streams events for the given topics, or every topic when none is
// named, until ctx is done or the engine is closed. A slow reader loses the
// oldest events, never blocks the engine.
func (e *Engine) Subscribe(ctx context.Context, topics ...Topic) <-chan Event {
	src := e.hub.Subscribe(ctx)
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		for ev := range src {
			if len(topics) > 0 && !slices.Contains(topics, ev.Topic) {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (e *Engine) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	e.hub.Publish(ev)
}
