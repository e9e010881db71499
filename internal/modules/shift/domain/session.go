package domain

import (
	"errors"
	"time"
)

const SchemaVersion = 1

var ErrSessionClosed = errors.New("session is already closed")

// State is either Open or Closed; nothing else implements it.
type State interface {
	isState()
}

type Open struct{}

type Closed struct {
	EndTime        time.Time
	ItemsCompleted int
}

func (Open) isState()   {}
func (Closed) isState() {}

type Session struct {
	ID        string
	StartTime time.Time
	State     State
}

func NewSession(id string, start time.Time) Session {
	return Session{ID: id, StartTime: start.UTC(), State: Open{}}
}

func (s Session) IsOpen() bool {
	_, ok := s.State.(Open)
	return ok
}

func (s Session) Closed() (Closed, bool) {
	c, ok := s.State.(Closed)
	return c, ok
}

// Elapsed is measured to now while open and to the end time once closed.
func (s Session) Elapsed(now time.Time) time.Duration {
	end := now
	if c, ok := s.Closed(); ok {
		end = c.EndTime
	}
	d := end.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Close returns the closed copy of an open session. An end time before the
// start is pinned to the start.
func (s Session) Close(end time.Time, items int) (Session, error) {
	if !s.IsOpen() {
		return Session{}, ErrSessionClosed
	}
	if items < 0 {
		items = 0
	}
	end = end.UTC()
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	s.State = Closed{EndTime: end, ItemsCompleted: items}
	return s, nil
}
