package domain

import (
	"fmt"
	"time"

	apperrors "shiftwatch/internal/platform/errors"
)

// Submission is frozen when the workflow enters Submitting so every retry
// writes exactly the same records.
type Submission struct {
	AuditID      string
	At           time.Time
	Reason       Reason
	Statement    string
	Details      string
	IsEmergency  bool
	AuditWritten bool
	Archived     bool
}

func (s Submission) Complete() bool {
	return s.AuditWritten && s.Archived
}

// Machine is the departure state machine. It performs no I/O.
type Machine struct {
	state           State
	sessionID       string
	sessionStart    time.Time
	draft           Manifest
	beforeEmergency Manifest
	pending         *Submission
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State            { return m.state }
func (m *Machine) SessionID() string       { return m.sessionID }
func (m *Machine) SessionStart() time.Time { return m.sessionStart }

// Draft returns a copy of the manifest being collected.
func (m *Machine) Draft() Manifest {
	d := m.draft
	if d.Reason != nil {
		r := *d.Reason
		d.Reason = &r
	}
	return d
}

func (m *Machine) Pending() (Submission, bool) {
	if m.pending == nil {
		return Submission{}, false
	}
	return *m.pending, true
}

func (m *Machine) Collect(sessionID string, start time.Time) error {
	if m.state != StateIdle {
		return m.transitionErr(StateCollecting)
	}
	m.state = StateCollecting
	m.sessionID = sessionID
	m.sessionStart = start
	m.draft = Manifest{}
	m.beforeEmergency = Manifest{}
	return nil
}

func (m *Machine) UpdateDraft(reason *Reason, statement string) error {
	if m.state != StateCollecting {
		return m.transitionErr(StateCollecting)
	}
	if m.draft.IsEmergency {
		return fmt.Errorf("%w: manifest is locked while emergency is set", apperrors.ErrInvalidTransition)
	}
	m.draft.Reason = reason
	m.draft.Statement = statement
	return nil
}

// SetEmergency toggles the bypass. Turning it off restores the draft that was
// in place before it was turned on.
func (m *Machine) SetEmergency(on bool) error {
	if m.state != StateCollecting {
		return m.transitionErr(StateCollecting)
	}
	if on == m.draft.IsEmergency {
		return nil
	}
	if on {
		m.beforeEmergency = m.draft
		r := ReasonEmergency
		m.draft = Manifest{Reason: &r, Statement: EmergencyStatement, IsEmergency: true}
		return nil
	}
	m.draft = m.beforeEmergency
	m.beforeEmergency = Manifest{}
	return nil
}

// BeginSubmit freezes the draft into sub and moves to Submitting. Call it
// only after CanSubmit holds.
func (m *Machine) BeginSubmit(sub Submission) error {
	if m.state != StateCollecting {
		return m.transitionErr(StateSubmitting)
	}
	if problems := m.draft.Problems(); len(problems) > 0 {
		return &apperrors.ValidationError{Fields: problems}
	}
	m.pending = &sub
	m.state = StateSubmitting
	return nil
}

// Resume restores a submission frozen by an earlier run. The workflow goes
// straight to Submitting; both writes are attempted again under the same IDs.
func (m *Machine) Resume(sessionID string, start time.Time, sub Submission) error {
	if m.state != StateIdle {
		return m.transitionErr(StateSubmitting)
	}
	r := sub.Reason
	sub.AuditWritten = false
	sub.Archived = false
	m.state = StateSubmitting
	m.sessionID = sessionID
	m.sessionStart = start
	m.draft = Manifest{Reason: &r, Statement: sub.Statement, IsEmergency: sub.IsEmergency}
	m.beforeEmergency = Manifest{}
	m.pending = &sub
	return nil
}

func (m *Machine) MarkAuditWritten() {
	if m.pending != nil {
		m.pending.AuditWritten = true
	}
}

func (m *Machine) MarkArchived() {
	if m.pending != nil {
		m.pending.Archived = true
	}
}

// Settle moves Submitting to Done once both writes are recorded.
func (m *Machine) Settle() error {
	if m.state != StateSubmitting || m.pending == nil || !m.pending.Complete() {
		return m.transitionErr(StateDone)
	}
	m.state = StateDone
	return nil
}

// Finish resets a Done workflow to Idle once the completion hook has run.
func (m *Machine) Finish() error {
	if m.state != StateDone {
		return m.transitionErr(StateIdle)
	}
	m.reset()
	return nil
}

// Cancel discards the draft. Only a collecting workflow can be cancelled.
func (m *Machine) Cancel() error {
	if m.state != StateCollecting {
		return m.transitionErr(StateIdle)
	}
	m.reset()
	return nil
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.sessionID = ""
	m.sessionStart = time.Time{}
	m.draft = Manifest{}
	m.beforeEmergency = Manifest{}
	m.pending = nil
}

func (m *Machine) transitionErr(to State) error {
	return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, m.state, to)
}
