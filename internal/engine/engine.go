// Package engine is the single owner of shift state. Every state change goes
// through one serialized region, and observers follow along through
// Subscribe instead of polling storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	auditdomain "shiftwatch/internal/modules/audit/domain"
	auditdto "shiftwatch/internal/modules/audit/dto"
	auditin "shiftwatch/internal/modules/audit/port/in"
	depdto "shiftwatch/internal/modules/departure/dto"
	depin "shiftwatch/internal/modules/departure/port/in"
	shiftdto "shiftwatch/internal/modules/shift/dto"
	shiftin "shiftwatch/internal/modules/shift/port/in"
	watchdto "shiftwatch/internal/modules/watch/dto"
	watchin "shiftwatch/internal/modules/watch/port/in"
	"shiftwatch/internal/platform/clock"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/latch"
	"shiftwatch/internal/platform/pubsub"
	"shiftwatch/internal/platform/settings"
	"shiftwatch/internal/platform/tx"
)

const (
	pollInterval = time.Second
	eventBuffer  = 16
)

// ItemsCounter reports how many tasks were finished during a shift.
type ItemsCounter interface {
	CompletedSince(ctx context.Context, since time.Time) (int, error)
}

// SettingsWatcher keeps a settings.Provider current until ctx is done.
type SettingsWatcher interface {
	Watch(ctx context.Context) error
}

type Deps struct {
	Shift     shiftin.Usecase
	Audit     auditin.Usecase
	Departure depin.Usecase
	Watch     watchin.Usecase
	Items     ItemsCounter
	Settings  settings.Provider
	Watcher   SettingsWatcher
	Clock     clock.Clock
	NewTicker clock.TickerFactory
	Logger    *zap.Logger
}

type Engine struct {
	shift     shiftin.Usecase
	audit     auditin.Usecase
	departure depin.Usecase
	watch     watchin.Usecase
	items     ItemsCounter
	settings  settings.Provider
	watcher   SettingsWatcher
	clock     clock.Clock
	newTicker clock.TickerFactory
	logger    *zap.Logger
	tx        tx.Manager
	hub       *pubsub.Hub[Event]

	// base is the context gesture completions run under; it outlives the
	// caller that happened to sample the latch.
	base context.Context
	wg   sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	latches  map[Gesture]*latch.Latch
	waiters  map[Gesture][]chan GestureResult
	hooks    []func(shiftdto.ClosedOutput)
	overtime bool
	// lastClosed carries the close result out of the departure hook.
	lastClosed *shiftdto.ClosedOutput
}

func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	newTicker := deps.NewTicker
	if newTicker == nil {
		newTicker = clock.NewSystemTicker
	}
	return &Engine{
		shift:     deps.Shift,
		audit:     deps.Audit,
		departure: deps.Departure,
		watch:     deps.Watch,
		items:     deps.Items,
		settings:  deps.Settings,
		watcher:   deps.Watcher,
		clock:     clk,
		newTicker: newTicker,
		logger:    logger,
		tx:        tx.NewSerialManager(),
		hub:       pubsub.NewHub[Event](),
		base:      context.Background(),
		latches:   map[Gesture]*latch.Latch{},
		waiters:   map[Gesture][]chan GestureResult{},
	}
}

// OnShiftClosed registers fn to run after every successful close, in
// registration order, inside the engine's write region.
func (e *Engine) OnShiftClosed(fn func(shiftdto.ClosedOutput)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, fn)
}

func (e *Engine) HoldRequired() bool {
	return e.settings.Current().RequiresHoldConfirmation
}

func (e *Engine) StartShift(ctx context.Context) (shiftdto.StartOutput, error) {
	var out shiftdto.StartOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.shift.Start(ctx)
		return err
	})
	if err != nil {
		return shiftdto.StartOutput{}, err
	}
	e.publish(Event{Topic: TopicSessions, Kind: EventShiftStarted, At: out.StartTime})
	return out, nil
}

// DepartureOutcome says whether ending the shift needs a manifest or closed
// the session directly.
type DepartureOutcome struct {
	ManifestRequired bool
	State            depdto.StateOutput
	Closed           *shiftdto.ClosedOutput
}

// RequestDeparture is the end-shift action. When hold confirmation is on it
// is only reachable through the GestureEndShift latch.
func (e *Engine) RequestDeparture(ctx context.Context) (DepartureOutcome, error) {
	if e.HoldRequired() {
		return DepartureOutcome{}, apperrors.ErrHoldRequired
	}
	return e.requestDeparture(ctx)
}

func (e *Engine) requestDeparture(ctx context.Context) (DepartureOutcome, error) {
	var out DepartureOutcome
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		now := e.clock.Now()
		status, err := e.shift.Status(ctx, now)
		if err != nil {
			return err
		}
		if !status.Open {
			return apperrors.ErrNoActiveSession
		}
		sessionID, start := status.SessionID, status.StartTime
		begin, err := e.departure.Begin(ctx, depdto.BeginInput{
			SessionID:     sessionID,
			SessionStart:  start,
			Elapsed:       status.Elapsed,
			ShiftDuration: status.ShiftDuration,
			OnDone: func(ctx context.Context) error {
				return e.closeFromDeparture(ctx, sessionID, start)
			},
		})
		if err != nil {
			return err
		}
		if begin.Required {
			out = DepartureOutcome{ManifestRequired: true, State: begin.State}
			return nil
		}
		closed, err := e.closeSession(ctx, sessionID, start)
		if err != nil {
			return err
		}
		out = DepartureOutcome{State: begin.State, Closed: &closed}
		return nil
	})
	if err != nil {
		return DepartureOutcome{}, err
	}
	if out.ManifestRequired {
		e.publishDeparture(out.State)
	}
	return out, nil
}

func (e *Engine) UpdateDraft(ctx context.Context, reason, statement string) (depdto.StateOutput, error) {
	var out depdto.StateOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.departure.UpdateDraft(ctx, depdto.DraftInput{Reason: reason, Statement: statement})
		return err
	})
	if err == nil {
		e.publishDeparture(out)
	}
	return out, err
}

func (e *Engine) SetEmergency(ctx context.Context, on bool) (depdto.StateOutput, error) {
	var out depdto.StateOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.departure.SetEmergency(ctx, on)
		return err
	})
	if err == nil {
		e.publishDeparture(out)
	}
	return out, err
}

// SubmitResult is the departure submission plus the closed session when the
// submission got that far.
type SubmitResult struct {
	Submit depdto.SubmitOutput
	Closed *shiftdto.ClosedOutput
}

func (e *Engine) SubmitDeparture(ctx context.Context) (SubmitResult, error) {
	var res SubmitResult
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		e.lastClosed = nil
		out, err := e.departure.Submit(ctx)
		res = SubmitResult{Submit: out, Closed: e.lastClosed}
		e.lastClosed = nil
		return err
	})
	e.publishDeparture(res.Submit.State)
	if err != nil {
		if apperrors.IsRetryable(err) {
			e.logger.Warn("departure submit will need a retry", zap.Error(err))
		}
		return res, err
	}
	e.publish(Event{
		Topic: TopicAudit,
		Kind:  EventAuditAppended,
		Audit: &auditdto.EntryOutput{
			ID:      res.Submit.AuditID,
			Kind:    string(auditdomain.KindEarlyExit),
			Details: res.Submit.Details,
		},
	})
	return res, nil
}

func (e *Engine) CancelDeparture(ctx context.Context) (depdto.StateOutput, error) {
	var out depdto.StateOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.departure.Cancel(ctx)
		return err
	})
	if err == nil {
		e.publishDeparture(out)
	}
	return out, err
}

func (e *Engine) DepartureState(ctx context.Context) depdto.StateOutput {
	return e.departure.State(ctx)
}

func (e *Engine) BeginBreak(ctx context.Context, kind string) (watchdto.StatusOutput, error) {
	var out watchdto.StatusOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.watch.Begin(ctx, watchdto.BeginInput{Kind: kind})
		return err
	})
	if err != nil {
		return watchdto.StatusOutput{}, err
	}
	e.publish(Event{Topic: TopicEngine, Kind: EventBreak, Break: &out})
	return out, nil
}

func (e *Engine) BreakStatus(ctx context.Context, now time.Time) (watchdto.StatusOutput, error) {
	return e.watch.Status(ctx, now)
}

// ResumeBreak ends the active break. When hold confirmation is on it is only
// reachable through the GestureResume latch.
func (e *Engine) ResumeBreak(ctx context.Context) (watchdto.ResumeOutput, error) {
	if e.HoldRequired() {
		return watchdto.ResumeOutput{}, apperrors.ErrHoldRequired
	}
	return e.resumeBreak(ctx)
}

func (e *Engine) resumeBreak(ctx context.Context) (watchdto.ResumeOutput, error) {
	var out watchdto.ResumeOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.watch.Resume(ctx)
		return err
	})
	if err != nil {
		return watchdto.ResumeOutput{}, err
	}
	d := out.Duration
	e.publish(Event{
		Topic: TopicAudit,
		Kind:  EventAuditAppended,
		Audit: &auditdto.EntryOutput{
			ID:       out.BreakID,
			Kind:     string(auditdomain.KindSafetyCheck),
			Details:  out.Details,
			Duration: &d,
		},
	})
	e.publish(Event{Topic: TopicEngine, Kind: EventBreak, Break: &watchdto.StatusOutput{}})
	return out, nil
}

// TriggerSOS appends an SOS_BEACON entry. When hold confirmation is on it is
// only reachable through the GestureSOS latch.
func (e *Engine) TriggerSOS(ctx context.Context) (auditdto.EntryOutput, error) {
	if e.HoldRequired() {
		return auditdto.EntryOutput{}, apperrors.ErrHoldRequired
	}
	return e.triggerSOS(ctx)
}

func (e *Engine) triggerSOS(ctx context.Context) (auditdto.EntryOutput, error) {
	details := "SOS beacon fired"
	status, err := e.shift.Status(ctx, e.clock.Now())
	if err == nil && status.Open {
		details = fmt.Sprintf("SOS beacon fired session=%s", status.SessionID)
	}
	return e.record(ctx, auditdto.RecordInput{Kind: string(auditdomain.KindSOSBeacon), Details: details})
}

// RecordEvent appends an entry reported by an outside detector. Only the
// OFFLINE, DRIFT and SECURITY kinds may be recorded this way; the others are
// owned by the workflows that produce them.
func (e *Engine) RecordEvent(ctx context.Context, kind, details string) (auditdto.EntryOutput, error) {
	k, err := auditdomain.ParseKind(kind)
	if err != nil {
		return auditdto.EntryOutput{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	switch k {
	case auditdomain.KindOffline, auditdomain.KindDrift, auditdomain.KindSecurity:
	default:
		return auditdto.EntryOutput{}, fmt.Errorf("%w: %s entries are written by their own workflow", apperrors.ErrInvalidInput, k)
	}
	return e.record(ctx, auditdto.RecordInput{Kind: string(k), Details: details})
}

func (e *Engine) record(ctx context.Context, input auditdto.RecordInput) (auditdto.EntryOutput, error) {
	var out auditdto.EntryOutput
	err := e.tx.Within(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.audit.Record(ctx, input)
		return err
	})
	if err != nil {
		return auditdto.EntryOutput{}, err
	}
	e.publish(Event{Topic: TopicAudit, Kind: EventAuditAppended, At: out.Timestamp, Audit: &out})
	return out, nil
}

// Snapshot reads the current state. Overtime is recomputed from the current
// settings on every call.
func (e *Engine) Snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	status, err := e.shift.Status(ctx, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("shift status: %w", err)
	}
	brk, err := e.watch.Status(ctx, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("break status: %w", err)
	}
	return Snapshot{
		At:           now,
		Shift:        status,
		Break:        brk,
		Departure:    e.departure.State(ctx),
		HoldRequired: e.HoldRequired(),
		Gestures:     e.gestureProgress(now),
	}, nil
}

// Run drives the poll loop and, when configured, the settings watcher until
// ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.resumeOpenSession(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.poll(ctx)
	})
	if e.watcher != nil {
		g.Go(func() error {
			return e.watcher.Watch(ctx)
		})
	}
	return g.Wait()
}

// resumeOpenSession logs a session left open by an earlier process. It keeps
// running; there is no timeout.
func (e *Engine) resumeOpenSession(ctx context.Context) {
	current, err := e.shift.Current(ctx)
	switch {
	case errors.Is(err, apperrors.ErrNoActiveSession):
		return
	case err != nil:
		e.logger.Warn("look up open session", zap.Error(err))
		return
	}
	e.logger.Info("resuming open session",
		zap.String("session_id", current.SessionID),
		zap.Time("start_time", current.StartTime),
	)
}

func (e *Engine) poll(ctx context.Context) error {
	ticker := e.newTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			e.Tick(ctx)
		}
	}
}

// Tick publishes one snapshot. Run calls it every second; tests call it directly.
func (e *Engine) Tick(ctx context.Context) {
	now := e.clock.Now()
	snap, err := e.Snapshot(ctx, now)
	if err != nil {
		e.logger.Warn("poll snapshot failed", zap.Error(err))
		e.publish(Event{Topic: TopicEngine, Kind: EventError, At: now, Err: err})
		return
	}
	e.noteOvertime(snap.Shift)
	e.publish(Event{Topic: TopicEngine, Kind: EventTick, At: now, Snapshot: &snap})
}

func (e *Engine) noteOvertime(status shiftdto.StatusOutput) {
	e.mu.Lock()
	changed := status.Overtime != e.overtime
	e.overtime = status.Overtime
	e.mu.Unlock()
	if !changed {
		return
	}
	if status.Overtime {
		e.logger.Info("shift entered overtime", zap.String("session_id", status.SessionID), zap.Duration("elapsed", status.Elapsed))
		return
	}
	e.logger.Info("shift no longer in overtime", zap.String("session_id", status.SessionID))
}

// Close waits for in-flight gesture actions and ends every subscription.
// Holds still waiting on a latch return ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for g, l := range e.latches {
		l.Release()
		delete(e.latches, g)
	}
	for g, ws := range e.waiters {
		for _, w := range ws {
			w <- GestureResult{Gesture: g, Err: ErrClosed}
		}
		delete(e.waiters, g)
	}
	e.mu.Unlock()
	e.wg.Wait()
	e.hub.Close()
}

func (e *Engine) closeSession(ctx context.Context, sessionID string, start time.Time) (shiftdto.ClosedOutput, error) {
	items := 0
	if e.items != nil {
		n, err := e.items.CompletedSince(ctx, start)
		if err != nil {
			e.logger.Warn("items completed unavailable", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			items = n
		}
	}
	closed, err := e.shift.Close(ctx, shiftdto.CloseInput{SessionID: sessionID, ItemsCompleted: items})
	if err != nil {
		return shiftdto.ClosedOutput{}, err
	}
	e.mu.Lock()
	hooks := slices.Clone(e.hooks)
	e.mu.Unlock()
	for _, fn := range hooks {
		fn(closed)
	}
	e.publish(Event{Topic: TopicSessions, Kind: EventShiftClosed, At: closed.EndTime, Closed: &closed})
	return closed, nil
}

// closeFromDeparture is the departure completion hook. A session that is
// already closed counts as done so the workflow cannot get stuck.
func (e *Engine) closeFromDeparture(ctx context.Context, sessionID string, start time.Time) error {
	closed, err := e.closeSession(ctx, sessionID, start)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoSuchOpenSession) {
			e.logger.Warn("departure finished for a session that is no longer open", zap.String("session_id", sessionID))
			return nil
		}
		return err
	}
	e.lastClosed = &closed
	return nil
}

func (e *Engine) publishDeparture(state depdto.StateOutput) {
	e.publish(Event{Topic: TopicEngine, Kind: EventDeparture, Departure: &state})
}
