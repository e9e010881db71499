package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"shiftwatch/internal/bootstrap"
	"shiftwatch/internal/engine"
	shiftdto "shiftwatch/internal/modules/shift/dto"
	"shiftwatch/internal/platform/clock"
	"shiftwatch/internal/platform/config"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/settings"
	"shiftwatch/internal/platform/sqlitedb"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// mutableSettings stands in for a hot-reloaded settings file.
type mutableSettings struct {
	mu  sync.Mutex
	cur settings.Settings
}

func (m *mutableSettings) Current() settings.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *mutableSettings) Update(fn func(*settings.Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.cur)
}

type fakeTicker struct{ c chan time.Time }

func (f fakeTicker) C() <-chan time.Time { return f.c }
func (f fakeTicker) Stop()               {}

func newApp(t *testing.T, clk clock.Clock, provider settings.Provider, newTicker clock.TickerFactory) *bootstrap.App {
	t.Helper()
	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return newAppIn(t, cfg, clk, provider, newTicker)
}

func newAppIn(t *testing.T, cfg config.Config, clk clock.Clock, provider settings.Provider, newTicker clock.TickerFactory) *bootstrap.App {
	t.Helper()
	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{
		Clock:     clk,
		NewTicker: newTicker,
		Settings:  provider,
		Logger:    zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() {
		if err := app.Close(); err != nil {
			t.Errorf("close app: %v", err)
		}
	})
	return app
}

func noHold(rate float64) settings.Static {
	cfg := settings.Defaults()
	cfg.HourlyRate = rate
	cfg.RequiresHoldConfirmation = false
	return settings.Static(cfg)
}

func auditCount(t *testing.T, app *bootstrap.App, kinds ...string) int {
	t.Helper()
	entries, err := app.AuditCLI.Tail(context.Background(), kinds, time.Time{}, 1000)
	if err != nil {
		t.Fatalf("tail audit: %v", err)
	}
	return len(entries)
}

func shiftOpen(t *testing.T, eng *engine.Engine) bool {
	t.Helper()
	snap, err := eng.Snapshot(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap.Shift.Open
}

func waitFor(t *testing.T, events <-chan engine.Event, kind engine.EventKind) engine.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestEarlyDepartureRequiresManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &manualClock{now: t0}
	app := newApp(t, clk, noHold(20), nil)
	eng := app.Engine

	var hooked []shiftdto.ClosedOutput
	eng.OnShiftClosed(func(c shiftdto.ClosedOutput) { hooked = append(hooked, c) })

	start, err := eng.StartShift(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Set(t0.Add(5 * time.Hour))
	out, err := eng.RequestDeparture(ctx)
	if err != nil {
		t.Fatalf("request departure: %v", err)
	}
	if !out.ManifestRequired || out.Closed != nil {
		t.Fatalf("early departure must ask for a manifest: %+v", out)
	}
	if _, err := eng.SubmitDeparture(ctx); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Fatalf("empty manifest must be rejected, got %v", err)
	}
	if _, err := eng.UpdateDraft(ctx, "PERSONAL", "doctor"); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	res, err := eng.SubmitDeparture(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Closed == nil || res.Closed.SessionID != start.SessionID {
		t.Fatalf("submit must close the session: %+v", res)
	}
	if res.Closed.Earnings != 100 {
		t.Fatalf("earnings = %v, want 100", res.Closed.Earnings)
	}
	if n := auditCount(t, app, "EARLY_EXIT"); n != 1 {
		t.Fatalf("expected exactly one EARLY_EXIT entry, got %d", n)
	}
	if len(hooked) != 1 || hooked[0].DurationSeconds != 5*3600 {
		t.Fatalf("session closed hook payload: %+v", hooked)
	}
	if shiftOpen(t, eng) {
		t.Fatal("expected no open session")
	}
	if state := eng.DepartureState(ctx); state.State != "IDLE" {
		t.Fatalf("workflow must be idle again: %+v", state)
	}
}

func TestLateDepartureClosesDirectly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &manualClock{now: t0}
	app := newApp(t, clk, noHold(20), nil)

	if _, err := app.Engine.StartShift(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Set(t0.Add(9 * time.Hour))
	snap, err := app.Engine.Snapshot(ctx, clk.Now())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Shift.Overtime {
		t.Fatal("9h into an 8h shift must be overtime")
	}
	out, err := app.Engine.RequestDeparture(ctx)
	if err != nil {
		t.Fatalf("request departure: %v", err)
	}
	if out.ManifestRequired || out.Closed == nil || out.Closed.Earnings != 180 {
		t.Fatalf("late departure must close directly: %+v", out)
	}
	if n := auditCount(t, app); n != 0 {
		t.Fatalf("late departure must not write audit entries, got %d", n)
	}
	snap, err = app.Engine.Snapshot(ctx, clk.Now())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Shift.Open || snap.Shift.Overtime {
		t.Fatalf("overtime must be false with no open session: %+v", snap.Shift)
	}
}

func TestConcurrentStartShiftAdmitsOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	app := newApp(t, &manualClock{now: t0}, noHold(0), nil)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dupe int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := app.Engine.StartShift(ctx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrSessionAlreadyOpen):
				dupe++
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || dupe != workers-1 {
		t.Fatalf("expected one winner, got ok=%d dupe=%d", ok, dupe)
	}
}

func TestOvertimeFollowsSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &manualClock{now: t0}
	cfg := settings.Defaults()
	cfg.RequiresHoldConfirmation = false
	provider := &mutableSettings{cur: cfg}
	app := newApp(t, clk, provider, nil)

	if _, err := app.Engine.StartShift(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Set(t0.Add(9 * time.Hour))
	snap, err := app.Engine.Snapshot(ctx, clk.Now())
	if err != nil || !snap.Shift.Overtime {
		t.Fatalf("expected overtime, got %+v err=%v", snap.Shift, err)
	}
	provider.Update(func(s *settings.Settings) { s.ShiftDurationHours = 10 })
	snap, err = app.Engine.Snapshot(ctx, clk.Now())
	if err != nil || snap.Shift.Overtime {
		t.Fatalf("raising the threshold must clear overtime, got %+v err=%v", snap.Shift, err)
	}
}

func TestHoldGatesEndShift(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := &manualClock{now: t0}
	cfg := settings.Defaults()
	app := newApp(t, clk, settings.Static(cfg), nil)
	eng := app.Engine
	events := eng.Subscribe(ctx, engine.TopicEngine)

	if _, err := eng.StartShift(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Set(t0.Add(9 * time.Hour))
	if _, err := eng.RequestDeparture(ctx); !errors.Is(err, apperrors.ErrHoldRequired) {
		t.Fatalf("direct end must need a hold, got %v", err)
	}

	press := clk.Now()
	eng.Arm(engine.GestureEndShift, press)
	if got := eng.Sample(engine.GestureEndShift, press.Add(1500*time.Millisecond)); got != 0.5 {
		t.Fatalf("progress = %v, want 0.5", got)
	}
	eng.Release(engine.GestureEndShift)
	if got := eng.Sample(engine.GestureEndShift, press.Add(5*time.Second)); got != 0 {
		t.Fatalf("released gesture must not progress, got %v", got)
	}
	if !shiftOpen(t, eng) {
		t.Fatal("release must not close the session")
	}

	eng.Arm(engine.GestureEndShift, press)
	if got := eng.Sample(engine.GestureEndShift, press.Add(3*time.Second)); got != 1 {
		t.Fatalf("progress = %v, want 1", got)
	}
	done := waitFor(t, events, engine.EventGestureDone)
	if done.Err != nil || done.Result == nil || done.Result.Departure == nil || done.Result.Departure.Closed == nil {
		t.Fatalf("end-shift gesture must close the session: %+v", done)
	}
	if shiftOpen(t, eng) {
		t.Fatal("expected no open session")
	}
}

func TestHoldCancelledWritesNothing(t *testing.T) {
	t.Parallel()
	clk := &manualClock{now: t0}
	app := newApp(t, clk, settings.Static(settings.Defaults()), nil)
	if _, err := app.Engine.BeginBreak(context.Background(), "galley"); err != nil {
		t.Fatalf("begin break: %v", err)
	}
	if _, err := app.Engine.ResumeBreak(context.Background()); !errors.Is(err, apperrors.ErrHoldRequired) {
		t.Fatalf("direct resume must need a hold, got %v", err)
	}

	// The clock never moves, so the press cannot complete before ctx ends.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := app.Engine.Hold(ctx, engine.GestureResume); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if n := auditCount(t, app); n != 0 {
		t.Fatalf("cancelled hold must not write, got %d entries", n)
	}
	status, err := app.Engine.BreakStatus(context.Background(), clk.Now())
	if err != nil || !status.OnBreak {
		t.Fatalf("break must still be active: %+v err=%v", status, err)
	}
}

func TestHoldFailsOnceEngineClosed(t *testing.T) {
	t.Parallel()
	clk := &manualClock{now: t0}
	app := newApp(t, clk, settings.Static(settings.Defaults()), nil)
	if _, err := app.Engine.BeginBreak(context.Background(), "galley"); err != nil {
		t.Fatalf("begin break: %v", err)
	}

	// The clock never moves, so only Close can end this press.
	pending := make(chan error, 1)
	go func() {
		_, err := app.Engine.Hold(context.Background(), engine.GestureResume)
		pending <- err
	}()
	time.Sleep(50 * time.Millisecond)
	app.Engine.Close()
	select {
	case err := <-pending:
		if !errors.Is(err, engine.ErrClosed) {
			t.Fatalf("in-flight hold: expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight hold did not return after Close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := app.Engine.Hold(ctx, engine.GestureEndShift); !errors.Is(err, engine.ErrClosed) {
		t.Fatalf("hold after close: expected ErrClosed, got %v", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Fatalf("hold after close waited %s", waited)
	}
	if n := auditCount(t, app, "SAFETY_CHECK"); n != 0 {
		t.Fatalf("closed engine must not write, got %d entries", n)
	}
}

func TestHoldWithoutConfirmationRunsAtOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &manualClock{now: t0}
	app := newApp(t, clk, noHold(0), nil)
	if _, err := app.Engine.BeginBreak(ctx, "shore-leave"); err != nil {
		t.Fatalf("begin break: %v", err)
	}
	clk.Set(t0.Add(10 * time.Minute))
	res, err := app.Engine.Hold(ctx, engine.GestureResume)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if res.Resume == nil || res.Resume.Details != "SHORE_LEAVE duration=600" {
		t.Fatalf("unexpected resume: %+v", res)
	}
	if n := auditCount(t, app, "SAFETY_CHECK"); n != 1 {
		t.Fatalf("expected one SAFETY_CHECK, got %d", n)
	}

	sos, err := app.Engine.Hold(ctx, engine.GestureSOS)
	if err != nil || sos.SOS == nil || sos.SOS.Kind != "SOS_BEACON" {
		t.Fatalf("sos gesture: %+v err=%v", sos, err)
	}
}

func TestRecordEventOnlyAcceptsDetectorKinds(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app := newApp(t, &manualClock{now: t0}, noHold(0), nil)
	events := app.Engine.Subscribe(ctx, engine.TopicAudit)

	if _, err := app.Engine.RecordEvent(ctx, "early-exit", "forged"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("EARLY_EXIT must be rejected, got %v", err)
	}
	if _, err := app.Engine.RecordEvent(ctx, "teleport", "x"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("unknown kind must be rejected, got %v", err)
	}
	out, err := app.Engine.RecordEvent(ctx, "drift", "window unfocused for 5m")
	if err != nil {
		t.Fatalf("record drift: %v", err)
	}
	ev := waitFor(t, events, engine.EventAuditAppended)
	if ev.Audit == nil || ev.Audit.ID != out.ID || ev.Audit.Kind != "DRIFT" {
		t.Fatalf("unexpected audit event: %+v", ev)
	}
}

func TestRunPublishesTicks(t *testing.T) {
	t.Parallel()
	ticks := make(chan time.Time)
	clk := &manualClock{now: t0}
	app := newApp(t, clk, noHold(0), func(time.Duration) clock.Ticker { return fakeTicker{c: ticks} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := app.Engine.Subscribe(ctx, engine.TopicEngine)
	if _, err := app.Engine.StartShift(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- app.Engine.Run(ctx) }()
	clk.Set(t0.Add(9 * time.Hour))
	ticks <- clk.Now()

	ev := waitFor(t, events, engine.EventTick)
	if ev.Snapshot == nil || !ev.Snapshot.Shift.Open || !ev.Snapshot.Shift.Overtime {
		t.Fatalf("tick must carry an overtime snapshot: %+v", ev.Snapshot)
	}
	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRerunAfterPartialWriteKeepsOneEarlyExit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &manualClock{now: t0}
	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	first, err := bootstrap.New(ctx, cfg, bootstrap.Options{Clock: clk, Settings: noHold(20), Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("bootstrap first run: %v", err)
	}
	raw, err := sqlitedb.Open(ctx, cfg.DBPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	if _, err := raw.ExecContext(ctx, `
CREATE TRIGGER bottles_offline BEFORE INSERT ON bottles
BEGIN SELECT RAISE(ABORT, 'archive offline'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := first.Engine.StartShift(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Set(t0.Add(5 * time.Hour))
	if _, err := first.Engine.RequestDeparture(ctx); err != nil {
		t.Fatalf("request departure: %v", err)
	}
	if _, err := first.Engine.UpdateDraft(ctx, "medical", "dentist"); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if _, err := first.Engine.SubmitDeparture(ctx); !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("expected archive failure, got %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first run: %v", err)
	}
	if _, err := raw.ExecContext(ctx, `DROP TRIGGER bottles_offline`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}

	clk.Set(t0.Add(5*time.Hour + 10*time.Minute))
	second := newAppIn(t, cfg, clk, noHold(20), nil)
	out, err := second.Engine.RequestDeparture(ctx)
	if err != nil {
		t.Fatalf("request departure on rerun: %v", err)
	}
	if !out.ManifestRequired || out.State.State != "SUBMITTING" || out.State.Statement != "dentist" {
		t.Fatalf("rerun must resume the frozen submission: %+v", out)
	}
	res, err := second.Engine.SubmitDeparture(ctx)
	if err != nil {
		t.Fatalf("submit on rerun: %v", err)
	}
	if res.Closed == nil {
		t.Fatal("submit on rerun must close the session")
	}
	if n := auditCount(t, second, "EARLY_EXIT"); n != 1 {
		t.Fatalf("expected one EARLY_EXIT entry, got %d", n)
	}
	if shiftOpen(t, second.Engine) {
		t.Fatal("expected no open session")
	}
}
