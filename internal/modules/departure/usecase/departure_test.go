package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"shiftwatch/internal/modules/departure/domain"
	depdto "shiftwatch/internal/modules/departure/dto"
	depin "shiftwatch/internal/modules/departure/port/in"
	depout "shiftwatch/internal/modules/departure/port/out"
	"shiftwatch/internal/modules/departure/usecase"
	apperrors "shiftwatch/internal/platform/errors"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqID struct {
	mu sync.Mutex
	n  int
}

func (s *seqID) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("exit-%d", s.n)
}

type recorder struct {
	mu      sync.Mutex
	fail    int
	records []depout.EarlyExitRecord
	drift   int
}

func (r *recorder) RecordEarlyExit(_ context.Context, rec depout.EarlyExitRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("disk I/O error")
	}
	for _, have := range r.records {
		if have.ID == rec.ID {
			return nil
		}
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recorder) DriftEventsSince(context.Context, time.Time) (int, error) {
	return r.drift, nil
}

type archive struct {
	mu   sync.Mutex
	fail int
	msgs []depout.Message
}

func (a *archive) Archive(_ context.Context, msg depout.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail > 0 {
		a.fail--
		return errors.New("database is locked")
	}
	for _, have := range a.msgs {
		if have.ID == msg.ID {
			return nil
		}
	}
	a.msgs = append(a.msgs, msg)
	return nil
}

type stats struct {
	completed, total, holding int
	err                       error
}

func (s stats) TaskCounts(context.Context) (int, int, error) {
	return s.completed, s.total, s.err
}

func (s stats) UnarchivedHoldingItems(context.Context) (int, error) {
	return s.holding, s.err
}

type pendingStore struct {
	mu   sync.Mutex
	rows map[string]depout.PendingSubmission
}

func (p *pendingStore) Save(_ context.Context, sub depout.PendingSubmission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rows[sub.SessionID]; !ok {
		p.rows[sub.SessionID] = sub
	}
	return nil
}

func (p *pendingStore) Load(_ context.Context, sessionID string) (depout.PendingSubmission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.rows[sessionID]
	if !ok {
		return depout.PendingSubmission{}, apperrors.ErrNotFound
	}
	return sub, nil
}

func (p *pendingStore) Clear(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rows, sessionID)
	return nil
}

type harness struct {
	uc      depin.Usecase
	st      stats
	ids     *seqID
	audit   *recorder
	archive *archive
	pending *pendingStore
	closes  int
	hookErr error
}

func newHarness(t *testing.T, st stats) *harness {
	t.Helper()
	h := &harness{
		st:      st,
		ids:     &seqID{},
		audit:   &recorder{drift: 2},
		archive: &archive{},
		pending: &pendingStore{rows: map[string]depout.PendingSubmission{}},
	}
	h.restart(t)
	return h
}

// restart replaces the interactor with a fresh one over the same stores, the
// way a second CLI run would see them.
func (h *harness) restart(t *testing.T) {
	t.Helper()
	h.uc = usecase.NewInteractor(usecase.Deps{
		Clock:   fixedClock{now: t0.Add(5 * time.Hour)},
		IDs:     h.ids,
		Audit:   h.audit,
		Drift:   h.audit,
		Archive: h.archive,
		Tasks:   h.st,
		Holding: h.st,
		Pending: h.pending,
		Logger:  zaptest.NewLogger(t),
	})
}

func (h *harness) begin(t *testing.T, elapsed time.Duration) depdto.BeginOutput {
	t.Helper()
	out, err := h.uc.Begin(context.Background(), depdto.BeginInput{
		SessionID:     "shift-1",
		SessionStart:  t0,
		Elapsed:       elapsed,
		ShiftDuration: 8 * time.Hour,
		OnDone: func(context.Context) error {
			if h.hookErr != nil {
				return h.hookErr
			}
			h.closes++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return out
}

func TestBeginOnlyRequiredWhenEarly(t *testing.T) {
	t.Parallel()
	h := newHarness(t, stats{})
	if out := h.begin(t, 9*time.Hour); out.Required || out.State.State != string(domain.StateIdle) {
		t.Fatalf("late departure must not need a manifest: %+v", out)
	}
	if out := h.begin(t, 8*time.Hour); out.Required {
		t.Fatalf("departure at exactly the threshold is not early: %+v", out)
	}
	if out := h.begin(t, 5*time.Hour); !out.Required || out.State.State != string(domain.StateCollecting) {
		t.Fatalf("early departure must collect a manifest: %+v", out)
	}
}

func TestSubmitRejectsIncompleteManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{})
	h.begin(t, 5*time.Hour)

	_, err := h.uc.Submit(ctx)
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if diff := cmp.Diff([]string{"reason", "statement"}, verr.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}

	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "technical", Statement: "   "}); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if _, err := h.uc.Submit(ctx); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Fatalf("whitespace statement must be rejected, got %v", err)
	}
	if got := h.uc.State(ctx); got.State != string(domain.StateCollecting) || got.CanSubmit {
		t.Fatalf("state must stay collecting: %+v", got)
	}
	if len(h.audit.records) != 0 || len(h.archive.msgs) != 0 || h.closes != 0 {
		t.Fatal("rejected submit must not write anything")
	}
}

func TestSubmitWritesAuditAndArchiveThenCloses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{completed: 2, total: 3, holding: 4})
	h.begin(t, 5*time.Hour)
	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "TECHNICAL", Statement: "VPN down"}); err != nil {
		t.Fatalf("update draft: %v", err)
	}

	out, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	wantDetails := "VPN down | drift_events=2 | efficiency=67% | holding_items=4"
	if out.Details != wantDetails || out.State.State != string(domain.StateIdle) {
		t.Fatalf("unexpected submit output: %+v", out)
	}
	want := []depout.EarlyExitRecord{{ID: out.AuditID, At: t0.Add(5 * time.Hour), ReasonCode: "TECHNICAL", Details: wantDetails}}
	if diff := cmp.Diff(want, h.audit.records); diff != "" {
		t.Fatalf("audit records mismatch (-want +got):\n%s", diff)
	}
	if len(h.archive.msgs) != 1 || h.archive.msgs[0].Content != "VPN down" || h.archive.msgs[0].SessionID != "shift-1" {
		t.Fatalf("unexpected archive: %+v", h.archive.msgs)
	}
	if h.closes != 1 {
		t.Fatalf("expected session close hook once, got %d", h.closes)
	}
}

func TestEmergencyBypassesManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{})
	h.begin(t, time.Hour)
	state, err := h.uc.SetEmergency(ctx, true)
	if err != nil {
		t.Fatalf("set emergency: %v", err)
	}
	if !state.CanSubmit || state.Reason != string(domain.ReasonEmergency) {
		t.Fatalf("emergency must be submittable: %+v", state)
	}
	if _, err := h.uc.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(h.audit.records) != 1 || h.audit.records[0].ReasonCode != "EMERGENCY" {
		t.Fatalf("unexpected records: %+v", h.audit.records)
	}
	if !strings.HasPrefix(h.audit.records[0].Details, domain.EmergencyStatement) {
		t.Fatalf("details must start with the system statement: %q", h.audit.records[0].Details)
	}
	if !strings.Contains(h.audit.records[0].Details, "efficiency=0%") {
		t.Fatalf("no tasks must report zero efficiency: %q", h.audit.records[0].Details)
	}
}

func TestUnavailableContextIsReportedNotFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{err: errors.New("no such table: tasks")})
	h.begin(t, time.Hour)
	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "PERSONAL", Statement: "school pickup"}); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	out, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if want := "school pickup | drift_events=2 | efficiency=n/a | holding_items=n/a"; out.Details != want {
		t.Fatalf("details = %q, want %q", out.Details, want)
	}
}

func TestPartialWriteRetriesOnlyMissingHalf(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{completed: 1, total: 1})
	h.archive.fail = 1
	h.begin(t, 2*time.Hour)
	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "MEDICAL", Statement: "dentist"}); err != nil {
		t.Fatalf("update draft: %v", err)
	}

	first, err := h.uc.Submit(ctx)
	if !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if first.State.State != string(domain.StateSubmitting) || first.State.Statement != "dentist" {
		t.Fatalf("draft must be kept for retry: %+v", first.State)
	}
	if len(h.audit.records) != 1 || len(h.archive.msgs) != 0 || h.closes != 0 {
		t.Fatalf("unexpected writes after partial failure: audit=%d archive=%d closes=%d",
			len(h.audit.records), len(h.archive.msgs), h.closes)
	}
	if _, err := h.uc.Cancel(ctx); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("cancel while submitting must be rejected, got %v", err)
	}

	second, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if second.AuditID != first.AuditID {
		t.Fatalf("retry must reuse audit id %s, got %s", first.AuditID, second.AuditID)
	}
	if len(h.audit.records) != 1 || len(h.archive.msgs) != 1 || h.archive.msgs[0].ID != first.AuditID {
		t.Fatalf("retry must write only the archive half: audit=%+v archive=%+v", h.audit.records, h.archive.msgs)
	}
	if h.closes != 1 {
		t.Fatalf("expected one close, got %d", h.closes)
	}
}

func TestHookFailureRetriesOnlyHook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{})
	h.hookErr = apperrors.Persistence("close session", errors.New("disk full"))
	h.begin(t, time.Hour)
	if _, err := h.uc.SetEmergency(ctx, true); err != nil {
		t.Fatalf("set emergency: %v", err)
	}

	out, err := h.uc.Submit(ctx)
	if !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("expected hook failure, got %v", err)
	}
	if out.State.State != string(domain.StateDone) {
		t.Fatalf("workflow must stay done: %+v", out.State)
	}

	h.hookErr = nil
	if _, err := h.uc.Submit(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(h.audit.records) != 1 || len(h.archive.msgs) != 1 || h.closes != 1 {
		t.Fatalf("writes must not repeat: audit=%d archive=%d closes=%d",
			len(h.audit.records), len(h.archive.msgs), h.closes)
	}
	if got := h.uc.State(ctx); got.State != string(domain.StateIdle) {
		t.Fatalf("expected idle after hook success, got %+v", got)
	}
}

func TestCancelDiscardsDraft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{})
	if _, err := h.uc.Cancel(ctx); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("cancel while idle must be rejected, got %v", err)
	}
	h.begin(t, time.Hour)
	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "OTHER", Statement: "x"}); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	state, err := h.uc.Cancel(ctx)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if state.State != string(domain.StateIdle) || state.Statement != "" || state.Reason != "" {
		t.Fatalf("draft must be discarded: %+v", state)
	}
	if _, err := h.uc.Submit(ctx); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("submit after cancel must be rejected, got %v", err)
	}
	if len(h.audit.records) != 0 || h.closes != 0 {
		t.Fatal("cancel must not write")
	}
	if out := h.begin(t, time.Hour); !out.Required || out.State.Statement != "" {
		t.Fatalf("a new departure must start empty: %+v", out)
	}
}

func TestRerunResumesFrozenSubmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{completed: 1, total: 2})
	h.archive.fail = 1
	h.begin(t, 3*time.Hour)
	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "MEDICAL", Statement: "dentist"}); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	first, err := h.uc.Submit(ctx)
	if !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("expected persistence failure, got %v", err)
	}

	h.restart(t)
	out := h.begin(t, 4*time.Hour)
	if !out.Required || out.State.State != string(domain.StateSubmitting) {
		t.Fatalf("rerun must resume the frozen submission: %+v", out)
	}
	if out.State.Reason != "MEDICAL" || out.State.Statement != "dentist" {
		t.Fatalf("resumed state must carry the frozen manifest: %+v", out.State)
	}
	if _, err := h.uc.UpdateDraft(ctx, depdto.DraftInput{Reason: "OTHER", Statement: "changed"}); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("frozen manifest must not be editable, got %v", err)
	}

	second, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("submit after rerun: %v", err)
	}
	if second.AuditID != first.AuditID || second.Details != first.Details {
		t.Fatalf("rerun must repeat the first submission: first=%+v second=%+v", first, second)
	}
	if len(h.audit.records) != 1 || h.audit.records[0].ID != first.AuditID {
		t.Fatalf("expected one early exit id %s, got %+v", first.AuditID, h.audit.records)
	}
	if len(h.archive.msgs) != 1 || h.archive.msgs[0].ID != first.AuditID {
		t.Fatalf("unexpected archive: %+v", h.archive.msgs)
	}
	if h.closes != 1 {
		t.Fatalf("expected one close, got %d", h.closes)
	}
	if _, err := h.pending.Load(ctx, "shift-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("pending submission must be cleared, got %v", err)
	}
}

func TestHookFailureSurvivesRerun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, stats{})
	h.hookErr = apperrors.Persistence("close session", errors.New("disk full"))
	h.begin(t, time.Hour)
	if _, err := h.uc.SetEmergency(ctx, true); err != nil {
		t.Fatalf("set emergency: %v", err)
	}
	first, err := h.uc.Submit(ctx)
	if !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("expected hook failure, got %v", err)
	}

	h.restart(t)
	h.hookErr = nil
	out := h.begin(t, 2*time.Hour)
	if !out.State.IsEmergency || out.State.State != string(domain.StateSubmitting) {
		t.Fatalf("rerun must resume the emergency submission: %+v", out.State)
	}
	if _, err := h.uc.Submit(ctx); err != nil {
		t.Fatalf("submit after rerun: %v", err)
	}
	if len(h.archive.msgs) != 1 || h.archive.msgs[0].ID != first.AuditID || h.closes != 1 {
		t.Fatalf("writes must not repeat: archive=%+v closes=%d", h.archive.msgs, h.closes)
	}
}
