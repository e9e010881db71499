package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"shiftwatch/internal/modules/departure/domain"
	depdto "shiftwatch/internal/modules/departure/dto"
	depin "shiftwatch/internal/modules/departure/port/in"
	depout "shiftwatch/internal/modules/departure/port/out"
	"shiftwatch/internal/platform/clock"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/id"
)

const statementKind = "DEPARTURE_STATEMENT"

type Deps struct {
	Clock   clock.Clock
	IDs     id.Generator
	Audit   depout.AuditRecorder
	Drift   depout.DriftCounter
	Archive depout.MessageArchive
	Tasks   depout.TaskStats
	Holding depout.HoldingCounter
	Pending depout.PendingStore
	Logger  *zap.Logger
}

// Interactor serializes every transition of one departure workflow.
type Interactor struct {
	deps    Deps
	logger  *zap.Logger
	mu      sync.Mutex
	machine *domain.Machine
	onDone  func(ctx context.Context) error
}

func NewInteractor(deps Deps) depin.Usecase {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{deps: deps, logger: logger, machine: domain.NewMachine()}
}

func (i *Interactor) Begin(ctx context.Context, input depdto.BeginInput) (depdto.BeginOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if input.SessionID == "" {
		return depdto.BeginOutput{}, fmt.Errorf("%w: session id is required", apperrors.ErrInvalidInput)
	}
	if i.machine.State() != domain.StateIdle {
		if i.machine.SessionID() != input.SessionID {
			return depdto.BeginOutput{}, fmt.Errorf("%w: departure already in progress for %s", apperrors.ErrInvalidTransition, i.machine.SessionID())
		}
		return depdto.BeginOutput{Required: true, State: i.stateLocked()}, nil
	}
	resumed, err := i.resumePending(ctx, input)
	if err != nil {
		return depdto.BeginOutput{}, err
	}
	if resumed {
		i.onDone = input.OnDone
		return depdto.BeginOutput{Required: true, State: i.stateLocked()}, nil
	}
	if !domain.IsEarly(input.Elapsed, input.ShiftDuration) {
		return depdto.BeginOutput{Required: false, State: i.stateLocked()}, nil
	}
	if err := i.machine.Collect(input.SessionID, input.SessionStart); err != nil {
		return depdto.BeginOutput{}, err
	}
	i.onDone = input.OnDone
	i.logger.Info("early departure requested",
		zap.String("session_id", input.SessionID),
		zap.Duration("elapsed", input.Elapsed),
		zap.Duration("shift_duration", input.ShiftDuration))
	return depdto.BeginOutput{Required: true, State: i.stateLocked()}, nil
}

func (i *Interactor) UpdateDraft(_ context.Context, input depdto.DraftInput) (depdto.StateOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	var reason *domain.Reason
	if input.Reason != "" {
		r, err := domain.ParseReason(input.Reason)
		if err != nil {
			return i.stateLocked(), err
		}
		reason = &r
	}
	if err := i.machine.UpdateDraft(reason, input.Statement); err != nil {
		return i.stateLocked(), err
	}
	return i.stateLocked(), nil
}

func (i *Interactor) SetEmergency(_ context.Context, on bool) (depdto.StateOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.machine.SetEmergency(on); err != nil {
		return i.stateLocked(), err
	}
	if on {
		i.logger.Warn("emergency departure armed", zap.String("session_id", i.machine.SessionID()))
	}
	return i.stateLocked(), nil
}

// Submit drives the workflow as far as it can go. It is safe to call again
// after a persistence error: writes that already succeeded are not repeated
// and the draft is kept.
func (i *Interactor) Submit(ctx context.Context) (depdto.SubmitOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.machine.State() {
	case domain.StateIdle:
		return depdto.SubmitOutput{}, fmt.Errorf("%w: no departure in progress", apperrors.ErrInvalidTransition)
	case domain.StateCollecting:
		draft := i.machine.Draft()
		if problems := draft.Problems(); len(problems) > 0 {
			return depdto.SubmitOutput{State: i.stateLocked()}, &apperrors.ValidationError{Fields: problems}
		}
		sub := i.prepare(ctx, draft)
		if err := i.savePending(ctx, sub); err != nil {
			return depdto.SubmitOutput{State: i.stateLocked()}, err
		}
		if err := i.machine.BeginSubmit(sub); err != nil {
			return depdto.SubmitOutput{State: i.stateLocked()}, err
		}
	}

	if i.machine.State() == domain.StateSubmitting {
		if err := i.write(ctx); err != nil {
			return i.submitOutputLocked(), err
		}
		if err := i.machine.Settle(); err != nil {
			return i.submitOutputLocked(), err
		}
	}

	out := i.submitOutputLocked()
	if i.onDone != nil {
		if err := i.onDone(ctx); err != nil {
			i.logger.Error("departure recorded but session close failed",
				zap.String("session_id", i.machine.SessionID()), zap.Error(err))
			return out, err
		}
	}
	sessionID := i.machine.SessionID()
	if err := i.machine.Finish(); err != nil {
		return out, err
	}
	i.onDone = nil
	i.clearPending(ctx, sessionID)
	i.logger.Info("departure complete", zap.String("session_id", sessionID), zap.String("audit_id", out.AuditID))
	out.State = i.stateLocked()
	return out, nil
}

func (i *Interactor) Cancel(_ context.Context) (depdto.StateOutput, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	sessionID := i.machine.SessionID()
	if err := i.machine.Cancel(); err != nil {
		return i.stateLocked(), err
	}
	i.onDone = nil
	i.logger.Info("departure cancelled", zap.String("session_id", sessionID))
	return i.stateLocked(), nil
}

func (i *Interactor) State(_ context.Context) depdto.StateOutput {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stateLocked()
}

func (i *Interactor) prepare(ctx context.Context, draft domain.Manifest) domain.Submission {
	info := i.gatherContext(ctx)
	reason := domain.ReasonEmergency
	if draft.Reason != nil {
		reason = *draft.Reason
	}
	return domain.Submission{
		AuditID:     i.deps.IDs.New(),
		At:          i.deps.Clock.Now(),
		Reason:      reason,
		Statement:   draft.Statement,
		Details:     domain.ComposeDetails(draft, info),
		IsEmergency: draft.IsEmergency,
	}
}

// resumePending picks up a submission an earlier run froze for this session
// but never finished.
func (i *Interactor) resumePending(ctx context.Context, input depdto.BeginInput) (bool, error) {
	if i.deps.Pending == nil {
		return false, nil
	}
	p, err := i.deps.Pending.Load(ctx, input.SessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Persistence("load pending departure", err)
	}
	reason, err := domain.ParseReason(p.Reason)
	if err != nil {
		return false, fmt.Errorf("pending departure %s: %w", p.AuditID, err)
	}
	sub := domain.Submission{
		AuditID:     p.AuditID,
		At:          p.At,
		Reason:      reason,
		Statement:   p.Statement,
		Details:     p.Details,
		IsEmergency: p.IsEmergency,
	}
	if err := i.machine.Resume(p.SessionID, p.SessionStart, sub); err != nil {
		return false, err
	}
	i.logger.Warn("resuming unfinished departure",
		zap.String("session_id", p.SessionID),
		zap.String("audit_id", p.AuditID))
	return true, nil
}

func (i *Interactor) savePending(ctx context.Context, sub domain.Submission) error {
	if i.deps.Pending == nil {
		return nil
	}
	err := i.deps.Pending.Save(ctx, depout.PendingSubmission{
		SessionID:    i.machine.SessionID(),
		SessionStart: i.machine.SessionStart(),
		AuditID:      sub.AuditID,
		At:           sub.At,
		Reason:       string(sub.Reason),
		Statement:    sub.Statement,
		Details:      sub.Details,
		IsEmergency:  sub.IsEmergency,
	})
	if err != nil {
		return apperrors.Persistence("save pending departure", err)
	}
	return nil
}

// clearPending is best effort; it runs after the session is already closed.
func (i *Interactor) clearPending(ctx context.Context, sessionID string) {
	if i.deps.Pending == nil {
		return
	}
	if err := i.deps.Pending.Clear(ctx, sessionID); err != nil {
		i.logger.Warn("clear pending departure", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// gatherContext never fails: a lookup that errors is reported as n/a in the
// details rather than blocking the exit record.
func (i *Interactor) gatherContext(ctx context.Context) domain.Context {
	info := domain.Context{Unavailable: map[string]bool{}}
	if i.deps.Drift != nil {
		n, err := i.deps.Drift.DriftEventsSince(ctx, i.machine.SessionStart())
		if err != nil {
			i.logger.Warn("drift lookup failed", zap.Error(err))
			info.Unavailable[domain.ContextDrift] = true
		}
		info.DriftEvents = n
	} else {
		info.Unavailable[domain.ContextDrift] = true
	}
	if i.deps.Tasks != nil {
		completed, total, err := i.deps.Tasks.TaskCounts(ctx)
		if err != nil {
			i.logger.Warn("task stats lookup failed", zap.Error(err))
			info.Unavailable[domain.ContextEfficiency] = true
		}
		info.EfficiencyPct = domain.Efficiency(completed, total)
	} else {
		info.Unavailable[domain.ContextEfficiency] = true
	}
	if i.deps.Holding != nil {
		n, err := i.deps.Holding.UnarchivedHoldingItems(ctx)
		if err != nil {
			i.logger.Warn("holding lookup failed", zap.Error(err))
			info.Unavailable[domain.ContextHolding] = true
		}
		info.HoldingItems = n
	} else {
		info.Unavailable[domain.ContextHolding] = true
	}
	return info
}

func (i *Interactor) write(ctx context.Context) error {
	sub, _ := i.machine.Pending()
	var auditErr, archiveErr error
	if !sub.AuditWritten {
		auditErr = i.deps.Audit.RecordEarlyExit(ctx, depout.EarlyExitRecord{
			ID:         sub.AuditID,
			At:         sub.At,
			ReasonCode: string(sub.Reason),
			Details:    sub.Details,
		})
		if auditErr == nil {
			i.machine.MarkAuditWritten()
		}
	}
	if !sub.Archived {
		archiveErr = i.deps.Archive.Archive(ctx, depout.Message{
			ID:        sub.AuditID,
			SessionID: i.machine.SessionID(),
			Kind:      statementKind,
			Content:   sub.Statement,
			CreatedAt: sub.At,
		})
		if archiveErr == nil {
			i.machine.MarkArchived()
		}
	}
	if auditErr == nil && archiveErr == nil {
		return nil
	}
	now, _ := i.machine.Pending()
	if now.AuditWritten != now.Archived {
		i.logger.Warn("departure partially written",
			zap.String("audit_id", now.AuditID),
			zap.Bool("audit_written", now.AuditWritten),
			zap.Bool("archived", now.Archived))
	}
	if auditErr != nil {
		return apperrors.Persistence("record early exit", auditErr)
	}
	return apperrors.Persistence("archive departure statement", archiveErr)
}

func (i *Interactor) stateLocked() depdto.StateOutput {
	draft := i.machine.Draft()
	out := depdto.StateOutput{
		State:       string(i.machine.State()),
		SessionID:   i.machine.SessionID(),
		Statement:   draft.Statement,
		IsEmergency: draft.IsEmergency,
		CanSubmit:   i.machine.State() == domain.StateCollecting && draft.CanSubmit(),
		Problems:    draft.Problems(),
	}
	if draft.Reason != nil {
		out.Reason = string(*draft.Reason)
	}
	if i.machine.State() == domain.StateIdle {
		out.Problems = nil
	}
	return out
}

func (i *Interactor) submitOutputLocked() depdto.SubmitOutput {
	sub, _ := i.machine.Pending()
	return depdto.SubmitOutput{AuditID: sub.AuditID, Details: sub.Details, State: i.stateLocked()}
}
