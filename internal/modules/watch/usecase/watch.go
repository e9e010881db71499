package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shiftwatch/internal/modules/watch/domain"
	watchdto "shiftwatch/internal/modules/watch/dto"
	watchin "shiftwatch/internal/modules/watch/port/in"
	watchout "shiftwatch/internal/modules/watch/port/out"
	"shiftwatch/internal/modules/watch/service"
	apperrors "shiftwatch/internal/platform/errors"
)

type Interactor struct {
	svc      *service.WatchService
	recorder watchout.SafetyRecorder
	logger   *zap.Logger
}

func NewInteractor(svc *service.WatchService, recorder watchout.SafetyRecorder, logger *zap.Logger) watchin.Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{svc: svc, recorder: recorder, logger: logger}
}

func (i *Interactor) Begin(ctx context.Context, input watchdto.BeginInput) (watchdto.StatusOutput, error) {
	kind, err := domain.ParseKind(input.Kind)
	if err != nil {
		return watchdto.StatusOutput{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	b, err := i.svc.Begin(ctx, kind)
	if err != nil {
		return watchdto.StatusOutput{}, err
	}
	i.logger.Info("break started",
		zap.String("break_id", b.ID),
		zap.String("kind", string(b.Kind)),
		zap.Time("estimated_return", b.EstimatedReturn()))
	return toStatus(b, b.AwayStart), nil
}

func (i *Interactor) Status(ctx context.Context, now time.Time) (watchdto.StatusOutput, error) {
	b, err := i.svc.Active(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotOnBreak) {
			return watchdto.StatusOutput{OnBreak: false}, nil
		}
		return watchdto.StatusOutput{}, err
	}
	return toStatus(b, now), nil
}

// Resume writes the SAFETY_CHECK entry before clearing the break. The entry
// reuses the break id, so a resume retried after a failed clear does not log
// twice.
func (i *Interactor) Resume(ctx context.Context) (watchdto.ResumeOutput, error) {
	b, err := i.svc.Active(ctx)
	if err != nil {
		return watchdto.ResumeOutput{}, err
	}
	now := i.svc.Now()
	away := b.Away(now)
	details := domain.SafetyCheckDetails(b.Kind, away)
	if err := i.recorder.RecordSafetyCheck(ctx, watchout.SafetyCheck{
		ID:       b.ID,
		At:       now,
		Details:  details,
		Duration: away,
	}); err != nil {
		i.logger.Error("safety check append failed", zap.String("break_id", b.ID), zap.Error(err))
		return watchdto.ResumeOutput{}, apperrors.Persistence("record safety check", err)
	}
	if err := i.svc.Clear(ctx); err != nil {
		i.logger.Warn("safety check recorded but break not cleared", zap.String("break_id", b.ID), zap.Error(err))
		return watchdto.ResumeOutput{}, err
	}
	i.logger.Info("break resumed", zap.String("break_id", b.ID), zap.Duration("away", away))
	return watchdto.ResumeOutput{
		BreakID:   b.ID,
		Kind:      string(b.Kind),
		AwayStart: b.AwayStart,
		Duration:  away,
		Details:   details,
	}, nil
}

func toStatus(b domain.Break, now time.Time) watchdto.StatusOutput {
	return watchdto.StatusOutput{
		OnBreak:         true,
		BreakID:         b.ID,
		Kind:            string(b.Kind),
		AwayStart:       b.AwayStart,
		EstimatedReturn: b.EstimatedReturn(),
		Remaining:       b.Remaining(now),
		Away:            b.Away(now),
	}
}
