package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"shiftwatch/internal/modules/shift/domain"
	shiftdto "shiftwatch/internal/modules/shift/dto"
	shiftin "shiftwatch/internal/modules/shift/port/in"
	shiftout "shiftwatch/internal/modules/shift/port/out"
	"shiftwatch/internal/modules/shift/service"
	apperrors "shiftwatch/internal/platform/errors"
)

const defaultHistoryLimit = 20

type Interactor struct {
	svc     *service.ShiftService
	reports shiftout.ReportStore
	logger  *zap.Logger
}

// NewInteractor wires the shift usecase. reports may be nil.
func NewInteractor(svc *service.ShiftService, reports shiftout.ReportStore, logger *zap.Logger) shiftin.Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{svc: svc, reports: reports, logger: logger}
}

func (i *Interactor) Start(ctx context.Context) (shiftdto.StartOutput, error) {
	session, err := i.svc.Start(ctx)
	if err != nil {
		i.logger.Warn("shift start rejected", zap.Error(err))
		return shiftdto.StartOutput{}, err
	}
	i.logger.Info("shift started", zap.String("session_id", session.ID), zap.Time("start_time", session.StartTime))
	return shiftdto.StartOutput{SessionID: session.ID, StartTime: session.StartTime}, nil
}

func (i *Interactor) Close(ctx context.Context, input shiftdto.CloseInput) (shiftdto.ClosedOutput, error) {
	closed, err := i.svc.Close(ctx, input.SessionID, input.ItemsCompleted)
	if err != nil {
		i.logger.Warn("shift close rejected", zap.String("session_id", input.SessionID), zap.Error(err))
		return shiftdto.ClosedOutput{}, err
	}
	rate := i.svc.HourlyRate()
	out := toClosedOutput(closed, rate)

	if i.reports != nil {
		path, err := i.reports.Save(ctx, shiftout.ArrivalReport{Session: closed, Earnings: out.Earnings, Rate: rate})
		if err != nil {
			i.logger.Warn("arrival report not written", zap.String("session_id", closed.ID), zap.Error(err))
		} else {
			out.ReportPath = path
		}
	}
	i.logger.Info("shift closed",
		zap.String("session_id", out.SessionID),
		zap.Float64("duration_seconds", out.DurationSeconds),
		zap.Float64("earnings", out.Earnings),
		zap.Int("items_completed", out.ItemsCompleted))
	return out, nil
}

func (i *Interactor) Current(ctx context.Context) (shiftdto.SessionOutput, error) {
	open, err := i.svc.Open(ctx)
	if err != nil {
		return shiftdto.SessionOutput{}, err
	}
	return shiftdto.SessionOutput{SessionID: open.ID, StartTime: open.StartTime, Open: true}, nil
}

// Status never fails for lack of a session; it reports Open=false instead.
func (i *Interactor) Status(ctx context.Context, now time.Time) (shiftdto.StatusOutput, error) {
	open, err := i.svc.Open(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoActiveSession) {
			return shiftdto.StatusOutput{}, nil
		}
		return shiftdto.StatusOutput{}, err
	}
	st := i.svc.Evaluate(open, now)
	remaining := st.ShiftDuration - st.Elapsed
	if remaining < 0 {
		remaining = 0
	}
	return shiftdto.StatusOutput{
		Open:          true,
		SessionID:     open.ID,
		StartTime:     open.StartTime,
		Elapsed:       st.Elapsed,
		ShiftDuration: st.ShiftDuration,
		Remaining:     remaining,
		Overtime:      st.Overtime,
		Earnings:      st.Earnings,
	}, nil
}

func (i *Interactor) History(ctx context.Context, limit int) ([]shiftdto.ClosedOutput, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	sessions, err := i.svc.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	rate := i.svc.HourlyRate()
	out := make([]shiftdto.ClosedOutput, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toClosedOutput(s, rate))
	}
	return out, nil
}

func toClosedOutput(s domain.Session, rate float64) shiftdto.ClosedOutput {
	c, _ := s.Closed()
	elapsed := s.Elapsed(c.EndTime)
	return shiftdto.ClosedOutput{
		SessionID:       s.ID,
		StartTime:       s.StartTime,
		EndTime:         c.EndTime,
		DurationSeconds: elapsed.Seconds(),
		Earnings:        domain.Earnings(elapsed, rate),
		ItemsCompleted:  c.ItemsCompleted,
	}
}
