package service

import (
	"context"
	"errors"
	"time"

	"shiftwatch/internal/modules/shift/domain"
	shiftout "shiftwatch/internal/modules/shift/port/out"
	"shiftwatch/internal/platform/clock"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/id"
	"shiftwatch/internal/platform/settings"
)

type ShiftService struct {
	clock    clock.Clock
	idGen    id.Generator
	store    shiftout.SessionStore
	settings settings.Provider
}

func NewShiftService(clock clock.Clock, idGen id.Generator, store shiftout.SessionStore, settings settings.Provider) *ShiftService {
	return &ShiftService{clock: clock, idGen: idGen, store: store, settings: settings}
}

func (s *ShiftService) Start(ctx context.Context) (domain.Session, error) {
	session := domain.NewSession(s.idGen.New(), s.clock.Now())
	if err := s.store.Insert(ctx, session); err != nil {
		if errors.Is(err, apperrors.ErrSessionAlreadyOpen) {
			return domain.Session{}, err
		}
		return domain.Session{}, apperrors.Persistence("insert session", err)
	}
	return session, nil
}

func (s *ShiftService) Open(ctx context.Context) (domain.Session, error) {
	return s.store.FindOpen(ctx)
}

// Close ends the open session if its id matches.
func (s *ShiftService) Close(ctx context.Context, sessionID string, items int) (domain.Session, error) {
	open, err := s.store.FindOpen(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoActiveSession) {
			return domain.Session{}, apperrors.ErrNoSuchOpenSession
		}
		return domain.Session{}, err
	}
	if open.ID != sessionID {
		return domain.Session{}, apperrors.ErrNoSuchOpenSession
	}
	closed, err := open.Close(s.clock.Now(), items)
	if err != nil {
		return domain.Session{}, apperrors.ErrNoSuchOpenSession
	}
	c, _ := closed.Closed()
	if err := s.store.Close(ctx, closed.ID, c.EndTime, c.ItemsCompleted); err != nil {
		if errors.Is(err, apperrors.ErrNoSuchOpenSession) {
			return domain.Session{}, err
		}
		return domain.Session{}, apperrors.Persistence("close session", err)
	}
	return closed, nil
}

func (s *ShiftService) Evaluate(session domain.Session, now time.Time) domain.Status {
	cfg := s.settings.Current()
	return domain.Evaluate(session, now, cfg.ShiftDuration(), cfg.HourlyRate)
}

func (s *ShiftService) HourlyRate() float64 {
	return s.settings.Current().HourlyRate
}

func (s *ShiftService) History(ctx context.Context, limit int) ([]domain.Session, error) {
	return s.store.ListClosed(ctx, limit)
}
