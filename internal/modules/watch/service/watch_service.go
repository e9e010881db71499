package service

import (
	"context"
	"errors"
	"time"

	"shiftwatch/internal/modules/watch/domain"
	watchout "shiftwatch/internal/modules/watch/port/out"
	"shiftwatch/internal/platform/clock"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/id"
	"shiftwatch/internal/platform/settings"
)

type WatchService struct {
	clock    clock.Clock
	idGen    id.Generator
	store    watchout.BreakStore
	settings settings.Provider
}

func NewWatchService(clock clock.Clock, idGen id.Generator, store watchout.BreakStore, settings settings.Provider) *WatchService {
	return &WatchService{clock: clock, idGen: idGen, store: store, settings: settings}
}

func (s *WatchService) Begin(ctx context.Context, kind domain.Kind) (domain.Break, error) {
	_, err := s.store.Load(ctx)
	switch {
	case err == nil:
		return domain.Break{}, apperrors.ErrAlreadyOnBreak
	case !errors.Is(err, apperrors.ErrNotOnBreak):
		return domain.Break{}, apperrors.Persistence("load break", err)
	}
	b := domain.Break{
		ID:        s.idGen.New(),
		Kind:      kind,
		AwayStart: s.clock.Now(),
		Planned:   s.planned(kind),
	}
	if err := s.store.Save(ctx, b); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyOnBreak) {
			return domain.Break{}, err
		}
		return domain.Break{}, apperrors.Persistence("save break", err)
	}
	return b, nil
}

func (s *WatchService) Active(ctx context.Context) (domain.Break, error) {
	b, err := s.store.Load(ctx)
	if err != nil && !errors.Is(err, apperrors.ErrNotOnBreak) {
		return domain.Break{}, apperrors.Persistence("load break", err)
	}
	return b, err
}

func (s *WatchService) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return apperrors.Persistence("clear break", err)
	}
	return nil
}

func (s *WatchService) Now() time.Time {
	return s.clock.Now()
}

func (s *WatchService) planned(kind domain.Kind) time.Duration {
	cfg := s.settings.Current()
	if kind == domain.KindGalley {
		return cfg.GalleyDuration()
	}
	return cfg.ShoreLeaveDuration()
}
