package service

import (
	"context"
	"time"

	"shiftwatch/internal/modules/audit/domain"
	auditout "shiftwatch/internal/modules/audit/port/out"
	"shiftwatch/internal/platform/clock"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/id"
)

type AuditService struct {
	clock clock.Clock
	idGen id.Generator
	store auditout.AuditStore
}

func NewAuditService(clock clock.Clock, idGen id.Generator, store auditout.AuditStore) *AuditService {
	return &AuditService{clock: clock, idGen: idGen, store: store}
}

// Prepare fills in the id and timestamp of a new entry and validates it.
func (s *AuditService) Prepare(entry domain.Entry) (domain.Entry, error) {
	if entry.ID == "" {
		entry.ID = s.idGen.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if err := entry.Validate(); err != nil {
		return domain.Entry{}, err
	}
	return entry, nil
}

// Append persists a prepared entry. Appending the same entry twice stores it once.
func (s *AuditService) Append(ctx context.Context, entry domain.Entry) error {
	if err := s.store.Append(ctx, entry); err != nil {
		return apperrors.Persistence("append audit entry", err)
	}
	return nil
}

func (s *AuditService) Query(ctx context.Context, kinds []domain.Kind, since time.Time, limit int) ([]domain.Entry, error) {
	return s.store.Query(ctx, auditout.Query{Kinds: kinds, Since: since, Limit: limit})
}

func (s *AuditService) Count(ctx context.Context, kinds []domain.Kind, since time.Time) (int, error) {
	return s.store.Count(ctx, auditout.Query{Kinds: kinds, Since: since})
}
