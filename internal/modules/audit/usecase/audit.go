package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shiftwatch/internal/modules/audit/domain"
	auditdto "shiftwatch/internal/modules/audit/dto"
	auditin "shiftwatch/internal/modules/audit/port/in"
	"shiftwatch/internal/modules/audit/service"
	apperrors "shiftwatch/internal/platform/errors"
)

const defaultTailLimit = 50

type Interactor struct {
	svc    *service.AuditService
	logger *zap.Logger
}

func NewInteractor(svc *service.AuditService, logger *zap.Logger) auditin.Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{svc: svc, logger: logger}
}

func (i *Interactor) Record(ctx context.Context, input auditdto.RecordInput) (auditdto.EntryOutput, error) {
	kind, err := domain.ParseKind(input.Kind)
	if err != nil {
		return auditdto.EntryOutput{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	entry := domain.Entry{
		ID:        input.ID,
		Kind:      kind,
		Timestamp: input.At,
		Details:   input.Details,
		Duration:  input.Duration,
	}
	if input.ReasonCode != "" {
		reason := domain.ReasonCode(input.ReasonCode)
		entry.ReasonCode = &reason
	}
	entry, err = i.svc.Prepare(entry)
	if err != nil {
		return auditdto.EntryOutput{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := i.svc.Append(ctx, entry); err != nil {
		i.logger.Error("audit append failed",
			zap.String("id", entry.ID),
			zap.String("kind", string(entry.Kind)),
			zap.Error(err))
		return auditdto.EntryOutput{}, err
	}
	i.logger.Info("audit entry appended", zap.String("id", entry.ID), zap.String("kind", string(entry.Kind)))
	return toOutput(entry), nil
}

func (i *Interactor) Tail(ctx context.Context, input auditdto.TailInput) ([]auditdto.EntryOutput, error) {
	kinds, err := parseKinds(input.Kinds)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultTailLimit
	}
	entries, err := i.svc.Query(ctx, kinds, input.Since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]auditdto.EntryOutput, 0, len(entries))
	for _, e := range entries {
		out = append(out, toOutput(e))
	}
	return out, nil
}

func (i *Interactor) Count(ctx context.Context, input auditdto.CountInput) (int, error) {
	kinds, err := parseKinds(input.Kinds)
	if err != nil {
		return 0, err
	}
	return i.svc.Count(ctx, kinds, input.Since)
}

func parseKinds(raw []string) ([]domain.Kind, error) {
	kinds := make([]domain.Kind, 0, len(raw))
	for _, r := range raw {
		k, err := domain.ParseKind(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func toOutput(e domain.Entry) auditdto.EntryOutput {
	out := auditdto.EntryOutput{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Timestamp: e.Timestamp,
		Details:   e.Details,
		Duration:  e.Duration,
	}
	if e.ReasonCode != nil {
		out.ReasonCode = string(*e.ReasonCode)
	}
	return out
}
