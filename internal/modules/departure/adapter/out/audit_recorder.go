package out

import (
	"context"
	"time"

	auditdto "shiftwatch/internal/modules/audit/dto"
	auditin "shiftwatch/internal/modules/audit/port/in"
	depout "shiftwatch/internal/modules/departure/port/out"
)

const (
	kindEarlyExit = "EARLY_EXIT"
	kindDrift     = "DRIFT"
)

// AuditRecorder reaches the audit log through its inbound port.
type AuditRecorder struct {
	audit auditin.Usecase
}

func NewAuditRecorder(audit auditin.Usecase) *AuditRecorder {
	return &AuditRecorder{audit: audit}
}

var (
	_ depout.AuditRecorder = (*AuditRecorder)(nil)
	_ depout.DriftCounter  = (*AuditRecorder)(nil)
)

func (r *AuditRecorder) RecordEarlyExit(ctx context.Context, record depout.EarlyExitRecord) error {
	_, err := r.audit.Record(ctx, auditdto.RecordInput{
		ID:         record.ID,
		At:         record.At,
		Kind:       kindEarlyExit,
		Details:    record.Details,
		ReasonCode: record.ReasonCode,
	})
	return err
}

func (r *AuditRecorder) DriftEventsSince(ctx context.Context, since time.Time) (int, error) {
	return r.audit.Count(ctx, auditdto.CountInput{Kinds: []string{kindDrift}, Since: since})
}
