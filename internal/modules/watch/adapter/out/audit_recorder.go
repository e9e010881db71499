package out

import (
	"context"

	auditdto "shiftwatch/internal/modules/audit/dto"
	auditin "shiftwatch/internal/modules/audit/port/in"
	watchout "shiftwatch/internal/modules/watch/port/out"
)

type AuditRecorder struct {
	audit auditin.Usecase
}

func NewAuditRecorder(audit auditin.Usecase) watchout.SafetyRecorder {
	return &AuditRecorder{audit: audit}
}

func (r *AuditRecorder) RecordSafetyCheck(ctx context.Context, check watchout.SafetyCheck) error {
	d := check.Duration
	_, err := r.audit.Record(ctx, auditdto.RecordInput{
		ID:       check.ID,
		At:       check.At,
		Kind:     "SAFETY_CHECK",
		Details:  check.Details,
		Duration: &d,
	})
	return err
}
