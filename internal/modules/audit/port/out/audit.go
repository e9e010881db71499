package out

import (
	"context"
	"time"

	"shiftwatch/internal/modules/audit/domain"
)

type Query struct {
	Kinds []domain.Kind
	Since time.Time
	Limit int
}

type AuditStore interface {
	Append(ctx context.Context, entry domain.Entry) error
	Query(ctx context.Context, query Query) ([]domain.Entry, error)
	Count(ctx context.Context, query Query) (int, error)
}
