package in

import (
	"context"

	"shiftwatch/internal/modules/audit/dto"
)

// Usecase is append-only by construction: there is no way to edit or remove
// an entry through it.
type Usecase interface {
	Record(ctx context.Context, input dto.RecordInput) (dto.EntryOutput, error)
	Tail(ctx context.Context, input dto.TailInput) ([]dto.EntryOutput, error)
	Count(ctx context.Context, input dto.CountInput) (int, error)
}
