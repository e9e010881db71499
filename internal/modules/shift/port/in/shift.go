package in

import (
	"context"
	"time"

	"shiftwatch/internal/modules/shift/dto"
)

type Usecase interface {
	Start(ctx context.Context) (dto.StartOutput, error)
	Close(ctx context.Context, input dto.CloseInput) (dto.ClosedOutput, error)
	Current(ctx context.Context) (dto.SessionOutput, error)
	Status(ctx context.Context, now time.Time) (dto.StatusOutput, error)
	History(ctx context.Context, limit int) ([]dto.ClosedOutput, error)
}
