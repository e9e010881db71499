package in

import (
	"context"
	"time"

	"shiftwatch/internal/modules/watch/dto"
)

type Usecase interface {
	Begin(ctx context.Context, input dto.BeginInput) (dto.StatusOutput, error)
	Status(ctx context.Context, now time.Time) (dto.StatusOutput, error)
	Resume(ctx context.Context) (dto.ResumeOutput, error)
}
