package in

import (
	"context"

	"shiftwatch/internal/modules/departure/dto"
)

type Usecase interface {
	Begin(ctx context.Context, input dto.BeginInput) (dto.BeginOutput, error)
	UpdateDraft(ctx context.Context, input dto.DraftInput) (dto.StateOutput, error)
	SetEmergency(ctx context.Context, on bool) (dto.StateOutput, error)
	Submit(ctx context.Context) (dto.SubmitOutput, error)
	Cancel(ctx context.Context) (dto.StateOutput, error)
	State(ctx context.Context) dto.StateOutput
}
