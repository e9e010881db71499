package in

import (
	"context"
	"time"

	watchdto "shiftwatch/internal/modules/watch/dto"
	watchin "shiftwatch/internal/modules/watch/port/in"
)

// CLIHandler serves break queries. Starting and resuming a break go through
// the engine so they are serialized with the rest of the shift state.
type CLIHandler struct {
	usecase watchin.Usecase
}

func NewCLIHandler(usecase watchin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Status(ctx context.Context, now time.Time) (watchdto.StatusOutput, error) {
	return h.usecase.Status(ctx, now)
}
