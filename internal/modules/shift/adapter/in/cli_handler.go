package in

import (
	"context"

	shiftdto "shiftwatch/internal/modules/shift/dto"
	shiftin "shiftwatch/internal/modules/shift/port/in"
)

// CLIHandler serves the read-only shift commands. Starting and closing go
// through the engine.
type CLIHandler struct {
	usecase shiftin.Usecase
}

func NewCLIHandler(usecase shiftin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) History(ctx context.Context, limit int) ([]shiftdto.ClosedOutput, error) {
	return h.usecase.History(ctx, limit)
}
