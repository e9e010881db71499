package in

import (
	"context"
	"time"

	auditdto "shiftwatch/internal/modules/audit/dto"
	auditin "shiftwatch/internal/modules/audit/port/in"
)

type CLIHandler struct {
	usecase auditin.Usecase
}

func NewCLIHandler(usecase auditin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Tail(ctx context.Context, kinds []string, since time.Time, limit int) ([]auditdto.EntryOutput, error) {
	return h.usecase.Tail(ctx, auditdto.TailInput{Kinds: kinds, Since: since, Limit: limit})
}
