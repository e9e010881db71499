package tx

import (
	"context"
	"sync"
)

// Manager wraps the boundary of a multi-adapter state change.
type Manager interface {
	Within(ctx context.Context, fn func(context.Context) error) error
}

// SerialManager runs every Within region one at a time, making its owner the
// single writer for whatever state the regions touch.
type SerialManager struct {
	mu sync.Mutex
}

func NewSerialManager() *SerialManager {
	return &SerialManager{}
}

func (m *SerialManager) Within(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}
