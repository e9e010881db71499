// Package pubsub fans values out to subscribers without ever blocking the
// publisher: a subscriber that falls behind loses the oldest pending value.
package pubsub

import (
	"context"
	"sync"
)

const defaultBuffer = 16

type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	closed bool
	done   chan struct{}
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: map[int]chan T{}, done: make(chan struct{})}
}

// Subscribe returns a channel that receives every value published until ctx
// is done or the hub is closed, after which the channel is closed.
func (h *Hub[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, defaultBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(id)
		case <-h.done:
		}
	}()
	return ch
}

func (h *Hub[T]) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish after Close is a no-op.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
