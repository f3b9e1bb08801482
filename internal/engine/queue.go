package engine

import (
	"context"
	"sync"

	"github.com/agentlink/agentlink/internal/wire"
)

// queue is the bounded delivery buffer between the pump (single producer)
// and the consumer. A full queue blocks the producer, which in turn stops
// reading from the process instead of buffering without bound.
type queue struct {
	ch        chan wire.Message
	closeOnce sync.Once
}

func newQueue(capacity int) *queue {
	return &queue{ch: make(chan wire.Message, capacity)}
}

// put enqueues one message, blocking while the queue is full. It returns
// false when the context is cancelled or the engine stops before the
// message is accepted.
func (q *queue) put(ctx context.Context, done <-chan struct{}, msg wire.Message) bool {
	select {
	case q.ch <- msg:
		return true
	case <-done:
		return false
	case <-ctx.Done():
		return false
	}
}

// out is the consumer side; it drains buffered items and then reports
// end-of-stream once the producer closes the queue.
func (q *queue) out() <-chan wire.Message {
	return q.ch
}

// close ends the stream after the last buffered item. Idempotent.
func (q *queue) close() {
	q.closeOnce.Do(func() {
		close(q.ch)
	})
}
