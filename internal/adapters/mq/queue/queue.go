// Package queue provides a bounded in-memory queue with non-blocking enqueue
// and channel-based dequeue.
package queue

import (
	"context"
	"sync"

	"github.com/okian/gridedge/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item without blocking. It fails with ErrFull when the
	// queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, item T) error

	// Dequeue returns the channel consumers range over. It is closed by Close.
	Dequeue() <-chan T

	// Len returns the current number of queued items.
	Len() int

	// Cap returns the capacity.
	Cap() int

	// Close stops accepting items. Items already queued remain readable.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items  chan T
	name   string
	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	o := options{capacity: defaultQueueCapacity, name: "queue"}
	for _, opt := range opts {
		opt(&o)
	}

	q := &InMemoryQueue[T]{
		items: make(chan T, o.capacity),
		name:  o.name,
	}
	metrics.UpdateQueueCapacity(o.capacity)
	metrics.UpdateQueueSize(0, o.capacity)
	return q
}

// Enqueue adds an item to the queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	select {
	case q.items <- item:
		metrics.UpdateQueueSize(len(q.items), cap(q.items))
		return nil
	default:
		metrics.RecordQueueRejected("full")
		metrics.RecordErrorByComponent(q.name, "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue[T]) Dequeue() <-chan T {
	return q.items
}

// Len returns the current number of queued items.
func (q *InMemoryQueue[T]) Len() int {
	size := len(q.items)
	metrics.UpdateQueueSize(size, cap(q.items))
	return size
}

// Cap returns the queue capacity.
func (q *InMemoryQueue[T]) Cap() int {
	return cap(q.items)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
