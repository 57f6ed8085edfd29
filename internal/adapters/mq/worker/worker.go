// Package worker runs a fixed pool of goroutines draining a queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/okian/gridedge/pkg/logger"
	"github.com/okian/gridedge/pkg/metrics"
)

const defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()

// Source is what workers read items from.
type Source[T any] interface {
	Dequeue() <-chan T
}

// Handler processes one item. Errors are logged; they never stop a worker.
type Handler[T any] interface {
	Handle(ctx context.Context, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) error {
	return f(ctx, item)
}

// Pool manages a fixed number of workers.
type Pool[T any] struct {
	source  Source[T]
	handler Handler[T]
	size    int
	name    string
	logger  logger.Logger

	wg        sync.WaitGroup
	started   atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a worker pool. Call Start to launch it.
func NewPool[T any](source Source[T], handler Handler[T], opts ...Option) *Pool[T] {
	o := options{size: runtime.NumCPU() * defaultWorkerMultiplier, name: "worker-pool"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(o.name)
	}
	return &Pool[T]{
		source:  source,
		handler: handler,
		size:    o.size,
		name:    o.name,
		logger:  o.logger,
	}
}

// Start launches the workers. They stop when ctx is done or the source
// channel is closed. Start is a no-op after the first call.
func (p *Pool[T]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	items := p.source.Dequeue()
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, items)
	}
	metrics.UpdateWorkerCount(p.size)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", p.size))
}

func (p *Pool[T]) run(ctx context.Context, items <-chan T) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			p.handle(ctx, item)
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			metrics.RecordErrorByComponent(p.name, "panic")
			p.logger.Error(ctx, "handler panicked", logger.Any("panic", r))
		}
	}()
	if err := p.handler.Handle(ctx, item); err != nil {
		p.failed.Add(1)
		p.logger.Debug(ctx, "handler returned error", logger.Error(err))
		return
	}
	p.processed.Add(1)
}

// Shutdown closes the source if it can be closed, lets the workers drain
// what is left and waits for them until ctx is done.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int { return p.size }

// Processed returns how many items were handled without error.
func (p *Pool[T]) Processed() int64 { return p.processed.Load() }

// Failed returns how many items returned an error or panicked.
func (p *Pool[T]) Failed() int64 { return p.failed.Load() }
