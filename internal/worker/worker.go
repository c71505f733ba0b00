// Package worker provides the back-pressured ingestion pool: a bounded
// channel of work items drained by a consumer loop under a concurrency
// semaphore.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"hubward/internal/logging"
)

// Handler processes one work item.
type Handler[T any] func(ctx context.Context, item T) error

// Pool is a bounded worker pool. Enqueue blocks when the queue is full;
// handler failures are logged and never stop the consumer loop.
type Pool[T any] struct {
	queue   chan task[T]
	sem     *semaphore.Weighted
	logger  *slog.Logger
	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	consumer  sync.WaitGroup
	inflight  sync.WaitGroup
}

type task[T any] struct {
	item    T
	handler Handler[T]
}

// NewPool constructs a pool with the given queue capacity and concurrency
// cap. Zero concurrency means host parallelism.
func NewPool[T any](capacity, concurrency int, logger *slog.Logger) *Pool[T] {
	if capacity <= 0 {
		capacity = 512
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		queue:  make(chan task[T], capacity),
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logging.NewComponentLogger(logger, "worker"),
		ctx:    ctx,
		cancel: cancel,
	}
	p.consumer.Add(1)
	go p.consume()
	return p
}

// Enqueue submits an item. It blocks while the queue is full (back-pressure)
// and returns the context error if ctx is cancelled while waiting.
func (p *Pool[T]) Enqueue(ctx context.Context, item T, handler Handler[T]) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	p.pending.Add(1)
	select {
	case p.queue <- task[T]{item: item, handler: handler}:
		return nil
	case <-ctx.Done():
		p.pending.Add(-1)
		return ctx.Err()
	case <-p.ctx.Done():
		p.pending.Add(-1)
		return p.ctx.Err()
	}
}

// PendingCount reports queued plus in-flight items.
func (p *Pool[T]) PendingCount() int64 {
	return p.pending.Load()
}

// Drain closes the intake, waits for the consumer loop to finish dequeuing,
// then waits for in-flight handlers.
func (p *Pool[T]) Drain() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.consumer.Wait()
	p.inflight.Wait()
}

// Stop aborts in-flight work by cancelling the pool context, then drains.
func (p *Pool[T]) Stop() {
	p.cancel()
	p.Drain()
}

func (p *Pool[T]) consume() {
	defer p.consumer.Done()
	for t := range p.queue {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			// Shutting down; account for the dequeued item.
			p.pending.Add(-1)
			continue
		}
		p.inflight.Add(1)
		go func(t task[T]) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("handler panic", logging.Any("panic", r))
				}
				p.sem.Release(1)
				p.pending.Add(-1)
				p.inflight.Done()
			}()
			if err := t.handler(p.ctx, t.item); err != nil {
				p.logger.Warn("handler failed", logging.Error(err))
			}
		}(t)
	}
}
