// Package worker runs the single consumer that applies inbox batches to the
// reconciliation engine. One worker means merges never run concurrently.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/reconcile"
	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

// Applier merges a batch into the model.
type Applier interface {
	Apply(ctx context.Context, b model.Batch) reconcile.Result
}

// Queue defines how the worker receives batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Batch
}

// Worker processes batches until the queue drains or it is shut down.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over an in-process queue.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		applier:  applier,
		name:     "reconcile",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			w.process(ctx, b)
		}
	}
}

// Shutdown signals the loop to stop and waits for it.
// Closing the queue first lets the loop drain pending batches before it exits.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	default:
	}

	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Wait blocks until Run returns or ctx is done.
func (w *InMemoryWorker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *InMemoryWorker) process(ctx context.Context, b model.Batch) { //nolint:gocritic // hugeParam: batches travel by value
	start := time.Now()
	res := w.applier.Apply(ctx, b)
	if res.Skipped {
		w.logger.Debug(ctx, "batch discarded after close", logger.String("source", b.Source.String()))
		return
	}
	if res.Dropped > 0 {
		metrics.RecordError("worker", "dropped_records")
	}
	w.logger.Debug(ctx, "batch applied",
		logger.String("source", b.Source.String()),
		logger.Int("records", len(b.Records)),
		logger.Int("accepted", res.Accepted),
		logger.Float64("ms", float64(time.Since(start).Microseconds())/1000),
	)
}
