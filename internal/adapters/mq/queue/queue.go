// Package queue is the ordered inbox that funnels snapshot and live batches
// into the single reconcile worker.
package queue

import (
	"context"
	"sync"

	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/metrics"
)

const defaultCapacity = 1024

// Item is the payload type flowing through the queue.
type Item = model.Batch

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch to the queue.
	// Returns ErrClosed or ErrFull when the batch was not enqueued.
	Enqueue(ctx context.Context, b Item) error

	// Dequeue returns a channel that delivers batches in enqueue order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Item

	// Len returns the current number of queued batches.
	Len(ctx context.Context) int

	// Close stops accepting batches. Safe to call more than once.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Item, q.capacity)
	metrics.UpdateInbox(0, q.capacity)
	return q
}

// Enqueue adds a batch without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Item) error { //nolint:gocritic // hugeParam: batches are passed by value through the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordInboxEnqueueError("closed")
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		metrics.RecordInboxEnqueueError("context_cancelled")
		return ctx.Err()
	default:
	}

	select {
	case q.items <- b:
		metrics.RecordInboxEnqueue()
		metrics.UpdateInbox(len(q.items), q.capacity)
		return nil
	default:
		metrics.RecordInboxEnqueueError("full")
		return ErrFull
	}
}

// Dequeue returns a channel that delivers batches as they become available.
// The channel closes once the queue is closed and drained, or once ctx is done.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- b:
					metrics.RecordInboxDequeue()
					metrics.UpdateInbox(len(q.items), q.capacity)
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.items)
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close stops accepting batches and lets consumers drain what is left.
func (q *InMemoryQueue) Close() error {
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
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
