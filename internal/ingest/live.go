package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

// Sink accepts one validated live batch.
type Sink func(ctx context.Context, b model.Batch) error

// Ingestor subscribes to the ledger push channel and hands every valid
// record to the sink exactly once.
type Ingestor struct {
	sub  ledger.Subscriber
	sink Sink
	opts options

	mu           sync.Mutex
	subscription ledger.Subscription
	cancel       context.CancelFunc // ends the held subscription or the dial in flight
	dialing      bool
	stopped      bool
}

// NewIngestor creates a live ingestor.
func NewIngestor(sub ledger.Subscriber, sink Sink, opts ...Option) *Ingestor {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return &Ingestor{sub: sub, sink: sink, opts: o}
}

// Start subscribes to the push channel. Calling it while subscribed or while
// another Start is dialing is a no-op. The dial runs without the lock, is
// bounded by the subscribe timeout and is aborted by Stop.
// Failures wrap ErrTransientSource and may be retried.
func (i *Ingestor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrTransientSource, i.opts.event, err)
	}

	i.mu.Lock()
	if i.subscription != nil || i.dialing {
		i.mu.Unlock()
		return nil
	}
	sctx, cancel := context.WithCancel(ctx)
	i.dialing = true
	i.stopped = false
	i.cancel = cancel
	i.mu.Unlock()

	var expired atomic.Bool
	var timer *time.Timer
	if i.opts.subscribeTimeout > 0 {
		timer = time.AfterFunc(i.opts.subscribeTimeout, func() {
			expired.Store(true)
			cancel()
		})
	}

	s, err := i.sub.Subscribe(sctx, i.opts.event, func(raw model.RawRecord) {
		i.handle(sctx, raw)
	})
	if timer != nil {
		timer.Stop()
	}
	if err == nil && sctx.Err() != nil {
		s.Unsubscribe()
		err = sctx.Err()
	}

	var late ledger.Subscription
	i.mu.Lock()
	i.dialing = false
	if err == nil && i.stopped {
		late, err = s, ErrStopped
	}
	if err != nil {
		i.cancel = nil
		i.mu.Unlock()
		if late != nil {
			late.Unsubscribe()
		}
		cancel()
		if expired.Load() {
			err = fmt.Errorf("timed out after %s: %w", i.opts.subscribeTimeout, err)
		}
		metrics.UpdateLiveSubscribed(false)
		metrics.RecordError("ingest", "subscribe")
		return fmt.Errorf("%w: subscribe %s: %w", ErrTransientSource, i.opts.event, err)
	}
	i.subscription = s
	i.mu.Unlock()

	metrics.UpdateLiveSubscribed(true)
	i.opts.log.Info(ctx, "live subscription started", logger.String("event", i.opts.event))
	return nil
}

// Stop releases the subscription and aborts a dial in flight. Safe to call
// repeatedly, and when Start failed or never ran. It never waits on a dial.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	s := i.subscription
	cancel := i.cancel
	i.subscription = nil
	i.cancel = nil
	i.stopped = true
	i.mu.Unlock()

	if s != nil {
		s.Unsubscribe()
		metrics.UpdateLiveSubscribed(false)
	}
	if cancel != nil {
		cancel()
	}
}

// Active reports whether a subscription is held.
func (i *Ingestor) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.subscription != nil
}

func (i *Ingestor) handle(ctx context.Context, raw model.RawRecord) {
	i.mu.Lock()
	stopped := i.stopped
	i.mu.Unlock()
	if stopped {
		metrics.RecordLiveEvent("after_stop")
		return
	}

	r, err := model.Normalize(raw)
	if err != nil {
		metrics.RecordLiveEvent("malformed")
		metrics.RecordRecordDropped("live", model.DropReason(err))
		i.opts.log.Warn(ctx, "malformed live event dropped", logger.Error(err))
		return
	}

	b := model.Batch{Source: model.SourceLive, Records: []model.Record{r}, FetchedAt: i.opts.now()}
	if err := i.sink(ctx, b); err != nil {
		metrics.RecordLiveEvent("rejected")
		i.opts.log.Warn(ctx, "live event not queued", logger.Error(err), logger.Uint64("position", r.Position))
		return
	}
	metrics.RecordLiveEvent("accepted")
}
