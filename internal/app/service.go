// Package service wires the ledger, the ingest pipeline and the
// reconciliation engine together and serves the published views.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/mq/queue"
	"github.com/okian/moodblocks/internal/adapters/mq/worker"
	"github.com/okian/moodblocks/internal/adapters/repository"
	"github.com/okian/moodblocks/internal/domain/dedupe"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/reconcile"
	"github.com/okian/moodblocks/internal/domain/types"
	"github.com/okian/moodblocks/internal/domain/views"
	"github.com/okian/moodblocks/internal/domain/voice"
	"github.com/okian/moodblocks/internal/ingest"
	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

// Service owns the model and the goroutines that feed it.
type Service struct {
	mu sync.RWMutex

	// Core components
	ledger   ledger.Client
	engine   *reconcile.Engine
	inbox    *queue.InMemoryQueue
	worker   *worker.InMemoryWorker
	fetcher  *ingest.Fetcher
	ingestor *ingest.Ingestor
	voice    *voice.Recognizer

	// Configuration
	identity        string
	event           string
	refreshInterval time.Duration
	fetchTimeout    time.Duration
	shutdownTimeout time.Duration
	maxEntries      int
	inboxSize       int
	dedupeSize      int
	keywords        []voice.Keyword

	// State
	runCtx       context.Context //nolint:containedctx // lifetime of the live subscription and of enqueues, ended by Stop
	cancelRun    context.CancelFunc
	cancelWorker context.CancelFunc
	refresh      chan struct{}
	stopCh       chan struct{}
	subscribing  atomic.Bool
	started      bool
	stopped      bool

	log logger.Logger
}

// New builds a service over the given ledger. Views are readable right away;
// nothing is fetched until Start.
func New(l ledger.Client, opts ...Option) *Service {
	s := &Service{
		ledger:  l,
		refresh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		log:     logger.Nop(),
	}
	defaultOptions(s)
	for _, opt := range opts {
		opt(s)
	}

	s.engine = reconcile.New(
		repository.NewTreapStore(),
		dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize)),
		reconcile.WithLogger(s.log.Named("reconcile")),
	)
	s.inbox = queue.NewInMemoryQueue(queue.WithCapacity(s.inboxSize))
	s.worker = worker.NewInMemoryWorker(s.inbox, s.engine, worker.WithLogger(s.log))
	s.fetcher = ingest.NewFetcher(l,
		ingest.WithMaxEntries(s.maxEntries),
		ingest.WithIdentity(s.identity),
		ingest.WithLogger(s.log.Named("snapshot")),
	)
	s.ingestor = ingest.NewIngestor(l, s.inbox.Enqueue,
		ingest.WithEvent(s.event),
		ingest.WithSubscribeTimeout(s.fetchTimeout),
		ingest.WithLogger(s.log.Named("live")),
	)
	s.voice = voice.New(s.keywords...)
	return s
}

// Start launches the worker and the timer task. The first snapshot is
// fetched immediately. Cancelling ctx stops the timer; Stop tears down the rest.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	// Both lifetimes outlive ctx; only Stop ends them.
	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	wctx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWorker = cancelWorker
	go s.worker.Run(wctx)
	go s.loop(ctx)

	s.started = true
	s.log.Info(ctx, "mood service started",
		logger.String("identity", s.identity),
		logger.String("event", s.event),
		logger.String("refresh", s.refreshInterval.String()),
		logger.Int("inbox", s.inboxSize),
		logger.Int("dedupe", s.dedupeSize),
		logger.Int("max_entries", s.maxEntries),
	)
	return nil
}

// loop is the timer task: one cycle at startup, then one per tick or per
// refresh request.
func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.refresh:
			s.cycle(ctx)
		}
	}
}

// cycle kicks off a live resubscription if none is held and enqueues one
// snapshot. Failures are logged and the cycle skipped; the next tick retries.
func (s *Service) cycle(ctx context.Context) {
	s.ensureLive(ctx)

	// The fetch outlives teardown on purpose; its result is then rejected by the closed inbox.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	b, err := s.fetcher.Fetch(fctx)
	cancel()
	if err != nil {
		metrics.RecordError("ingest", "transient")
		s.log.Warn(ctx, "snapshot fetch failed, keeping previous model", logger.Error(err))
		return
	}

	if err := s.inbox.Enqueue(s.runCtx, b); err != nil {
		if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
			s.log.Debug(ctx, "snapshot discarded after teardown", logger.Int("records", len(b.Records)))
			return
		}
		metrics.RecordError("inbox", "enqueue")
		s.log.Warn(ctx, "snapshot not enqueued", logger.Error(err), logger.Int("records", len(b.Records)))
	}
}

// ensureLive starts a subscription attempt in the background. At most one
// attempt runs at a time; the snapshot path and Stop never wait on it.
func (s *Service) ensureLive(ctx context.Context) {
	if s.ingestor.Active() || !s.subscribing.CompareAndSwap(false, true) {
		return
	}

	s.mu.RLock()
	runCtx, stopped := s.runCtx, s.stopped
	s.mu.RUnlock()
	if stopped {
		s.subscribing.Store(false)
		return
	}

	go func() {
		defer s.subscribing.Store(false)
		err := s.ingestor.Start(runCtx)
		switch {
		case err == nil:
		case errors.Is(err, ingest.ErrStopped) || errors.Is(err, context.Canceled):
			s.log.Debug(ctx, "live subscription abandoned at teardown", logger.Error(err))
		default:
			s.log.Warn(ctx, "live subscription unavailable", logger.Error(err))
		}
	}()
}

// Refresh asks the timer task for an immediate snapshot. Requests made while
// one is pending are coalesced.
func (s *Service) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Stop tears the service down: timer, subscription, inbox, worker, engine.
// It is safe to call more than once and without Start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	ctx := context.Background()
	s.log.Info(ctx, "stopping mood service...")

	if s.started {
		close(s.stopCh)
		// Aborts a subscription dial in flight.
		s.cancelRun()
	}
	s.ingestor.Stop()
	_ = s.inbox.Close()

	if s.started {
		wctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		if err := s.worker.Wait(wctx); err != nil {
			s.log.Warn(ctx, "worker did not drain in time", logger.Error(err))
			s.cancelWorker()
			_ = s.worker.Shutdown(wctx)
		}
		cancel()
		s.cancelWorker()
	}
	s.engine.Close()

	s.started = false
	s.log.Info(ctx, "mood service stopped")
}

// Views returns the latest published snapshot.
func (s *Service) Views() *types.Snapshot {
	return s.engine.Snapshot()
}

// Leaderboard returns one entry per symbol, highest count first.
func (s *Service) Leaderboard() []types.LeaderboardEntry {
	return s.engine.Snapshot().Leaderboard
}

// RecentBlocks returns the newest positions and their moods.
func (s *Service) RecentBlocks() []types.BlockMood {
	return s.engine.Snapshot().RecentBlocks
}

// Heatmap returns the heatmap window, newest position first.
func (s *Service) Heatmap() []types.BlockMood {
	return s.engine.Snapshot().Heatmap
}

// Feed returns up to limit feed items, newest first.
func (s *Service) Feed(limit int) []types.FeedItem {
	return views.Feed(s.engine.Snapshot().Feed, limit)
}

// CurrentMood returns the current position and its mood.
func (s *Service) CurrentMood() (uint64, string) {
	snap := s.engine.Snapshot()
	return snap.CurrentPosition, snap.CurrentMood
}

// Identity returns the configured actor.
func (s *Service) Identity() string {
	return s.identity
}

// UserHistory fetches one actor's recent moods, most recent first. An empty
// actor means the configured identity. The global model is not consulted.
func (s *Service) UserHistory(ctx context.Context, actor string) ([]types.HistoryItem, error) {
	if actor == "" {
		actor = s.identity
	}
	if actor == "" {
		return nil, ErrNoIdentity
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	records, err := s.fetcher.FetchUser(fctx, actor)
	if err != nil {
		return nil, err
	}
	return views.UserHistory(records), nil
}

// Submit validates symbol and writes it to the ledger as the configured
// identity. On success an immediate refresh is requested; on failure the
// error wraps ErrSubmission and nothing is retried.
func (s *Service) Submit(ctx context.Context, symbol string) (ledger.Receipt, error) {
	sym, err := model.ParseSymbol(symbol)
	if err != nil {
		metrics.RecordSubmission("invalid", 0)
		return ledger.Receipt{}, err
	}
	return s.submit(ctx, sym)
}

// SubmitTranscript maps a voice transcript to a symbol and submits it.
func (s *Service) SubmitTranscript(ctx context.Context, text string) (model.Symbol, ledger.Receipt, error) {
	sym, err := s.voice.Recognize(text)
	if err != nil {
		metrics.RecordSubmission("not_understood", 0)
		return "", ledger.Receipt{}, err
	}
	receipt, err := s.submit(ctx, sym)
	return sym, receipt, err
}

func (s *Service) submit(ctx context.Context, sym model.Symbol) (ledger.Receipt, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ledger.Receipt{}, ErrStopped
	}
	if s.identity == "" {
		metrics.RecordSubmission("no_identity", 0)
		return ledger.Receipt{}, ErrNoIdentity
	}

	start := time.Now()
	receipt, err := s.ledger.Submit(ctx, s.identity, string(sym))
	ms := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		metrics.RecordSubmission("error", ms)
		s.log.Warn(ctx, "submission failed", logger.String("symbol", string(sym)), logger.Error(err))
		return ledger.Receipt{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	metrics.RecordSubmission("ok", ms)
	s.log.Info(ctx, "mood submitted",
		logger.String("symbol", string(sym)),
		logger.String("tx", receipt.TxID),
		logger.Uint64("position", receipt.Position),
	)
	s.Refresh()
	return receipt, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	snap := s.engine.Snapshot()
	return map[string]any{
		"started":          s.started,
		"stopped":          s.stopped,
		"identity":         s.identity,
		"event":            s.event,
		"refresh_interval": s.refreshInterval.String(),
		"live_active":      s.ingestor.Active(),
		"inbox_length":     s.inbox.Len(ctx),
		"inbox_capacity":   s.inbox.Cap(),
		"seen":             s.engine.Seen(),
		"version":          snap.Version,
		"positions":        snap.Positions,
		"total_merged":     snap.TotalMerged,
		"current_position": snap.CurrentPosition,
	}
}
