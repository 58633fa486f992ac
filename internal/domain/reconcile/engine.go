// Package reconcile merges snapshot and live records into one model and
// publishes the derived views after every merge.
package reconcile

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/moodblocks/internal/adapters/repository"
	"github.com/okian/moodblocks/internal/domain/dedupe"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/ring"
	"github.com/okian/moodblocks/internal/domain/types"
	"github.com/okian/moodblocks/internal/domain/views"
	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

// Result summarises one merge.
type Result struct {
	Accepted   int  // records counted
	Claimed    int  // positions newly added to the store
	Duplicates int  // records already merged earlier
	Dropped    int  // malformed records
	Skipped    bool // engine closed, nothing applied
}

// Engine owns the merged model. Apply is the only mutating entry point and
// calls are serialized; readers use Snapshot, which never blocks Apply.
type Engine struct {
	mu     sync.Mutex
	store  repository.Store
	seen   dedupe.Deduper
	feed   *ring.Buffer[types.FeedItem]
	counts map[model.Symbol]uint64
	total  uint64

	position    uint64
	top         model.Symbol
	identity    string
	userHistory []model.Record
	version     uint64

	closed   atomic.Bool
	snapshot atomic.Pointer[types.Snapshot]

	log logger.Logger
	now func() time.Time
}

// New builds an engine over the given Position→Symbol store and seen-set.
func New(store repository.Store, seen dedupe.Deduper, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		seen:   seen,
		feed:   ring.New[types.FeedItem](views.FeedBufferCap),
		counts: make(map[model.Symbol]uint64, len(model.Alphabet())),
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.publish(context.Background())
	return e
}

// Apply merges a batch and republishes the views.
func (e *Engine) Apply(ctx context.Context, b model.Batch) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		metrics.RecordMergeAfterClose()
		return Result{Skipped: true}
	}

	start := time.Now()
	res, highest := e.merge(ctx, b.Records, b.Source)

	e.position = max(e.position, b.Position, highest)
	if b.Top.Valid() {
		e.top = b.Top
	}
	if b.HasUserHistory {
		e.identity = b.Identity
		e.userHistory = append([]model.Record(nil), b.UserHistory...)
	}

	e.version++
	e.publish(ctx)

	metrics.RecordMerge(b.Source.String(), float64(time.Since(start).Microseconds())/1000)
	e.log.Debug(ctx, "batch merged",
		logger.String("source", b.Source.String()),
		logger.Int("accepted", res.Accepted),
		logger.Int("claimed", res.Claimed),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("dropped", res.Dropped),
		logger.Uint64("position", e.position),
		logger.Uint64("version", e.version),
	)
	return res
}

// Merge merges records without batch metadata.
func (e *Engine) Merge(ctx context.Context, records []model.Record) Result {
	return e.Apply(ctx, model.Batch{Source: model.SourceLive, Records: records})
}

// merge runs the per-record algorithm. Must be called with e.mu held.
// It returns the highest position among accepted records.
func (e *Engine) merge(ctx context.Context, records []model.Record, src model.Source) (Result, uint64) {
	var res Result

	batch := make([]model.Record, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			res.Dropped++
			metrics.RecordRecordDropped("merge", model.DropReason(err))
			e.log.Warn(ctx, "record dropped", logger.Error(err), logger.String("actor", r.Actor), logger.Uint64("position", r.Position))
			continue
		}
		batch = append(batch, r)
	}

	// Highest position first, equal positions keep arrival order.
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Position > batch[j].Position })

	accepted := batch[:0]
	var highest uint64
	for _, r := range batch {
		if e.seen.SeenAndRecord(ctx, r.Key()) {
			res.Duplicates++
			metrics.RecordRecordDuplicate()
			continue
		}
		claimed, err := e.store.Claim(ctx, r)
		if err != nil {
			e.seen.Unrecord(ctx, r.Key())
			res.Dropped++
			metrics.RecordRecordDropped("merge", "store")
			e.log.Warn(ctx, "claim failed", logger.Error(err), logger.Uint64("position", r.Position))
			continue
		}
		if claimed {
			res.Claimed++
		}
		e.counts[r.Symbol]++
		e.total++
		res.Accepted++
		highest = max(highest, r.Position)
		metrics.RecordRecordMerged(string(r.Symbol))
		accepted = append(accepted, r)
	}

	// Pushed in reverse so the feed head shows this batch in processing order.
	for i := len(accepted) - 1; i >= 0; i-- {
		r := accepted[i]
		e.feed.Push(types.FeedItem{Actor: r.Actor, Position: r.Position, Symbol: string(r.Symbol), Source: src.String()})
	}
	return res, highest
}

// publish rebuilds every view and swaps the snapshot. Must be called with
// e.mu held, or before the engine is shared.
func (e *Engine) publish(ctx context.Context) {
	entries, err := e.store.Latest(ctx, views.HeatmapCap)
	if err != nil {
		e.log.Error(ctx, "failed to read latest positions", logger.Error(err))
	}
	blocks := make([]types.BlockMood, 0, len(entries))
	for _, en := range entries {
		blocks = append(blocks, types.BlockMood{Position: en.Position, Symbol: string(en.Symbol)})
	}

	counts := make(map[model.Symbol]uint64, len(e.counts))
	for s, c := range e.counts {
		counts[s] = c
	}

	positions := e.store.Count(ctx)
	snap := views.Build(views.Input{
		Version: e.version,
		Counts:  counts,
		Blocks:  blocks,
		Feed:    e.feed.List(),
		Lookup: func(p uint64) (model.Symbol, bool) {
			s, err := e.store.Mood(ctx, p)
			return s, err == nil
		},
		Position:    e.position,
		Top:         e.top,
		Identity:    e.identity,
		UserHistory: e.userHistory,
		TotalMerged: e.total,
		Positions:   positions,
		Now:         e.now(),
	})
	e.snapshot.Store(&snap)

	metrics.UpdateModel(positions, e.position, e.version, e.feed.Len())
	for _, s := range model.Alphabet() {
		metrics.UpdateSymbolCount(string(s), int(counts[s]))
	}
}

// Snapshot returns the latest published views. The returned value is shared
// and must not be modified.
func (e *Engine) Snapshot() *types.Snapshot {
	return e.snapshot.Load()
}

// Mood returns the first-seen symbol for a position.
func (e *Engine) Mood(ctx context.Context, position uint64) (model.Symbol, bool) {
	s, err := e.store.Mood(ctx, position)
	return s, err == nil
}

// Seen returns the number of record identities tracked by the dedupe set.
func (e *Engine) Seen() int64 {
	return e.seen.Size()
}

// Close disposes the engine. Later Apply calls are no-ops.
func (e *Engine) Close() {
	e.closed.Store(true)
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}
