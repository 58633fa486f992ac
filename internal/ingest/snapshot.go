// Package ingest turns ledger reads and pushes into validated batches.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

// Fetcher pulls bounded snapshots of the ledger history.
type Fetcher struct {
	reader ledger.Reader
	opts   options
}

// NewFetcher creates a snapshot fetcher.
func NewFetcher(r ledger.Reader, opts ...Option) *Fetcher {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return &Fetcher{reader: r, opts: o}
}

// MaxEntries returns the truncation window.
func (f *Fetcher) MaxEntries() int { return f.opts.maxEntries }

// Identity returns the actor whose history is fetched alongside snapshots.
func (f *Fetcher) Identity() string { return f.opts.identity }

// Fetch reads the current position and the history, keeps the MaxEntries
// highest positions and returns them ascending by position. Errors wrap
// ErrTransientSource; the caller keeps its previous model.
func (f *Fetcher) Fetch(ctx context.Context) (model.Batch, error) {
	start := time.Now()
	log := f.opts.log

	position, err := f.reader.CurrentPosition(ctx)
	if err != nil {
		metrics.RecordSnapshotFetch("error", msSince(start), 0)
		return model.Batch{}, fmt.Errorf("%w: current position: %w", ErrTransientSource, err)
	}

	raws, err := f.reader.FetchHistory(ctx)
	if err != nil {
		metrics.RecordSnapshotFetch("error", msSince(start), 0)
		return model.Batch{}, fmt.Errorf("%w: history: %w", ErrTransientSource, err)
	}

	records := normalizeAll(ctx, log, "snapshot", raws)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Position < records[j].Position })
	if len(records) > f.opts.maxEntries {
		metrics.RecordSnapshotTruncated()
		log.Debug(ctx, "snapshot truncated", logger.Int("entries", len(records)), logger.Int("kept", f.opts.maxEntries))
		records = records[len(records)-f.opts.maxEntries:]
	}

	b := model.Batch{
		Source:    model.SourceSnapshot,
		Records:   records,
		Position:  position,
		FetchedAt: f.opts.now(),
	}

	if top, err := f.reader.TopSymbol(ctx); err != nil {
		log.Warn(ctx, "top symbol unavailable", logger.Error(err))
	} else if s, err := model.ParseSymbol(top); err == nil {
		b.Top = s
	}

	if f.opts.identity != "" {
		hist, err := f.FetchUser(ctx, f.opts.identity)
		if err != nil {
			log.Warn(ctx, "identity history unavailable", logger.String("identity", f.opts.identity), logger.Error(err))
		} else {
			b.Identity = f.opts.identity
			b.UserHistory = hist
			b.HasUserHistory = true
		}
	}

	metrics.RecordSnapshotFetch("ok", msSince(start), len(records))
	return b, nil
}

// FetchUser reads one actor's history and keeps its last UserHistoryWindow
// records in ledger order.
func (f *Fetcher) FetchUser(ctx context.Context, actor string) ([]model.Record, error) {
	raws, err := f.reader.FetchUserHistory(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("%w: user history: %w", ErrTransientSource, err)
	}
	for i := range raws {
		if raws[i].Actor == "" {
			raws[i].Actor = actor
		}
	}
	records := normalizeAll(ctx, f.opts.log, "user_history", raws)
	if len(records) > UserHistoryWindow {
		records = records[len(records)-UserHistoryWindow:]
	}
	return records, nil
}

func normalizeAll(ctx context.Context, log logger.Logger, stage string, raws []model.RawRecord) []model.Record {
	out := make([]model.Record, 0, len(raws))
	for _, raw := range raws {
		r, err := model.Normalize(raw)
		if err != nil {
			metrics.RecordRecordDropped(stage, model.DropReason(err))
			log.Debug(ctx, "malformed record dropped", logger.String("stage", stage), logger.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
