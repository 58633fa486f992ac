package simulate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/logger"
)

// Stats summarises one run.
type Stats struct {
	Requested int
	Emitted   int64
	Failed    int64
	BySymbol  map[model.Symbol]int64 // successfully emitted only
	Duration  time.Duration
}

// Throughput returns emitted events per second.
func (s *Stats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Emitted) / s.Duration.Seconds()
}

// Run emits events through em with cfg.Workers concurrent emitters, paced by
// cfg.Rate. Individual failures are counted, not returned; the run fails only
// when its context ends early or nothing at all could be emitted.
func Run(ctx context.Context, cfg Config, events []Event, em Emitter, log logger.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	stats := &Stats{Requested: len(events), BySymbol: make(map[model.Symbol]int64)}
	var (
		emitted, failed atomic.Int64
		mu              sync.Mutex
	)

	log.Info(ctx, "emitting mood events",
		logger.Int("events", len(events)),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rate", cfg.Rate),
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, e := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}
			if err := em.Emit(gctx, e); err != nil {
				if failed.Add(1) == 1 {
					log.Warn(gctx, "emission failed", logger.String("actor", e.Actor), logger.Error(err))
				}
				return nil
			}
			emitted.Add(1)
			mu.Lock()
			stats.BySymbol[e.Symbol]++
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	stats.Duration = time.Since(start)
	stats.Emitted = emitted.Load()
	stats.Failed = failed.Load()

	log.Info(ctx, "emission finished",
		logger.Int("requested", stats.Requested),
		logger.Any("emitted", stats.Emitted),
		logger.Any("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("per_second", stats.Throughput()),
	)

	if err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	if stats.Requested > 0 && stats.Emitted == 0 {
		return stats, ErrAllFailed
	}
	return stats, nil
}
