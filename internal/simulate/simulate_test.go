package simulate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/memledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/types"
	"github.com/okian/moodblocks/internal/simulate"
	"github.com/okian/moodblocks/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func smallConfig() simulate.Config {
	cfg := simulate.DefaultConfig()
	cfg.Events = 30
	cfg.Actors = 4
	cfg.Workers = 3
	cfg.Seed = 42
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := simulate.DefaultConfig()
		So(cfg.Validate(), ShouldBeNil)

		Convey("Then impossible values are rejected", func() {
			mutations := []func(*simulate.Config){
				func(c *simulate.Config) { c.Events = 0 },
				func(c *simulate.Config) { c.Actors = 0 },
				func(c *simulate.Config) { c.Workers = -1 },
				func(c *simulate.Config) { c.Rate = -1 },
				func(c *simulate.Config) { c.EventsPerBlock = 0 },
				func(c *simulate.Config) { c.StartPosition = 0 },
				func(c *simulate.Config) { c.Timeout = 0 },
			}
			for _, mutate := range mutations {
				c := simulate.DefaultConfig()
				mutate(&c)
				So(errors.Is(c.Validate(), simulate.ErrInvalidConfig), ShouldBeTrue)
			}
		})
	})
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded config", t, func() {
		cfg := smallConfig()
		events := simulate.Generate(cfg)

		Convey("Then the requested number of valid events is built", func() {
			So(len(events), ShouldEqual, 30)
			actors := map[string]bool{}
			for _, e := range events {
				So(e.Symbol.Valid(), ShouldBeTrue)
				actors[e.Actor] = true
			}
			So(len(actors), ShouldBeLessThanOrEqualTo, 4)
		})

		Convey("Then positions advance once per block", func() {
			So(events[0].Position, ShouldEqual, uint64(1))
			So(events[2].Position, ShouldEqual, uint64(1))
			So(events[3].Position, ShouldEqual, uint64(2))
			So(events[29].Position, ShouldEqual, uint64(10))
		})

		Convey("Then the same seed yields the same symbols", func() {
			again := simulate.Generate(cfg)
			for i := range events {
				So(again[i].Symbol, ShouldEqual, events[i].Symbol)
			}
		})

		Convey("Then the raw form parses back", func() {
			rec, err := model.Normalize(events[5].Raw())
			So(err, ShouldBeNil)
			So(rec.Position, ShouldEqual, events[5].Position)
			So(rec.Symbol, ShouldEqual, events[5].Symbol)
		})

		Convey("Then the tally sums to the event count", func() {
			var sum int64
			for _, n := range simulate.Tally(events) {
				sum += n
			}
			So(sum, ShouldEqual, int64(30))
		})
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory ledger", t, func() {
		l := memledger.New()
		cfg := smallConfig()
		events := simulate.Generate(cfg)

		Convey("When the events are written through it", func() {
			stats, err := simulate.Run(ctx, cfg, events, simulate.WriterEmitter{W: l}, logger.Nop())

			Convey("Then every event lands exactly once", func() {
				So(err, ShouldBeNil)
				So(stats.Emitted, ShouldEqual, int64(30))
				So(stats.Failed, ShouldEqual, int64(0))
				history, err := l.FetchHistory(ctx)
				So(err, ShouldBeNil)
				So(len(history), ShouldEqual, 30)
				So(stats.BySymbol, ShouldResemble, simulate.Tally(events))
			})
		})
	})

	Convey("Given an emitter that always fails", t, func() {
		cfg := smallConfig()
		em := simulate.EmitterFunc(func(context.Context, simulate.Event) error { return errors.New("down") })

		stats, err := simulate.Run(ctx, cfg, simulate.Generate(cfg), em, nil)

		Convey("Then the run reports total failure", func() {
			So(errors.Is(err, simulate.ErrAllFailed), ShouldBeTrue)
			So(stats.Failed, ShouldEqual, int64(30))
		})
	})

	Convey("Given an emitter that fails every other call", t, func() {
		cfg := smallConfig()
		var n atomic.Int64
		em := simulate.EmitterFunc(func(context.Context, simulate.Event) error {
			if n.Add(1)%2 == 0 {
				return errors.New("flaky")
			}
			return nil
		})

		stats, err := simulate.Run(ctx, cfg, simulate.Generate(cfg), em, nil)

		Convey("Then failures are counted without failing the run", func() {
			So(err, ShouldBeNil)
			So(stats.Emitted, ShouldEqual, int64(15))
			So(stats.Failed, ShouldEqual, int64(15))
			So(stats.Throughput(), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a rate limit", t, func() {
		cfg := smallConfig()
		cfg.Events = 5
		cfg.Rate = 100

		start := time.Now()
		stats, err := simulate.Run(ctx, cfg, simulate.Generate(cfg), simulate.EmitterFunc(func(context.Context, simulate.Event) error { return nil }), nil)

		Convey("Then emissions are paced", func() {
			So(err, ShouldBeNil)
			So(stats.Emitted, ShouldEqual, int64(5))
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 35*time.Millisecond)
		})
	})

	Convey("Given an invalid config", t, func() {
		cfg := smallConfig()
		cfg.Workers = 0
		_, err := simulate.Run(ctx, cfg, nil, simulate.EmitterFunc(func(context.Context, simulate.Event) error { return nil }), nil)
		So(errors.Is(err, simulate.ErrInvalidConfig), ShouldBeTrue)
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	raws   []model.RawRecord
}

func (p *recordingPublisher) Publish(event string, r model.RawRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.raws = append(p.raws, r)
	return nil
}

func TestFeedEmitter(t *testing.T) {
	Convey("Given a feed emitter without an event name", t, func() {
		p := &recordingPublisher{}
		em := simulate.FeedEmitter{P: p}
		e := simulate.Event{Actor: "0xa", Symbol: model.Cry, Position: 12}

		So(em.Emit(context.Background(), e), ShouldBeNil)

		Convey("Then the default event carries the raw record", func() {
			So(p.events, ShouldResemble, []string{ledger.DefaultEvent})
			So(p.raws[0], ShouldResemble, e.Raw())
			So(p.raws[0].Position, ShouldEqual, "12")
		})

		Convey("And a cancelled context publishes nothing", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(em.Emit(ctx, e), ShouldNotBeNil)
			So(len(p.raws), ShouldEqual, 1)
		})
	})
}

func board(heart, cool, cry, angry uint64) []types.LeaderboardEntry {
	return []types.LeaderboardEntry{
		{Symbol: string(model.Heart), Count: heart},
		{Symbol: string(model.Cool), Count: cool},
		{Symbol: string(model.Cry), Count: cry},
		{Symbol: string(model.Angry), Count: angry},
	}
}

func TestVerify(t *testing.T) {
	Convey("Given a leaderboard before and after a run", t, func() {
		before := board(1, 2, 0, 0)
		emitted := map[model.Symbol]int64{model.Heart: 2, model.Cry: 1}

		Convey("Then exact growth verifies", func() {
			So(simulate.Verify(before, board(3, 2, 1, 0), emitted), ShouldBeNil)
		})

		Convey("Then missing or extra counts are reported", func() {
			err := simulate.Verify(before, board(2, 3, 1, 0), emitted)
			So(errors.Is(err, simulate.ErrMismatch), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "heart")
			So(err.Error(), ShouldContainSubstring, "cool")
		})
	})
}
