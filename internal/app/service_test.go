package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/memledger"
	service "github.com/okian/moodblocks/internal/app"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/voice"
	"github.com/okian/moodblocks/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func raw(actor string, pos uint64, sym model.Symbol) model.RawRecord {
	return model.RawRecord{Actor: actor, Position: fmt.Sprint(pos), Symbol: string(sym)}
}

func newService(l ledger.Client, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithRefreshInterval(time.Hour),
		service.WithFetchTimeout(time.Second),
		service.WithShutdownTimeout(time.Second),
	}
	return service.New(l, append(base, opts...)...)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newService(memledger.New())
		defer svc.Stop()

		Convey("Then the empty views are already readable", func() {
			So(svc.Views(), ShouldNotBeNil)
			So(svc.Views().Version, ShouldEqual, uint64(0))
			So(len(svc.Leaderboard()), ShouldEqual, 4)
			So(svc.Feed(10), ShouldBeEmpty)
			pos, mood := svc.CurrentMood()
			So(pos, ShouldEqual, uint64(0))
			So(mood, ShouldEqual, "—")
		})

		Convey("Then stats report it as not started", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["inbox_capacity"], ShouldEqual, 1024)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a ledger with history", t, func() {
		l := memledger.New(memledger.WithHistory(
			raw("a", 1, model.Heart),
			raw("b", 2, model.Cool),
			raw("c", 3, model.Cool),
		))
		svc := newService(l)
		defer svc.Stop()

		Convey("When the service starts", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)

			Convey("Then the first snapshot is merged right away", func() {
				So(eventually(func() bool { return svc.Views().TotalMerged == 3 }), ShouldBeTrue)
				So(svc.Leaderboard()[0].Symbol, ShouldEqual, string(model.Cool))
				pos, mood := svc.CurrentMood()
				So(pos, ShouldEqual, uint64(3))
				So(mood, ShouldEqual, string(model.Cool))
				So(svc.GetStats()["started"], ShouldEqual, true)
			})

			Convey("Then live events reach the feed", func() {
				So(eventually(func() bool { return svc.Views().TotalMerged == 3 }), ShouldBeTrue)
				So(eventually(func() bool { return l.Subscribers(ledger.DefaultEvent) == 1 }), ShouldBeTrue)
				l.Publish(ledger.DefaultEvent, raw("live", 10, model.Angry))
				So(eventually(func() bool {
					f := svc.Feed(1)
					return len(f) == 1 && f[0].Actor == "live"
				}), ShouldBeTrue)
				So(svc.Feed(1)[0].Source, ShouldEqual, "live")
			})

			Convey("And after Stop the subscription is released", func() {
				So(eventually(func() bool { return l.Subscribers(ledger.DefaultEvent) == 1 }), ShouldBeTrue)
				svc.Stop()
				svc.Stop()
				So(l.Subscribers(ledger.DefaultEvent), ShouldEqual, 0)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(errors.Is(svc.Start(context.Background()), service.ErrStopped), ShouldBeTrue)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with an identity", t, func() {
		l := memledger.New()
		svc := newService(l, service.WithIdentity("me"))
		defer svc.Stop()
		So(svc.Start(ctx), ShouldBeNil)
		So(eventually(func() bool { return svc.Views().Version >= 1 }), ShouldBeTrue)

		Convey("When a valid symbol is submitted", func() {
			receipt, err := svc.Submit(ctx, "cool")

			Convey("Then the ledger accepts it and the model catches up once", func() {
				So(err, ShouldBeNil)
				So(receipt.Position, ShouldEqual, uint64(1))
				So(receipt.TxID, ShouldStartWith, "0x")
				So(eventually(func() bool { return svc.Views().TotalMerged == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return len(svc.Views().UserHistory) == 1 }), ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				So(svc.Views().TotalMerged, ShouldEqual, uint64(1))
			})
		})

		Convey("When the symbol is outside the alphabet", func() {
			_, err := svc.Submit(ctx, "Z")
			So(errors.Is(err, model.ErrUnknownSymbol), ShouldBeTrue)
		})

		Convey("When the ledger rejects the write", func() {
			before := svc.Views().Version
			l.FailSubmits(errors.New("gas"))
			_, err := svc.Submit(ctx, "heart")

			Convey("Then a submission error is returned and the model is untouched", func() {
				So(errors.Is(err, service.ErrSubmission), ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				So(svc.Views().Version, ShouldEqual, before)
			})
		})

		Convey("When a transcript is submitted", func() {
			sym, _, err := svc.SubmitTranscript(ctx, "I'm so happy today")
			So(err, ShouldBeNil)
			So(sym, ShouldEqual, model.Heart)

			_, _, err = svc.SubmitTranscript(ctx, "meh")
			So(errors.Is(err, voice.ErrNotUnderstood), ShouldBeTrue)
		})
	})

	Convey("Given a service without identity", t, func() {
		svc := newService(memledger.New())
		defer svc.Stop()

		_, err := svc.Submit(ctx, "cool")
		So(errors.Is(err, service.ErrNoIdentity), ShouldBeTrue)
		_, err = svc.UserHistory(ctx, "")
		So(errors.Is(err, service.ErrNoIdentity), ShouldBeTrue)
	})
}

func TestService_TransientSource(t *testing.T) {
	Convey("Given a ledger that fails reads", t, func() {
		l := memledger.New(memledger.WithHistory(raw("a", 1, model.Cry)))
		l.FailReads(errors.New("rpc down"))
		svc := newService(l)
		defer svc.Stop()
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then the cycle is skipped and the model kept", func() {
			time.Sleep(20 * time.Millisecond)
			So(svc.Views().Version, ShouldEqual, uint64(0))

			Convey("And a later refresh recovers", func() {
				l.FailReads(nil)
				svc.Refresh()
				So(eventually(func() bool { return svc.Views().TotalMerged == 1 }), ShouldBeTrue)
			})
		})
	})
}

func TestService_UserHistory(t *testing.T) {
	Convey("Given an actor with a long history", t, func() {
		history := make([]model.RawRecord, 0, 25)
		for p := uint64(1); p <= 25; p++ {
			history = append(history, raw("me", p, model.Heart))
		}
		svc := newService(memledger.New(memledger.WithHistory(history...)))
		defer svc.Stop()

		h, err := svc.UserHistory(context.Background(), "me")

		Convey("Then the last 20 are returned most recent first", func() {
			So(err, ShouldBeNil)
			So(len(h), ShouldEqual, 20)
			So(h[0].Position, ShouldEqual, uint64(25))
			So(h[19].Position, ShouldEqual, uint64(6))
		})
	})
}

// gatedLedger blocks the first history read until gate is closed.
type gatedLedger struct {
	*memledger.Ledger
	gate    chan struct{}
	entered chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (g *gatedLedger) FetchHistory(ctx context.Context) ([]model.RawRecord, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	defer close(g.done)
	return g.Ledger.FetchHistory(ctx)
}

func TestService_FetchAfterTeardown(t *testing.T) {
	Convey("Given a snapshot fetch still in flight", t, func() {
		g := &gatedLedger{
			Ledger:  memledger.New(memledger.WithHistory(raw("a", 1, model.Heart))),
			gate:    make(chan struct{}),
			entered: make(chan struct{}),
			done:    make(chan struct{}),
		}
		svc := newService(g)
		So(svc.Start(context.Background()), ShouldBeNil)
		<-g.entered

		Convey("When the service stops before the fetch resolves", func() {
			svc.Stop()
			close(g.gate)
			<-g.done
			time.Sleep(20 * time.Millisecond)

			Convey("Then the late result never reaches the model", func() {
				So(svc.Views().Version, ShouldEqual, uint64(0))
				So(svc.Views().TotalMerged, ShouldEqual, uint64(0))
			})
		})
	})
}

// hangingFeed accepts every history read but never completes a subscribe
// until the dial context ends.
type hangingFeed struct {
	*memledger.Ledger
	dials    atomic.Int32
	returned atomic.Bool
}

func (f *hangingFeed) Subscribe(ctx context.Context, _ string, _ ledger.Handler) (ledger.Subscription, error) {
	f.dials.Add(1)
	<-ctx.Done()
	f.returned.Store(true)
	return nil, ctx.Err()
}

func TestService_HangingLiveSource(t *testing.T) {
	Convey("Given a live source whose subscribe hangs", t, func() {
		f := &hangingFeed{Ledger: memledger.New(memledger.WithHistory(raw("a", 1, model.Heart)))}
		svc := newService(f,
			service.WithFetchTimeout(10*time.Second),
			service.WithShutdownTimeout(time.Second),
		)
		defer svc.Stop()

		start := time.Now()
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then the first snapshot merges without waiting on the dial", func() {
			So(eventually(func() bool { return svc.Views().TotalMerged == 1 }), ShouldBeTrue)
			So(time.Since(start) < time.Second, ShouldBeTrue)
			So(eventually(func() bool { return f.dials.Load() == 1 }), ShouldBeTrue)
			So(svc.GetStats()["live_active"], ShouldEqual, false)
		})

		Convey("Then refreshes do not pile up dials", func() {
			So(eventually(func() bool { return f.dials.Load() == 1 }), ShouldBeTrue)
			svc.Refresh()
			svc.Refresh()
			time.Sleep(20 * time.Millisecond)
			So(f.dials.Load(), ShouldEqual, int32(1))
		})

		Convey("Then Stop returns within the shutdown timeout and aborts the dial", func() {
			So(eventually(func() bool { return f.dials.Load() == 1 }), ShouldBeTrue)
			stopStart := time.Now()
			svc.Stop()
			So(time.Since(stopStart) < time.Second, ShouldBeTrue)
			So(eventually(f.returned.Load), ShouldBeTrue)
		})
	})
}
