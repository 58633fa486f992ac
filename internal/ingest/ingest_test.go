package ingest_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/memledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/ingest"
	. "github.com/smartystreets/goconvey/convey"
)

func seeded(n int) *memledger.Ledger {
	recs := make([]model.RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		recs = append(recs, model.RawRecord{Actor: "u" + strconv.Itoa(i%7), Position: strconv.Itoa(i), Symbol: string(model.Alphabet()[i%4])})
	}
	return memledger.New(memledger.WithHistory(recs...))
}

func TestFetcher(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ledger with 800 records", t, func() {
		l := seeded(800)
		f := ingest.NewFetcher(l)
		So(f.MaxEntries(), ShouldEqual, ingest.DefaultMaxEntries)

		Convey("When a snapshot is fetched", func() {
			b, err := f.Fetch(ctx)
			So(err, ShouldBeNil)

			Convey("Then only the most recent 500 are kept, ascending", func() {
				So(b.Source, ShouldEqual, model.SourceSnapshot)
				So(len(b.Records), ShouldEqual, 500)
				So(b.Records[0].Position, ShouldEqual, uint64(301))
				So(b.Records[499].Position, ShouldEqual, uint64(800))
				So(b.Position, ShouldEqual, uint64(800))
				So(b.Top.Valid(), ShouldBeTrue)
				So(b.HasUserHistory, ShouldBeFalse)
			})
		})

		Convey("When the window is smaller", func() {
			b, err := ingest.NewFetcher(l, ingest.WithMaxEntries(10)).Fetch(ctx)
			So(err, ShouldBeNil)
			So(len(b.Records), ShouldEqual, 10)
			So(b.Records[0].Position, ShouldEqual, uint64(791))
		})
	})

	Convey("Given history out of order with malformed entries", t, func() {
		l := memledger.New(memledger.WithHistory(
			model.RawRecord{Actor: "a", Position: "5", Symbol: "😎"},
			model.RawRecord{Actor: "b", Position: "x", Symbol: "😎"},
			model.RawRecord{Actor: "c", Position: "3", Symbol: "Z"},
			model.RawRecord{Actor: "d", Position: "2", Symbol: "😡"},
			model.RawRecord{Actor: "me", Position: "4", Symbol: "😭"},
		))
		f := ingest.NewFetcher(l, ingest.WithIdentity("me"))

		Convey("When a snapshot is fetched", func() {
			b, err := f.Fetch(ctx)
			So(err, ShouldBeNil)

			Convey("Then malformed entries are dropped and the rest sorted", func() {
				So(len(b.Records), ShouldEqual, 3)
				So(b.Records[0].Position, ShouldEqual, uint64(2))
				So(b.Records[2].Position, ShouldEqual, uint64(5))
			})

			Convey("Then a small window keeps the highest positions, not the last raw entries", func() {
				b, err := ingest.NewFetcher(l, ingest.WithMaxEntries(2)).Fetch(ctx)
				So(err, ShouldBeNil)
				So(len(b.Records), ShouldEqual, 2)
				So(b.Records[0].Position, ShouldEqual, uint64(4))
				So(b.Records[1].Position, ShouldEqual, uint64(5))
			})

			Convey("Then the identity history is attached", func() {
				So(b.HasUserHistory, ShouldBeTrue)
				So(b.Identity, ShouldEqual, "me")
				So(len(b.UserHistory), ShouldEqual, 1)
				So(b.UserHistory[0].Symbol, ShouldEqual, model.Cry)
			})
		})
	})

	Convey("Given a failing ledger", t, func() {
		l := seeded(3)
		l.FailReads(errors.New("timeout"))

		Convey("Then the fetch reports a transient source error", func() {
			_, err := ingest.NewFetcher(l).Fetch(ctx)
			So(errors.Is(err, ingest.ErrTransientSource), ShouldBeTrue)
		})
	})

	Convey("Given a user with a long history", t, func() {
		recs := make([]model.RawRecord, 0, 30)
		for i := 1; i <= 30; i++ {
			recs = append(recs, model.RawRecord{Actor: "me", Position: strconv.Itoa(i), Symbol: "😎"})
		}
		l := memledger.New(memledger.WithHistory(recs...))

		Convey("Then FetchUser keeps the last 20 in ledger order", func() {
			h, err := ingest.NewFetcher(l).FetchUser(ctx, "me")
			So(err, ShouldBeNil)
			So(len(h), ShouldEqual, ingest.UserHistoryWindow)
			So(h[0].Position, ShouldEqual, uint64(11))
			So(h[19].Position, ShouldEqual, uint64(30))
		})
	})
}

type sinkRecorder struct {
	mu      sync.Mutex
	batches []model.Batch
	err     error
}

func (s *sinkRecorder) sink(_ context.Context, b model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// slowSubscriber holds every Subscribe until gate closes. With honorCtx it
// gives up as soon as the dial context ends.
type slowSubscriber struct {
	*memledger.Ledger
	gate     chan struct{}
	entered  chan struct{}
	once     sync.Once
	honorCtx bool
}

func (s *slowSubscriber) Subscribe(ctx context.Context, event string, h ledger.Handler) (ledger.Subscription, error) {
	s.once.Do(func() { close(s.entered) })
	if s.honorCtx {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.gate:
		}
	} else {
		<-s.gate
	}
	return s.Ledger.Subscribe(context.Background(), event, h)
}

func newSlowSubscriber(honorCtx bool) *slowSubscriber {
	return &slowSubscriber{
		Ledger:   memledger.New(),
		gate:     make(chan struct{}),
		entered:  make(chan struct{}),
		honorCtx: honorCtx,
	}
}

func TestIngestor(t *testing.T) {
	ctx := context.Background()

	Convey("Given an ingestor on a memory ledger", t, func() {
		l := memledger.New()
		rec := &sinkRecorder{}
		in := ingest.NewIngestor(l, rec.sink)

		Convey("When started and events are pushed", func() {
			So(in.Start(ctx), ShouldBeNil)
			So(in.Start(ctx), ShouldBeNil)
			So(in.Active(), ShouldBeTrue)
			So(l.Subscribers(ledger.DefaultEvent), ShouldEqual, 1)

			l.Publish(ledger.DefaultEvent, model.RawRecord{Actor: "a", Position: "7", Symbol: "😎"})
			l.Publish(ledger.DefaultEvent, model.RawRecord{Actor: "b", Position: "8", Symbol: "Z"})
			l.Publish("OtherEvent", model.RawRecord{Actor: "c", Position: "9", Symbol: "😎"})

			Convey("Then each valid record is delivered once as a live batch", func() {
				So(rec.count(), ShouldEqual, 1)
				So(rec.batches[0].Source, ShouldEqual, model.SourceLive)
				So(rec.batches[0].Records[0], ShouldResemble, model.Record{Actor: "a", Position: 7, Symbol: model.Cool})
			})

			Convey("Then Stop is idempotent and stops delivery", func() {
				in.Stop()
				in.Stop()
				So(in.Active(), ShouldBeFalse)
				l.Publish(ledger.DefaultEvent, model.RawRecord{Actor: "d", Position: "10", Symbol: "😎"})
				So(rec.count(), ShouldEqual, 1)
			})
		})

		Convey("When the sink rejects", func() {
			rec.err = errors.New("full")
			So(in.Start(ctx), ShouldBeNil)
			So(func() {
				l.Publish(ledger.DefaultEvent, model.RawRecord{Actor: "a", Position: "7", Symbol: "😎"})
			}, ShouldNotPanic)
			So(rec.count(), ShouldEqual, 0)
		})

		Convey("When subscribing fails", func() {
			l.FailSubscribe(errors.New("refused"))
			err := in.Start(ctx)

			Convey("Then the error is transient and Stop is still safe", func() {
				So(errors.Is(err, ingest.ErrTransientSource), ShouldBeTrue)
				So(in.Active(), ShouldBeFalse)
				So(func() { in.Stop() }, ShouldNotPanic)
			})
		})

		Convey("When never started", func() {
			So(func() { in.Stop() }, ShouldNotPanic)
		})
	})

	Convey("Given an ingestor with a custom event", t, func() {
		l := memledger.New()
		rec := &sinkRecorder{}
		in := ingest.NewIngestor(l, rec.sink, ingest.WithEvent("Custom"))
		So(in.Start(ctx), ShouldBeNil)
		l.Push("Custom", model.RawRecord{Actor: "a", Position: "1", Symbol: "❤️"})
		So(rec.count(), ShouldEqual, 1)
		in.Stop()
	})

	Convey("Given a push channel that never answers", t, func() {
		sub := newSlowSubscriber(true)
		rec := &sinkRecorder{}
		in := ingest.NewIngestor(sub, rec.sink, ingest.WithSubscribeTimeout(50*time.Millisecond))

		Convey("Then Start gives up after the subscribe timeout", func() {
			start := time.Now()
			err := in.Start(ctx)
			So(errors.Is(err, ingest.ErrTransientSource), ShouldBeTrue)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(time.Since(start) < time.Second, ShouldBeTrue)
			So(in.Active(), ShouldBeFalse)
		})
	})

	Convey("Given a Start still dialing", t, func() {
		sub := newSlowSubscriber(false)
		rec := &sinkRecorder{}
		in := ingest.NewIngestor(sub, rec.sink)

		errc := make(chan error, 1)
		go func() { errc <- in.Start(ctx) }()
		<-sub.entered

		Convey("When Stop is called meanwhile", func() {
			start := time.Now()
			in.Stop()
			stopped := time.Since(start)
			close(sub.gate)

			Convey("Then Stop does not wait and the late subscription is released", func() {
				So(stopped < 100*time.Millisecond, ShouldBeTrue)
				var err error
				select {
				case err = <-errc:
				case <-time.After(time.Second):
					So("timeout", ShouldBeEmpty)
				}
				So(errors.Is(err, ingest.ErrTransientSource), ShouldBeTrue)
				So(in.Active(), ShouldBeFalse)
				So(sub.Subscribers(ledger.DefaultEvent), ShouldEqual, 0)
			})
		})

		Convey("When a second Start races the first", func() {
			So(in.Start(ctx), ShouldBeNil)
			So(in.Active(), ShouldBeFalse)
			close(sub.gate)
			So(<-errc, ShouldBeNil)
			So(in.Active(), ShouldBeTrue)
			So(sub.Subscribers(ledger.DefaultEvent), ShouldEqual, 1)
			in.Stop()
		})
	})
}
