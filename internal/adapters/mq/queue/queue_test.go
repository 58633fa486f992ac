package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/moodblocks/internal/adapters/mq/queue"
	"github.com/okian/moodblocks/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func batch(pos uint64) model.Batch {
	return model.Batch{Source: model.SourceLive, Records: []model.Record{{Actor: "a", Position: pos, Symbol: model.Heart}}}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		So(q.Cap(), ShouldEqual, 2)
		So(q.Len(ctx), ShouldEqual, 0)

		Convey("When it is filled", func() {
			So(q.Enqueue(ctx, batch(1)), ShouldBeNil)
			So(q.Enqueue(ctx, batch(2)), ShouldBeNil)

			Convey("Then further batches are rejected", func() {
				So(errors.Is(q.Enqueue(ctx, batch(3)), queue.ErrFull), ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("Then batches come out in order and the channel closes after drain", func() {
				So(q.Close(), ShouldBeNil)
				var got []uint64
				for b := range q.Dequeue(ctx) {
					got = append(got, b.Records[0].Position)
				}
				So(got, ShouldResemble, []uint64{1, 2})
			})
		})

		Convey("When it is closed", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails with ErrClosed", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, batch(1)), queue.ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then enqueue reports the context error", func() {
				So(errors.Is(q.Enqueue(cctx, batch(1)), context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the consumer context ends with batches still pending", func() {
			cctx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(cctx)
			So(q.Enqueue(ctx, batch(1)), ShouldBeNil)
			So(q.Enqueue(ctx, batch(2)), ShouldBeNil)
			cancel()

			Convey("Then the dequeue channel closes without anyone reading it", func() {
				closed := false
				deadline := time.After(time.Second)
				for !closed {
					select {
					case _, ok := <-ch:
						closed = !ok
					case <-deadline:
						So("timeout", ShouldBeEmpty)
						return
					}
				}
				So(closed, ShouldBeTrue)
				_ = q.Close()
			})
		})

		Convey("When a consumer is waiting", func() {
			ch := q.Dequeue(ctx)
			So(q.Enqueue(ctx, batch(9)), ShouldBeNil)

			Convey("Then it receives the batch", func() {
				select {
				case b := <-ch:
					So(b.Records[0].Position, ShouldEqual, uint64(9))
				case <-time.After(time.Second):
					So("timeout", ShouldBeEmpty)
				}
				_ = q.Close()
			})
		})
	})
}
