package ledger_test

import (
	"errors"
	"testing"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWire(t *testing.T) {
	Convey("Given wire payloads", t, func() {
		Convey("When blockNumber is a number", func() {
			r, err := ledger.DecodeRecord([]byte(`{"user":"0xa","blockNumber":120,"emoji":"😎"}`))
			So(err, ShouldBeNil)
			So(r, ShouldResemble, model.RawRecord{Actor: "0xa", Position: "120", Symbol: "😎"})
		})

		Convey("When blockNumber is a string", func() {
			r, err := ledger.DecodeRecord([]byte(`{"user":"0xa","blockNumber":"0x78","emoji":"😎"}`))
			So(err, ShouldBeNil)
			So(r.Position, ShouldEqual, "0x78")
		})

		Convey("When blockNumber is missing or null", func() {
			r, err := ledger.DecodeRecord([]byte(`{"user":"0xa","blockNumber":null,"emoji":"😎"}`))
			So(err, ShouldBeNil)
			So(r.Position, ShouldEqual, "")
			_, err = model.Normalize(r)
			So(errors.Is(err, model.ErrMalformedRecord), ShouldBeTrue)
		})

		Convey("When the payload is not JSON", func() {
			_, err := ledger.DecodeRecord([]byte(`nope`))
			So(errors.Is(err, ledger.ErrBadPayload), ShouldBeTrue)
			_, err = ledger.DecodeRecords([]byte(`{}`))
			So(errors.Is(err, ledger.ErrBadPayload), ShouldBeTrue)
		})

		Convey("When a record round-trips", func() {
			in := model.RawRecord{Actor: "u", Position: "42", Symbol: "😭"}
			b, err := ledger.EncodeRecord(in)
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"blockNumber":42`)
			out, err := ledger.DecodeRecord(b)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, in)
		})

		Convey("When a non-numeric position is encoded", func() {
			b, err := ledger.EncodeRecord(model.RawRecord{Actor: "u", Position: "ten", Symbol: "Z"})
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"blockNumber":"ten"`)
		})
	})
}

func TestSubscription(t *testing.T) {
	Convey("Given a subscription", t, func() {
		calls := 0
		s := ledger.NewSubscription(func() { calls++ })

		Convey("Then Unsubscribe runs the stop func once", func() {
			s.Unsubscribe()
			s.Unsubscribe()
			So(calls, ShouldEqual, 1)
		})

		Convey("Then a nil stop func is fine", func() {
			So(func() { ledger.NewSubscription(nil).Unsubscribe() }, ShouldNotPanic)
		})
	})
}
