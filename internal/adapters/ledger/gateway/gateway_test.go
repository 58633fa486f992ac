package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/gateway"
	"github.com/okian/moodblocks/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeGateway struct {
	mu       sync.Mutex
	posted   []map[string]string
	reject   bool
	push     chan string
	upgrader websocket.Upgrader
	event    string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{push: make(chan string, 8)}
}

func (f *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"user":"a","blockNumber":10,"emoji":"😎"},{"user":"b","blockNumber":"11","emoji":"😡"}]`))
	})
	mux.HandleFunc("GET /history/{actor}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"blockNumber": 10, "emoji": "😎"}})
	})
	mux.HandleFunc("GET /block-number", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"blockNumber":"0x10"}`))
	})
	mux.HandleFunc("GET /top", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"emoji":"😎"}`))
	})
	mux.HandleFunc("POST /moods", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.posted = append(f.posted, body)
		reject := f.reject
		f.mu.Unlock()
		if reject {
			http.Error(w, "execution reverted", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"txHash":"0xabc","blockNumber":12}`))
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.event = r.URL.Query().Get("event")
		f.mu.Unlock()
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for msg := range f.push {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	})
	return mux
}

func TestGatewayReads(t *testing.T) {
	ctx := context.Background()

	Convey("Given a gateway server", t, func() {
		f := newFakeGateway()
		srv := httptest.NewServer(f.handler())
		defer srv.Close()

		c, err := gateway.New(srv.URL)
		So(err, ShouldBeNil)

		Convey("Then history is decoded from numbers and strings", func() {
			h, err := c.FetchHistory(ctx)
			So(err, ShouldBeNil)
			So(h, ShouldResemble, []model.RawRecord{
				{Actor: "a", Position: "10", Symbol: "😎"},
				{Actor: "b", Position: "11", Symbol: "😡"},
			})
		})

		Convey("Then user history fills in the actor", func() {
			h, err := c.FetchUserHistory(ctx, "me")
			So(err, ShouldBeNil)
			So(len(h), ShouldEqual, 1)
			So(h[0].Actor, ShouldEqual, "me")
		})

		Convey("Then the current position accepts hex strings", func() {
			p, err := c.CurrentPosition(ctx)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, uint64(16))
		})

		Convey("Then the top symbol is read", func() {
			top, err := c.TopSymbol(ctx)
			So(err, ShouldBeNil)
			So(top, ShouldEqual, "😎")
		})

		Convey("When a submission is accepted", func() {
			rc, err := c.Submit(ctx, "me", "😭")
			So(err, ShouldBeNil)

			Convey("Then the receipt carries the tx hash and position", func() {
				So(rc.TxID, ShouldEqual, "0xabc")
				So(rc.Position, ShouldEqual, uint64(12))
				f.mu.Lock()
				defer f.mu.Unlock()
				So(f.posted[0]["user"], ShouldEqual, "me")
				So(f.posted[0]["emoji"], ShouldEqual, "😭")
			})
		})

		Convey("When a submission is rejected", func() {
			f.mu.Lock()
			f.reject = true
			f.mu.Unlock()
			_, err := c.Submit(ctx, "me", "😭")

			Convey("Then the error is a rejection carrying the status", func() {
				So(errors.Is(err, ledger.ErrRejected), ShouldBeTrue)
				var se *gateway.StatusError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Code, ShouldEqual, http.StatusBadRequest)
				So(se.Body, ShouldContainSubstring, "reverted")
			})
		})
	})

	Convey("Given an unreachable gateway", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, err := gateway.New(url)
		So(err, ShouldBeNil)

		_, err = c.FetchHistory(ctx)
		So(errors.Is(err, ledger.ErrUnavailable), ShouldBeTrue)
	})

	Convey("Given invalid configuration", t, func() {
		_, err := gateway.New("not a url")
		So(err, ShouldNotBeNil)
		_, err = gateway.New("http://localhost:1", gateway.WithWebsocketURL("http://nope"))
		So(err, ShouldNotBeNil)
	})
}

func TestGatewayStream(t *testing.T) {
	ctx := context.Background()

	Convey("Given a gateway pushing events", t, func() {
		f := newFakeGateway()
		srv := httptest.NewServer(f.handler())
		defer srv.Close()

		c, err := gateway.New(srv.URL, gateway.WithBackoff(10*time.Millisecond, 50*time.Millisecond))
		So(err, ShouldBeNil)

		got := make(chan model.RawRecord, 8)
		sub, err := c.Subscribe(ctx, ledger.DefaultEvent, func(r model.RawRecord) { got <- r })
		So(err, ShouldBeNil)

		f.push <- `not json`
		f.push <- `{"user":"z","blockNumber":99,"emoji":"❤️"}`

		Convey("Then valid pushes reach the handler", func() {
			select {
			case r := <-got:
				So(r, ShouldResemble, model.RawRecord{Actor: "z", Position: "99", Symbol: "❤️"})
			case <-time.After(2 * time.Second):
				So("no push received", ShouldBeEmpty)
			}
			f.mu.Lock()
			So(f.event, ShouldEqual, ledger.DefaultEvent)
			f.mu.Unlock()
		})

		Convey("Then unsubscribing is idempotent", func() {
			sub.Unsubscribe()
			sub.Unsubscribe()
		})

		sub.Unsubscribe()
		close(f.push)
	})

	Convey("Given no websocket endpoint", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		c, err := gateway.New(srv.URL, gateway.WithWebsocketURL(strings.Replace(srv.URL, "http", "ws", 1)+"/nope"))
		So(err, ShouldBeNil)

		_, err = c.Subscribe(ctx, ledger.DefaultEvent, func(model.RawRecord) {})
		So(errors.Is(err, ledger.ErrUnavailable), ShouldBeTrue)
	})
}
