// Package ledger defines the contract of the external ledger the engine reads
// from and writes to, plus helpers shared by its adapters.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/okian/moodblocks/internal/domain/model"
)

// DefaultEvent is the push event carrying new mood records.
const DefaultEvent = "MoodSet"

// Handler receives one pushed record.
type Handler func(model.RawRecord)

// Receipt confirms an accepted submission.
type Receipt struct {
	TxID        string    `json:"tx_id"`
	Actor       string    `json:"actor"`
	Symbol      string    `json:"symbol"`
	Position    uint64    `json:"position,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Reader is the read side of the ledger.
type Reader interface {
	// FetchHistory returns the full event history in ledger order.
	FetchHistory(ctx context.Context) ([]model.RawRecord, error)
	// FetchUserHistory returns the events of a single actor.
	FetchUserHistory(ctx context.Context, actor string) ([]model.RawRecord, error)
	// CurrentPosition returns the ledger's notion of "now".
	CurrentPosition(ctx context.Context) (uint64, error)
	// TopSymbol returns the ledger's own most frequent symbol.
	TopSymbol(ctx context.Context) (string, error)
}

// Writer is the write side of the ledger.
type Writer interface {
	Submit(ctx context.Context, actor, symbol string) (Receipt, error)
}

// Subscription is released with Unsubscribe, which is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Subscriber delivers records pushed under an event name.
type Subscriber interface {
	Subscribe(ctx context.Context, event string, h Handler) (Subscription, error)
}

// Client is the full ledger collaborator.
type Client interface {
	Reader
	Writer
	Subscriber
}

// Composite serves reads and writes from one client and live pushes from another subscriber.
type Composite struct {
	Reader
	Writer
	Subscriber
}

// WithSubscriber returns c with its live source replaced by s.
func WithSubscriber(c Client, s Subscriber) Client {
	if s == nil {
		return c
	}
	return Composite{Reader: c, Writer: c, Subscriber: s}
}

type subscription struct {
	once sync.Once
	stop func()
}

func (s *subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// NewSubscription wraps stop so that it runs at most once.
func NewSubscription(stop func()) Subscription {
	return &subscription{stop: stop}
}
