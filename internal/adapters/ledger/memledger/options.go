package memledger

import (
	"time"

	"github.com/okian/moodblocks/internal/domain/model"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithHistory seeds the ledger with records.
func WithHistory(records ...model.RawRecord) Option {
	return func(l *Ledger) {
		l.Append(records...)
	}
}

// WithClock overrides the clock stamped on receipts.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithEvent sets the event name submissions are pushed under. Defaults to
// ledger.DefaultEvent.
func WithEvent(event string) Option {
	return func(l *Ledger) {
		if event != "" {
			l.event = event
		}
	}
}
