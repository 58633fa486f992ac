package ingest

import (
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/pkg/logger"
)

const (
	// DefaultMaxEntries is the snapshot truncation window.
	DefaultMaxEntries = 500
	// UserHistoryWindow bounds the identity-scoped history.
	UserHistoryWindow = 20
)

type options struct {
	maxEntries       int
	identity         string
	event            string
	subscribeTimeout time.Duration
	log              logger.Logger
	now              func() time.Time
}

func defaults() options {
	return options{
		maxEntries: DefaultMaxEntries,
		event:      ledger.DefaultEvent,
		log:        logger.Nop(),
		now:        time.Now,
	}
}

// Option configures a Fetcher or an Ingestor.
type Option func(*options)

// WithMaxEntries sets the snapshot truncation window.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithIdentity scopes an additional history fetch to one actor.
func WithIdentity(actor string) Option {
	return func(o *options) {
		o.identity = actor
	}
}

// WithEvent sets the push event name the Ingestor subscribes to.
func WithEvent(event string) Option {
	return func(o *options) {
		if event != "" {
			o.event = event
		}
	}
}

// WithSubscribeTimeout bounds how long Start waits for the push channel.
// Zero leaves the dial bounded only by the Start context.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.subscribeTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the clock stamped on batches.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
