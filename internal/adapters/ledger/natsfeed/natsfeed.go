// Package natsfeed is a live ledger source backed by NATS core subjects.
// Records are published as wire JSON on <prefix>.<event>.
package natsfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/logger"
)

const defaultPrefix = "moodblocks"

// Feed implements ledger.Subscriber over a NATS connection.
type Feed struct {
	conn   *nats.Conn
	prefix string
	log    logger.Logger
}

// New builds a feed on an established connection.
func New(conn *nats.Conn, opts ...Option) *Feed {
	f := &Feed{conn: conn, prefix: defaultPrefix, log: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subject returns the subject carrying event.
func (f *Feed) Subject(event string) string {
	return f.prefix + "." + event
}

// Subscribe implements ledger.Subscriber.
func (f *Feed) Subscribe(ctx context.Context, event string, h ledger.Handler) (ledger.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.conn == nil || !f.conn.IsConnected() {
		return nil, fmt.Errorf("%w: nats not connected", ledger.ErrUnavailable)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler", ledger.ErrUnavailable)
	}
	subject := f.Subject(event)
	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		f.handle(msg, h)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %w", ledger.ErrUnavailable, subject, err)
	}
	f.log.Info(ctx, "subscribed", logger.String("subject", subject))
	return ledger.NewSubscription(func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			f.log.Warn(context.Background(), "unsubscribe failed", logger.String("subject", subject), logger.Error(err))
		}
	}), nil
}

func (f *Feed) handle(msg *nats.Msg, h ledger.Handler) {
	raw, err := ledger.DecodeRecord(msg.Data)
	if err != nil {
		f.log.Warn(context.Background(), "undecodable message dropped", logger.String("subject", msg.Subject), logger.Error(err))
		return
	}
	h(raw)
}

// Connect dials NATS with unlimited reconnects, logging connection changes.
func Connect(url string, log logger.Logger) (*nats.Conn, error) {
	if log == nil {
		log = logger.Nop()
	}
	nc, err := nats.Connect(url,
		nats.Name("moodblocks"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn(context.Background(), "nats disconnected", logger.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info(context.Background(), "nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect nats %s: %w", ledger.ErrUnavailable, url, err)
	}
	return nc, nil
}

// Publish sends r as wire JSON on the subject of event.
func (f *Feed) Publish(event string, r model.RawRecord) error {
	if f.conn == nil {
		return fmt.Errorf("%w: nats not connected", ledger.ErrUnavailable)
	}
	data, err := ledger.EncodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := f.conn.Publish(f.Subject(event), data); err != nil {
		return fmt.Errorf("%w: publish: %w", ledger.ErrUnavailable, err)
	}
	return nil
}
