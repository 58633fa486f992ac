package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/pkg/logger"
)

// Subscribe opens the push websocket for event. The first dial is synchronous
// so callers learn about an unreachable gateway; later drops are retried with
// capped exponential backoff until the subscription is released.
func (c *Client) Subscribe(ctx context.Context, event string, h ledger.Handler) (ledger.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler", ledger.ErrUnavailable)
	}
	target := c.streamURL(event)
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ledger.ErrUnavailable, target, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &stream{
		client:  c,
		target:  target,
		handler: h,
		conn:    conn,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     c.log.With(logger.String("event", event)),
	}
	go s.run(sctx)
	return ledger.NewSubscription(s.stop), nil
}

func (c *Client) streamURL(event string) string {
	u := *c.wsURL
	q := u.Query()
	q.Set("event", event)
	u.RawQuery = q.Encode()
	return u.String()
}

type stream struct {
	client  *Client
	target  string
	handler ledger.Handler

	mu   sync.Mutex
	conn *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
	log    logger.Logger
}

func (s *stream) run(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.read(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn(ctx, "ledger stream dropped", logger.Error(err))
		if !s.redial(ctx) {
			return
		}
	}
}

// read pumps messages until the connection fails.
func (s *stream) read(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: no connection", ledger.ErrUnavailable)
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		raw, err := ledger.DecodeRecord(msg)
		if err != nil {
			s.log.Warn(ctx, "undecodable push dropped", logger.Error(err))
			continue
		}
		s.handler(raw)
	}
}

// redial reconnects with backoff. Returns false once ctx is done.
func (s *stream) redial(ctx context.Context) bool {
	backoff := s.client.backoffMin
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, _, err := s.client.dialer.DialContext(ctx, s.target, nil)
		if err == nil {
			s.mu.Lock()
			if ctx.Err() != nil {
				s.mu.Unlock()
				_ = conn.Close()
				return false
			}
			s.conn = conn
			s.mu.Unlock()
			s.log.Info(ctx, "ledger stream reconnected")
			return true
		}
		s.log.Warn(ctx, "ledger stream dial failed", logger.Error(err), logger.String("retry_in", backoff.String()))
		backoff *= 2
		if backoff > s.client.backoffMax {
			backoff = s.client.backoffMax
		}
	}
}

func (s *stream) stop() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
}
