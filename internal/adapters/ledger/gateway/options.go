package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/moodblocks/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client) error

// WithHTTPClient replaces the HTTP client used for reads and writes.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) error {
		if h != nil {
			c.http = h
		}
		return nil
	}
}

// WithWebsocketURL overrides the push endpoint.
func WithWebsocketURL(raw string) Option {
	return func(c *Client) error {
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("invalid websocket url %q", raw)
		}
		c.wsURL = u
		return nil
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) error {
		if d != nil {
			c.dialer = d
		}
		return nil
	}
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) error {
		if minDelay > 0 {
			c.backoffMin = minDelay
		}
		if maxDelay >= c.backoffMin {
			c.backoffMax = maxDelay
		}
		return nil
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.log = l
		}
		return nil
	}
}
