// Package gateway talks to the ledger through its JSON-over-HTTP gateway and
// receives pushed events over a websocket.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/logger"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultBackoffMin  = time.Second
	defaultBackoffMax  = 60 * time.Second
	maxErrorBody       = 512
)

// Client implements ledger.Client against the gateway.
type Client struct {
	baseURL    *url.URL
	wsURL      *url.URL
	http       *http.Client
	dialer     *websocket.Dialer
	backoffMin time.Duration
	backoffMax time.Duration
	log        logger.Logger
}

// New builds a client for the gateway at baseURL. The websocket endpoint
// defaults to baseURL with a ws(s) scheme and the /ws path.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid gateway url %q", ledger.ErrUnavailable, baseURL)
	}
	c := &Client{
		baseURL:    u,
		http:       &http.Client{Timeout: defaultHTTPTimeout},
		dialer:     websocket.DefaultDialer,
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
		log:        logger.Nop(),
	}
	ws := *u
	ws.Path = u.Path + "/ws"
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	c.wsURL = &ws

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	for _, p := range parts {
		u.Path += "/" + url.PathEscape(p)
	}
	return u.String()
}

// do runs a request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ledger.ErrUnavailable, method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrBadPayload, err)
	}
	return nil
}

// FetchHistory implements ledger.Reader.
func (c *Client) FetchHistory(ctx context.Context) ([]model.RawRecord, error) {
	var ws []ledger.WireRecord
	if err := c.do(ctx, http.MethodGet, c.endpoint("history"), nil, &ws); err != nil {
		return nil, err
	}
	return raws(ws), nil
}

// FetchUserHistory implements ledger.Reader.
func (c *Client) FetchUserHistory(ctx context.Context, actor string) ([]model.RawRecord, error) {
	var ws []ledger.WireRecord
	if err := c.do(ctx, http.MethodGet, c.endpoint("history", actor), nil, &ws); err != nil {
		return nil, err
	}
	out := raws(ws)
	for i := range out {
		if out[i].Actor == "" {
			out[i].Actor = actor
		}
	}
	return out, nil
}

// CurrentPosition implements ledger.Reader.
func (c *Client) CurrentPosition(ctx context.Context) (uint64, error) {
	var resp struct {
		BlockNumber json.RawMessage `json:"blockNumber"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint("block-number"), nil, &resp); err != nil {
		return 0, err
	}
	return parsePosition(ledger.RawNumber(resp.BlockNumber))
}

// TopSymbol implements ledger.Reader.
func (c *Client) TopSymbol(ctx context.Context) (string, error) {
	var resp struct {
		Emoji string `json:"emoji"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint("top"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Emoji, nil
}

// Submit implements ledger.Writer. Any non-2xx answer is a rejection.
func (c *Client) Submit(ctx context.Context, actor, symbol string) (ledger.Receipt, error) {
	req := struct {
		User  string `json:"user"`
		Emoji string `json:"emoji"`
	}{User: actor, Emoji: symbol}
	var resp struct {
		TxHash      string          `json:"txHash"`
		BlockNumber json.RawMessage `json:"blockNumber"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("moods"), req, &resp); err != nil {
		var se *StatusError
		if asStatus(err, &se) {
			return ledger.Receipt{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
		}
		return ledger.Receipt{}, err
	}
	rc := ledger.Receipt{TxID: resp.TxHash, Actor: actor, Symbol: symbol, SubmittedAt: time.Now()}
	if p, err := parsePosition(ledger.RawNumber(resp.BlockNumber)); err == nil {
		rc.Position = p
	}
	return rc, nil
}

func raws(ws []ledger.WireRecord) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Raw())
	}
	return out
}

func parsePosition(s string) (uint64, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: position %q", ledger.ErrBadPayload, s)
	}
	return n, nil
}
