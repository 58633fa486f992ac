package simulate

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

	"github.com/okian/moodblocks/internal/domain/types"
)

// Client talks to a running mood server over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Submission is the server's answer to an accepted mood.
type Submission struct {
	Status   string `json:"status"`
	Symbol   string `json:"symbol"`
	TxID     string `json:"tx_id"`
	Position uint64 `json:"position"`
}

// CurrentMood is the server's current position and its mood.
type CurrentMood struct {
	Position uint64 `json:"position"`
	Mood     string `json:"mood"`
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Views fetches the whole published snapshot.
func (c *Client) Views(ctx context.Context) (*types.Snapshot, error) {
	var s types.Snapshot
	if err := c.do(ctx, http.MethodGet, "/views", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Leaderboard fetches the per-symbol tallies.
func (c *Client) Leaderboard(ctx context.Context) ([]types.LeaderboardEntry, error) {
	var out []types.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, "/leaderboard", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Feed fetches up to limit feed items.
func (c *Client) Feed(ctx context.Context, limit int) ([]types.FeedItem, error) {
	var out []types.FeedItem
	if err := c.do(ctx, http.MethodGet, "/feed?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Current fetches the current position and mood.
func (c *Client) Current(ctx context.Context) (CurrentMood, error) {
	var out CurrentMood
	err := c.do(ctx, http.MethodGet, "/mood/current", nil, &out)
	return out, err
}

// History fetches one actor's recent moods. An empty actor means the server identity.
func (c *Client) History(ctx context.Context, actor string) ([]types.HistoryItem, error) {
	if actor == "" {
		actor = "me"
	}
	var out []types.HistoryItem
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(actor)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit posts a symbol, by name or glyph.
func (c *Client) Submit(ctx context.Context, symbol string) (Submission, error) {
	var out Submission
	err := c.do(ctx, http.MethodPost, "/moods", map[string]string{"symbol": symbol}, &out)
	return out, err
}

// Transcript posts a voice transcript for the server to recognize.
func (c *Client) Transcript(ctx context.Context, text string) (Submission, error) {
	var out Submission
	err := c.do(ctx, http.MethodPost, "/moods", map[string]string{"transcript": text}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &e)
		return fmt.Errorf("%w: %s %s: %d %s %s", ErrRequest, method, path, resp.StatusCode, e.Code, e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
