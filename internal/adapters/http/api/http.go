// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/types"
	"github.com/okian/moodblocks/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	// Read operations expose the published views.
	Views() *types.Snapshot
	Leaderboard() []types.LeaderboardEntry
	RecentBlocks() []types.BlockMood
	Heatmap() []types.BlockMood
	Feed(limit int) []types.FeedItem
	CurrentMood() (uint64, string)
	UserHistory(ctx context.Context, actor string) ([]types.HistoryItem, error)

	// Write operations go to the ledger.
	Submit(ctx context.Context, symbol string) (ledger.Receipt, error)
	SubmitTranscript(ctx context.Context, text string) (model.Symbol, ledger.Receipt, error)
}

// Server wires HTTP routes for the mood API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	viewsHandler  *ViewsHandler
	moodsHandler  *MoodsHandler
	streamHandler *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		viewsHandler:  NewViewsHandler(deps),
		moodsHandler:  NewMoodsHandler(deps, rate.NewLimiter(rate.Limit(o.submitRate), o.submitBurst), o.log),
		streamHandler: NewStreamHandler(deps, o.streamInterval, o.log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /views", MetricsMiddleware(s.viewsHandler.HandleViews, "views"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.viewsHandler.HandleLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /blocks/recent", MetricsMiddleware(s.viewsHandler.HandleRecentBlocks, "blocks_recent"))
	mux.HandleFunc("GET /heatmap", MetricsMiddleware(s.viewsHandler.HandleHeatmap, "heatmap"))
	mux.HandleFunc("GET /feed", MetricsMiddleware(s.viewsHandler.HandleFeed, "feed"))
	mux.HandleFunc("GET /mood/current", MetricsMiddleware(s.viewsHandler.HandleCurrentMood, "mood_current"))
	mux.HandleFunc("GET /users/{actor}/history", MetricsMiddleware(s.viewsHandler.HandleUserHistory, "user_history"))
	mux.HandleFunc("POST /moods", MetricsMiddleware(s.moodsHandler.HandlePostMood, "moods"))
	mux.HandleFunc("GET /stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
}

// Close ends long-lived connections such as /stream. Hook it to
// http.Server.RegisterOnShutdown.
func (s *Server) Close() {
	s.streamHandler.Close()
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// logFrom returns l, or a no-op logger when l is nil.
func logFrom(l logger.Logger) logger.Logger {
	if l == nil {
		return logger.Nop()
	}
	return l
}
