package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

const streamWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true // dashboards are served from other origins
	},
}

// StreamHandler pushes the view snapshot to websocket clients whenever its
// version changes.
type StreamHandler struct {
	deps     Dependencies
	interval time.Duration
	log      logger.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

// NewStreamHandler creates a stream handler polling the snapshot every interval.
func NewStreamHandler(deps Dependencies, interval time.Duration, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		deps:     deps,
		interval: interval,
		log:      logFrom(log),
		quit:     make(chan struct{}),
	}
}

// HandleStream handles GET /stream.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.AddStreamClients(1)
	defer metrics.AddStreamClients(-1)

	ctx := r.Context()
	log := h.log.With(logger.String("client", uuid.NewString()))
	log.Debug(ctx, "stream client connected")

	// Read pump: only needed to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		if snap := h.deps.Views(); first || snap.Version != sent {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug(ctx, "stream write failed", logger.Error(err))
				return
			}
			sent, first = snap.Version, false
		}

		select {
		case <-gone:
			log.Debug(ctx, "stream client disconnected")
			return
		case <-h.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

// Close ends every open stream.
func (h *StreamHandler) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
}
