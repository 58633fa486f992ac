package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/moodblocks/internal/app"
	"github.com/okian/moodblocks/internal/domain/views"
	"github.com/okian/moodblocks/internal/ingest"
)

// ViewsHandler serves the read-only views. Every response comes from the
// last published snapshot.
type ViewsHandler struct {
	deps Dependencies
}

// NewViewsHandler creates a views handler.
func NewViewsHandler(deps Dependencies) *ViewsHandler {
	return &ViewsHandler{deps: deps}
}

const selfActor = "me"

type currentMoodResponse struct {
	Position uint64 `json:"position"`
	Mood     string `json:"mood"`
}

// HandleViews handles GET /views.
func (h *ViewsHandler) HandleViews(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Views())
}

// HandleLeaderboard handles GET /leaderboard.
func (h *ViewsHandler) HandleLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Leaderboard())
}

// HandleRecentBlocks handles GET /blocks/recent.
func (h *ViewsHandler) HandleRecentBlocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.RecentBlocks())
}

// HandleHeatmap handles GET /heatmap.
func (h *ViewsHandler) HandleHeatmap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Heatmap())
}

// HandleFeed handles GET /feed?limit=N with N in 1..50; no limit means 50.
func (h *ViewsHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	limit := views.FeedDisplayCap
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > views.FeedDisplayCap {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, views.FeedDisplayCap))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.deps.Feed(limit))
}

// HandleCurrentMood handles GET /mood/current.
func (h *ViewsHandler) HandleCurrentMood(w http.ResponseWriter, _ *http.Request) {
	pos, mood := h.deps.CurrentMood()
	writeJSON(w, http.StatusOK, currentMoodResponse{Position: pos, Mood: mood})
}

// HandleUserHistory handles GET /users/{actor}/history. The actor "me"
// stands for the configured identity.
func (h *ViewsHandler) HandleUserHistory(w http.ResponseWriter, r *http.Request) {
	actor := strings.TrimSpace(r.PathValue("actor"))
	if actor == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing actor", ErrBadRequest))
		return
	}
	if actor == selfActor {
		actor = ""
	}
	items, err := h.deps.UserHistory(r.Context(), actor)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, items)
	case errors.Is(err, ingest.ErrTransientSource):
		writeError(w, http.StatusBadGateway, "ledger_unavailable", err)
	case errors.Is(err, service.ErrNoIdentity):
		writeError(w, http.StatusConflict, "no_identity", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
