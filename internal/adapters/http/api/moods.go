package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	service "github.com/okian/moodblocks/internal/app"
	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/voice"
	"github.com/okian/moodblocks/pkg/logger"
)

// maxMoodBody caps the POST /moods payload.
const maxMoodBody = 4 << 10

// MoodsHandler accepts manual and voice submissions.
type MoodsHandler struct {
	deps    Dependencies
	limiter *rate.Limiter
	log     logger.Logger
}

// NewMoodsHandler creates a submission handler. A nil limiter disables limiting.
func NewMoodsHandler(deps Dependencies, limiter *rate.Limiter, log logger.Logger) *MoodsHandler {
	return &MoodsHandler{deps: deps, limiter: limiter, log: logFrom(log)}
}

// moodRequest carries either a symbol or a voice transcript.
type moodRequest struct {
	Symbol     string `json:"symbol"`
	Transcript string `json:"transcript"`
}

func (m moodRequest) validate() error {
	hasSymbol := strings.TrimSpace(m.Symbol) != ""
	hasTranscript := strings.TrimSpace(m.Transcript) != ""
	switch {
	case !hasSymbol && !hasTranscript:
		return fmt.Errorf("%w: one of symbol or transcript is required", ErrBadRequest)
	case hasSymbol && hasTranscript:
		return fmt.Errorf("%w: symbol and transcript are exclusive", ErrBadRequest)
	}
	return nil
}

type moodResponse struct {
	Status   string `json:"status"`
	Symbol   string `json:"symbol"`
	TxID     string `json:"tx_id"`
	Position uint64 `json:"position,omitempty"`
}

// HandlePostMood handles POST /moods. The submission is written to the
// ledger; the views catch up asynchronously, hence 202.
func (h *MoodsHandler) HandlePostMood(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", ErrRateLimited)
		return
	}

	var req moodRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMoodBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx := r.Context()
	var (
		sym model.Symbol
		err error
	)
	resp := moodResponse{Status: "submitted"}
	if req.Symbol != "" {
		receipt, serr := h.deps.Submit(ctx, req.Symbol)
		err = serr
		sym, _ = model.ParseSymbol(req.Symbol)
		resp.TxID, resp.Position = receipt.TxID, receipt.Position
	} else {
		s, receipt, serr := h.deps.SubmitTranscript(ctx, req.Transcript)
		err = serr
		sym = s
		resp.TxID, resp.Position = receipt.TxID, receipt.Position
	}
	if err != nil {
		status, code := submitStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Warn(ctx, "mood submission failed", logger.String("code", code), logger.Error(err))
		}
		writeError(w, status, code, err)
		return
	}

	resp.Symbol = string(sym)
	writeJSON(w, http.StatusAccepted, resp)
}

// submitStatus maps submission errors to a status and an error code.
func submitStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnknownSymbol):
		return http.StatusBadRequest, "invalid_symbol"
	case errors.Is(err, voice.ErrNotUnderstood):
		return http.StatusBadRequest, "not_understood"
	case errors.Is(err, service.ErrNoIdentity):
		return http.StatusConflict, "no_identity"
	case errors.Is(err, service.ErrSubmission):
		return http.StatusBadGateway, "submission_failed"
	case errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
