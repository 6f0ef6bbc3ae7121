package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wave-portal/gateway"
	"wave-portal/logger"
	"wave-portal/portal"
)

// Handler contains the HTTP handlers for the wave portal
type Handler struct {
	Portal   *portal.Portal
	upgrader websocket.Upgrader
}

// NewHandler creates and returns a new Handler instance
func NewHandler(p *portal.Portal) *Handler {
	return &Handler{Portal: p}
}

type messageRequest struct {
	Message string `json:"message"`
}

// waveRequest leaves Message nil when the field is absent, so the draft is sent instead.
type waveRequest struct {
	Message *string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetState handles GET requests for the full view state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Portal.Snapshot())
}

// GetWaves handles GET requests for the wave feed in discovery order
func (h *Handler) GetWaves(w http.ResponseWriter, r *http.Request) {
	snap := h.Portal.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"waves": snap.Waves,
	})
}

// GetWaveCount handles GET requests for the contract's wave total
func (h *Handler) GetWaveCount(w http.ResponseWriter, r *http.Request) {
	snap := h.Portal.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wave_count": snap.WaveCount,
	})
}

// Connect handles POST requests asking the wallet for an account
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.Portal.RequestConnection(r.Context()); err != nil {
		if errors.Is(err, gateway.ErrProviderUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Portal.Snapshot())
}

// SetDraft handles PUT requests updating the message being typed
func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode draft", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	h.Portal.SetDraft(req.Message)
	writeJSON(w, http.StatusOK, h.Portal.Snapshot())
}

// SubmitWave handles POST requests sending a wave; it returns once the transaction is mined.
// A body without a message field falls back to the current draft.
func (h *Handler) SubmitWave(w http.ResponseWriter, r *http.Request) {
	var req waveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode wave", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// the contract accepts any string, including an empty one
	message := h.Portal.Snapshot().PendingMessage
	if req.Message != nil {
		message = *req.Message
	}

	// a signed wave runs to completion even if the caller goes away
	ctx := context.WithoutCancel(r.Context())
	err := h.Portal.SubmitWave(ctx, message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"message": "Wave mined",
			"state":   h.Portal.Snapshot(),
		})
	case errors.Is(err, portal.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, portal.ErrNotConnected):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// DismissAlert handles DELETE requests acknowledging an alert
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.Portal.DismissAlert(id) {
		writeError(w, http.StatusNotFound, "no such alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream upgrades to a websocket and pushes a snapshot after every state change
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	snaps, cancel := h.Portal.Store().Watch()
	defer cancel()

	// the client never sends; reading detects the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				logger.Logger.Debug("Websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
