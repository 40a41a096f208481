package conversation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// SessionHeader carries the conversation id on /chat requests and responses.
const SessionHeader = "X-Session-ID"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes the agent over HTTP.
type Handler struct {
	turns    TurnProcessor
	registry *Registry
	logger   *logging.Logger
}

// NewHandler creates a chat handler. registry may be nil when turns is not a
// *Registry; session inspection routes then report 404.
func NewHandler(turns TurnProcessor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{turns: turns, logger: logger}
	if reg, ok := turns.(*Registry); ok {
		h.registry = reg
	}
	return h
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No message provided."})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(SessionHeader))
	}
	if sessionID == "" {
		// a new conversation; the client continues it with the echoed header
		sessionID = uuid.NewString()
	}
	w.Header().Set(SessionHeader, sessionID)

	result, err := h.turns.Process(r.Context(), sessionID, req.Message)
	if err != nil {
		h.logger.Error("failed to process message", "error", err, "session_id", sessionID)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to process message"})
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Session handles GET /chat/sessions/{sessionID}.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		http.NotFound(w, r)
		return
	}
	snapshot, ok := h.registry.Snapshot(chi.URLParam(r, "sessionID"))
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// ResetSession handles DELETE /chat/sessions/{sessionID}.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil || !h.registry.Reset(chi.URLParam(r, "sessionID")) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
