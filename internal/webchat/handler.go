// Package webchat serves the agent to browsers over WebSocket with an HTTP fallback.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

const channelWebChat = "webchat"

// TranscriptReader reads archived chat history.
type TranscriptReader interface {
	List(ctx context.Context, sessionID string, limit int64) ([]conversation.TranscriptMessage, error)
}

// Handler manages web chat connections and messages.
type Handler struct {
	processor  conversation.TurnProcessor
	transcript TranscriptReader
	metrics    *metrics.ChannelMetrics
	logger     *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*websocket.Conn // conversation session id -> active connection
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "message", "typing", "history", "session", "error", "pong"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	State     string           `json:"lead_state,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler. transcript may be nil.
func NewHandler(processor conversation.TurnProcessor, transcript TranscriptReader, m *metrics.ChannelMetrics, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("webchat: turn processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		processor:  processor,
		transcript: transcript,
		metrics:    m,
		logger:     logger.Component("webchat"),
		sessions:   make(map[string]*websocket.Conn),
	}
}

// SessionKey namespaces browser sessions in the shared registry.
func SessionKey(sessionID string) string {
	return channelWebChat + ":" + sessionID
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	key := SessionKey(sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	if history := h.history(ctx, key, 50); len(history) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
	}

	h.mu.Lock()
	h.sessions[key] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[key] == conn {
			delete(h.sessions, key)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("webchat: connection opened", "session_id", key)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", key, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		h.SendToSession(key, OutboundMessage{Type: "typing"})
		h.SendToSession(key, h.reply(ctx, key, msg.Text))
	}
}

// reply runs one turn and converts the outcome into a widget message.
func (h *Handler) reply(ctx context.Context, key, text string) OutboundMessage {
	start := time.Now()
	result, err := h.processor.Process(ctx, key, strings.TrimSpace(text))
	if err != nil {
		h.metrics.ObserveInbound(channelWebChat, "error", time.Since(start).Seconds())
		h.logger.Error("webchat: failed to process message", "error", err, "session_id", key)
		return OutboundMessage{Type: "error", Text: "Sorry, something went wrong. Please try again."}
	}
	h.metrics.ObserveInbound(channelWebChat, "ok", time.Since(start).Seconds())
	return OutboundMessage{
		Type:      "message",
		Role:      conversation.ChatRoleAssistant,
		Text:      result.Reply,
		State:     result.State.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// SendToSession sends a message to an active WebSocket session.
func (h *Handler) SendToSession(key string, msg OutboundMessage) {
	h.mu.RLock()
	conn, ok := h.sessions[key]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := websocket.JSON.Send(conn, msg); err != nil {
		h.logger.Warn("webchat: send failed", "error", err, "session_id", key)
	}
}

// HandleMessage is the HTTP fallback for sending messages. It answers inline.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	out := h.reply(r.Context(), SessionKey(req.SessionID), req.Text)
	out.SessionID = req.SessionID

	status := http.StatusOK
	if out.Type == "error" {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	var history []HistoryMessage
	if h.transcript != nil {
		msgs, err := h.transcript.List(r.Context(), SessionKey(sessionID), 100)
		if err != nil {
			h.logger.Error("webchat: failed to load history", "error", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		history = toHistory(msgs)
	}
	if history == nil {
		history = []HistoryMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}

func (h *Handler) history(ctx context.Context, key string, limit int64) []HistoryMessage {
	if h.transcript == nil {
		return nil
	}
	msgs, err := h.transcript.List(ctx, key, limit)
	if err != nil {
		h.logger.Warn("webchat: history unavailable", "error", err, "session_id", key)
		return nil
	}
	return toHistory(msgs)
}

func toHistory(msgs []conversation.TranscriptMessage) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{
			Role:      m.Role,
			Text:      m.Body,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return history
}
