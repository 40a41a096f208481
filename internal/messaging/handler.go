// Package messaging exposes the agent over Twilio WhatsApp webhooks.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

var twilioTracer = otel.Tracer("leadagent.internal.messaging.twilio")

const (
	channelWhatsApp = "whatsapp"

	emptyMessageReply = "No message provided."
	failureReply      = "Sorry, something went wrong on our side. Please try again shortly."
)

// Handler answers WhatsApp messages inline with TwiML.
type Handler struct {
	authToken  string
	webhookURL string
	processor  conversation.TurnProcessor
	metrics    *metrics.ChannelMetrics
	logger     *logging.Logger
	timeout    time.Duration
}

// HandlerConfig configures signature validation. An empty AuthToken disables it.
// WebhookURL overrides the URL rebuilt from the request, which is needed behind
// proxies that rewrite the host.
type HandlerConfig struct {
	AuthToken  string
	WebhookURL string
	Timeout    time.Duration
}

func NewHandler(cfg HandlerConfig, processor conversation.TurnProcessor, m *metrics.ChannelMetrics, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("messaging: turn processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	return &Handler{
		authToken:  cfg.AuthToken,
		webhookURL: cfg.WebhookURL,
		processor:  processor,
		metrics:    m,
		logger:     logger.Component("whatsapp"),
		timeout:    cfg.Timeout,
	}
}

// WhatsAppWebhook handles POST /webhooks/whatsapp.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := twilioTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	status := "ok"
	defer func() {
		h.metrics.ObserveInbound(channelWhatsApp, status, time.Since(start).Seconds())
	}()

	if h.authToken != "" {
		webhookURL := h.webhookURL
		if webhookURL == "" {
			webhookURL = buildAbsoluteURL(r)
		}
		if !ValidateTwilioSignature(r, h.authToken, webhookURL) {
			status = "unauthorized"
			h.logger.Warn("invalid twilio signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid twilio signature"))
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		status = "bad_request"
		h.logger.Error("failed to parse twilio webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	from := NormalizeE164(webhook.From)
	if from == "" {
		status = "bad_request"
		err := errors.New("missing sender")
		h.logger.Error("invalid twilio payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	sessionID := SessionID(from)
	span.SetAttributes(
		attribute.String("leadagent.twilio.message_sid", webhook.MessageSid),
		attribute.String("leadagent.session_id", sessionID),
	)

	body := strings.TrimSpace(webhook.Body)
	if body == "" {
		status = "empty"
		h.writeTwiML(w, emptyMessageReply)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	result, err := h.processor.Process(turnCtx, sessionID, body)
	if err != nil {
		status = "error"
		h.logger.Error("failed to process whatsapp message", "error", err, "session_id", sessionID, "message_sid", webhook.MessageSid)
		span.RecordError(err)
		h.writeTwiML(w, failureReply)
		return
	}

	h.logger.Info("whatsapp message answered", "session_id", sessionID, "state", result.State, "message_sid", webhook.MessageSid)
	h.writeTwiML(w, result.Reply)
}

func (h *Handler) writeTwiML(w http.ResponseWriter, bodies ...string) {
	payload, err := TwiML(bodies...)
	if err != nil {
		h.logger.Error("failed to render twiml", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// SessionID keys conversations by sender so each WhatsApp user gets one session.
func SessionID(phone string) string {
	return channelWhatsApp + ":" + phone
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
