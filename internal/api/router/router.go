// Package router assembles the HTTP surface of the lead agent.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/sales-lead-agent/internal/http/middleware"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/internal/messaging"
	"github.com/wolfman30/sales-lead-agent/internal/webchat"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// Config holds router configuration. Every handler except ChatHandler is optional.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	LeadsHandler       *leads.Handler
	MessagingHandler   *messaging.Handler
	WebChatHandler     *webchat.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ChatRateLimit is requests per second per client IP on the chat
	// endpoints. Zero disables limiting.
	ChatRateLimit float64
	ChatBurst     int
	ChatTimeout   time.Duration

	// AdminJWTSecret verifies operator bearer tokens on /leads. When empty
	// the lead routes answer 401.
	AdminJWTSecret string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.ChatHandler == nil {
		panic("router: chat handler is required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.MessagingHandler != nil {
		r.Post("/webhooks/whatsapp", cfg.MessagingHandler.WhatsAppWebhook)
	}
	if cfg.WebChatHandler != nil {
		// the upgrade must not sit behind Timeout or the connection is cut
		r.Get("/ws", cfg.WebChatHandler.HandleWebSocket)
	}

	r.Group(func(chat chi.Router) {
		if cfg.ChatRateLimit > 0 {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatRateLimit, cfg.ChatBurst))
		}
		if cfg.ChatTimeout > 0 {
			chat.Use(middleware.Timeout(cfg.ChatTimeout))
		}

		chat.Post("/chat", cfg.ChatHandler.Chat)
		chat.Get("/chat/sessions/{sessionID}", cfg.ChatHandler.Session)
		chat.Delete("/chat/sessions/{sessionID}", cfg.ChatHandler.ResetSession)
		if cfg.WebChatHandler != nil {
			chat.Post("/webchat/message", cfg.WebChatHandler.HandleMessage)
			chat.Get("/webchat/history", cfg.WebChatHandler.HandleHistory)
		}
	})

	if cfg.LeadsHandler != nil {
		r.Route("/leads", func(l chi.Router) {
			l.Use(httpmiddleware.OperatorAuth(cfg.AdminJWTSecret))
			l.Get("/", cfg.LeadsHandler.ListLeads)
			l.Get("/{crmID}", cfg.LeadsHandler.GetLead)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
