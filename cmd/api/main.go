package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/sales-lead-agent/cmd/mainconfig"
	"github.com/wolfman30/sales-lead-agent/internal/api/router"
	appconfig "github.com/wolfman30/sales-lead-agent/internal/config"
	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/internal/messaging"
	"github.com/wolfman30/sales-lead-agent/internal/webchat"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sales lead agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"crm_provider", cfg.CRMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := mainconfig.Build(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.PrepareKnowledge(ctx, cfg, logger); err != nil {
		return fmt.Errorf("prepare knowledge: %w", err)
	}
	logger.Info("knowledge index ready", "chunks", svc.Index.Len())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, svc, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ChatTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newRouter(cfg *appconfig.Config, svc *mainconfig.Services, reg *prometheus.Registry, logger *logging.Logger) http.Handler {
	return router.New(&router.Config{
		Logger:       logger,
		ChatHandler:  conversation.NewHandler(svc.Registry, logger),
		LeadsHandler: leads.NewHandler(svc.Leads, logger),
		MessagingHandler: messaging.NewHandler(messaging.HandlerConfig{
			AuthToken:  cfg.TwilioAuthToken,
			WebhookURL: cfg.TwilioWebhookURL,
		}, svc.Registry, svc.Channels, logger),
		WebChatHandler:     webchat.NewHandler(svc.Registry, svc.Transcript, svc.Channels, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRateLimit:      cfg.ChatRateLimit,
		ChatBurst:          cfg.ChatBurst,
		ChatTimeout:        cfg.ChatTimeout,
		AdminJWTSecret:     cfg.AdminJWTSecret,
	})
}
