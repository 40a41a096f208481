// Package main implements leadctl, the operator CLI for the lead agent:
// an interactive chat session and knowledge ingestion.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolfman30/sales-lead-agent/cmd/mainconfig"
	appconfig "github.com/wolfman30/sales-lead-agent/internal/config"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

var (
	logLevel string
	version  = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "leadctl",
	Short:   "Operate the sales lead agent from a terminal",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level for agent internals")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(ingestCmd)
}

// buildServices loads configuration and wires the agent without exposing
// metrics; the CLI has no scrape endpoint.
func buildServices(ctx context.Context) (*mainconfig.Services, *appconfig.Config, *logging.Logger, error) {
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stderr, logLevel, "text")
	svc, err := mainconfig.Build(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, cfg, logger, nil
}
