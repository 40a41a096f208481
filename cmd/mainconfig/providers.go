package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/openai/openai-go/option"

	appconfig "github.com/wolfman30/sales-lead-agent/internal/config"
	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/internal/knowledge"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// NewLLMClient builds the configured provider, wrapped in a fallback client
// when LLM_FALLBACK_PROVIDER names a different one. The returned close
// function releases provider connections.
func NewLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, func(), error) {
	primary, closePrimary, err := newProviderClient(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, nil, err
	}

	fallbackName := cfg.LLMFallbackProvider
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		return primary, closePrimary, nil
	}
	fallback, closeFallback, err := newProviderClient(ctx, fallbackName, cfg, awsCfg)
	if err != nil {
		// a broken fallback must not take the primary down with it
		logger.Warn("llm fallback provider unavailable", "provider", fallbackName, "error", err)
		return primary, closePrimary, nil
	}
	logger.Info("llm fallback enabled", "primary", cfg.LLMProvider, "fallback", fallbackName)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), func() {
		closePrimary()
		closeFallback()
	}, nil
}

func newProviderClient(ctx context.Context, provider string, cfg *appconfig.Config, awsCfg aws.Config) (conversation.LLMClient, func(), error) {
	noop := func() {}
	switch provider {
	case "", "openai":
		client, err := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, option.WithRequestTimeout(cfg.LLMTimeout))
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, fmt.Errorf("mainconfig: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), noop, nil
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("mainconfig: unknown llm provider %q", provider)
	}
}

// NewEmbedder builds the embedding provider for the knowledge index.
func NewEmbedder(cfg *appconfig.Config, awsCfg aws.Config) (knowledge.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "", "openai":
		return knowledge.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel, option.WithRequestTimeout(cfg.LLMTimeout))
	case "bedrock":
		return knowledge.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingID), nil
	default:
		return nil, fmt.Errorf("mainconfig: unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
