package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/sales-lead-agent/internal/config"
	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/internal/crm"
	"github.com/wolfman30/sales-lead-agent/internal/knowledge"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

func offlineConfig() *appconfig.Config {
	return &appconfig.Config{
		LLMProvider:          "openai",
		OpenAIAPIKey:         "sk-test",
		OpenAIModel:          "gpt-4o-mini",
		OpenAIEmbeddingModel: "text-embedding-3-small",
		EmbeddingProvider:    "openai",
		AWSRegion:            "us-east-1",
		AWSAccessKeyID:       "test",
		AWSSecretAccessKey:   "test",
		CRMProvider:          "memory",
		SlotTimezone:         "Asia/Kolkata",
		LeadCompany:          "Iquestbee Technology",
		BrandName:            "Emaar",
		KnowledgeCorpus:      "default",
		KnowledgeTopK:        5,
		KnowledgeChunkSize:   600,
		EmailProvider:        "sendgrid",
	}
}

func TestBuildWiresOfflineServices(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	svc, err := Build(context.Background(), offlineConfig(), logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer svc.Close()

	assert.NotNil(t, svc.Registry)
	assert.NotNil(t, svc.Ingester)
	assert.IsType(t, &leads.InMemoryRepository{}, svc.Leads)
	assert.Nil(t, svc.Transcript, "no redis configured")
	assert.Zero(t, svc.Index.Len())
}

func TestPrepareKnowledgeWithoutSources(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := offlineConfig()

	svc, err := Build(context.Background(), cfg, logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer svc.Close()

	assert.NoError(t, svc.PrepareKnowledge(context.Background(), cfg, logging.Discard()))
}

func TestNewCRM(t *testing.T) {
	logger := logging.Discard()

	client, err := NewCRM(context.Background(), &appconfig.Config{CRMProvider: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &crm.MemoryClient{}, client)

	_, err = NewCRM(context.Background(), &appconfig.Config{CRMProvider: "hubspot"}, logger)
	assert.Error(t, err)

	_, err = NewCRM(context.Background(), &appconfig.Config{CRMProvider: "salesforce", SlotTimezone: "Mars/Olympus"}, logger)
	assert.Error(t, err)

	_, err = NewCRM(context.Background(), &appconfig.Config{CRMProvider: "salesforce", SlotTimezone: "UTC"}, logger)
	assert.Error(t, err, "missing credentials must stop startup")
}

func TestNewLLMClientProviders(t *testing.T) {
	logger := logging.Discard()
	cfg := offlineConfig()

	client, closeFn, err := NewLLMClient(context.Background(), cfg, aws.Config{}, logger)
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &conversation.OpenAILLMClient{}, client)

	cfg.LLMFallbackProvider = "bedrock"
	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	client, closeFn, err = NewLLMClient(context.Background(), cfg, aws.Config{}, logger)
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &conversation.FallbackLLMClient{}, client)

	cfg.LLMFallbackProvider = "gemini"
	client, closeFn, err = NewLLMClient(context.Background(), cfg, aws.Config{}, logger)
	require.NoError(t, err, "an unusable fallback is skipped")
	closeFn()
	assert.IsType(t, &conversation.OpenAILLMClient{}, client)

	cfg.LLMProvider = "bedrock"
	cfg.BedrockModelID = ""
	_, _, err = NewLLMClient(context.Background(), cfg, aws.Config{}, logger)
	assert.Error(t, err)

	cfg.LLMProvider = "llama"
	_, _, err = NewLLMClient(context.Background(), cfg, aws.Config{}, logger)
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	cfg := offlineConfig()
	emb, err := NewEmbedder(cfg, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &knowledge.OpenAIEmbedder{}, emb)

	cfg.EmbeddingProvider = "bedrock"
	emb, err = NewEmbedder(cfg, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &knowledge.BedrockEmbedder{}, emb)

	cfg.EmbeddingProvider = "cohere"
	_, err = NewEmbedder(cfg, aws.Config{})
	assert.Error(t, err)
}

func TestOptionalStores(t *testing.T) {
	assert.Nil(t, NewRedisClient(&appconfig.Config{}))
	assert.Nil(t, ConnectPostgresPool(context.Background(), "", logging.Discard()))

	client := NewRedisClient(&appconfig.Config{RedisAddr: "localhost:6379", RedisTLS: true})
	require.NotNil(t, client)
	assert.NotNil(t, client.Options().TLSConfig)
	_ = client.Close()
}

func TestNewSalesNotifierFallsBackToStub(t *testing.T) {
	cfg := offlineConfig()
	cfg.SalesNotifyEmail = "sales@example.com"
	n := NewSalesNotifier(cfg, aws.Config{}, logging.Discard())
	require.NotNil(t, n)
	assert.NoError(t, n.LeadCaptured(context.Background(), "00Q1", leads.Fields{leads.FieldName: "Alex"}, false))
}

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	cfg := offlineConfig()
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, awsCfg.BaseEndpoint)
	assert.False(t, newS3Client(awsCfg).Options().UsePathStyle)

	cfg.AWSEndpointOverride = " http://localhost:4566 "
	awsCfg, err = LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, awsCfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *awsCfg.BaseEndpoint)
	assert.Equal(t, "us-east-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
	assert.True(t, newS3Client(awsCfg).Options().UsePathStyle)
}
