package mainconfig

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/sales-lead-agent/internal/config"
	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/internal/crm"
	"github.com/wolfman30/sales-lead-agent/internal/knowledge"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/internal/notify"
	"github.com/wolfman30/sales-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// Services is the wired agent plus the infrastructure it runs on.
type Services struct {
	Registry   *conversation.Registry
	Ingester   *knowledge.Ingester
	Index      *knowledge.MemoryIndex
	Leads      leads.Repository
	Transcript *conversation.TranscriptStore
	Channels   *metrics.ChannelMetrics

	closers []func()
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Build wires every component from cfg. reg receives the Prometheus
// collectors; nil means the default registerer.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*Services, error) {
	svc := &Services{}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	llm, closeLLM, err := NewLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	svc.closers = append(svc.closers, closeLLM)

	embedder, err := NewEmbedder(cfg, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	crmClient, err := NewCRM(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	redisClient := NewRedisClient(cfg)
	if redisClient != nil {
		svc.closers = append(svc.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	svc.Leads = leads.NewInMemoryRepository()
	if pool := ConnectPostgresPool(ctx, cfg.DatabaseURL, logger); pool != nil {
		svc.closers = append(svc.closers, pool.Close)
		svc.Leads = leads.NewPostgresRepository(pool)
	}

	var repo knowledge.Repository
	if redisClient != nil {
		repo = knowledge.NewRedisRepository(redisClient)
	}
	svc.Index = knowledge.NewMemoryIndex(embedder)
	loader := knowledge.NewLoader(newS3Client(awsCfg), cfg.KnowledgeChunkSize, cfg.KnowledgeChunkOverlap)
	svc.Ingester = knowledge.NewIngester(loader, embedder, repo, svc.Index, logger)
	answerer := knowledge.NewAnswerer(svc.Index, llm, cfg.BrandName, cfg.KnowledgeTopK, logger)

	svc.Transcript = conversation.NewTranscriptStore(redisClient)
	svc.Channels = metrics.NewChannelMetrics(reg)

	opts := []conversation.AgentOption{
		conversation.WithAgentLogger(logger),
		conversation.WithMetrics(metrics.NewConversationMetrics(reg)),
		conversation.WithLeadRecorder(svc.Leads),
		conversation.WithSalesNotifier(NewSalesNotifier(cfg, awsCfg, logger)),
		conversation.WithBrand(cfg.BrandName),
	}
	if svc.Transcript != nil {
		opts = append(opts, conversation.WithTranscript(svc.Transcript))
	}
	extractor := conversation.NewLLMFieldExtractor(llm, "", cfg.LeadCompany, logger)
	agent := conversation.NewAgent(answerer, extractor, crmClient, llm, opts...)
	svc.Registry = conversation.NewRegistry(agent)

	ok = true
	return svc, nil
}

// PrepareKnowledge hydrates the index from Redis, or ingests the configured
// sources when nothing is stored yet. An empty index is allowed: the agent
// then refuses product questions.
func (s *Services) PrepareKnowledge(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	hydrated, err := s.Ingester.Hydrate(ctx, cfg.KnowledgeCorpus)
	if err != nil {
		logger.Warn("knowledge hydrate failed, re-ingesting", "error", err)
	}
	if hydrated {
		return nil
	}
	if len(cfg.KnowledgeSources) == 0 {
		logger.Warn("no knowledge sources configured; product questions will be refused")
		return nil
	}
	_, err = s.Ingester.Ingest(ctx, cfg.KnowledgeCorpus, cfg.KnowledgeSources)
	return err
}

// NewCRM selects the CRM client. Salesforce authentication failures are
// returned so the caller can refuse to start.
func NewCRM(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.CRM, error) {
	switch cfg.CRMProvider {
	case "memory":
		logger.Warn("using in-memory CRM; leads are not persisted")
		return crm.NewMemoryClient(), nil
	case "", "salesforce":
		loc, err := time.LoadLocation(cfg.SlotTimezone)
		if err != nil {
			return nil, fmt.Errorf("slot timezone %q: %w", cfg.SlotTimezone, err)
		}
		client, err := crm.NewSalesforceClient(ctx, crm.SalesforceConfig{
			AuthURL:      cfg.SalesforceAuthURL,
			ClientID:     cfg.SalesforceClientID,
			ClientSecret: cfg.SalesforceSecret,
			APIVersion:   cfg.SalesforceVersion,
			OwnerID:      cfg.SalesforceOwnerID,
			Location:     loc,
			Timeout:      cfg.CRMTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("salesforce: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown crm provider %q", cfg.CRMProvider)
	}
}

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(cfg *appconfig.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// ConnectPostgresPool returns nil when the URL is empty or unreachable; the
// in-memory ledger is used instead.
func ConnectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// NewSalesNotifier picks the email transport for sales-team notifications.
func NewSalesNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.SalesTeam {
	from := notify.Identity{Email: cfg.EmailFrom, Name: cfg.EmailFromName}
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), from, cfg.SESConfigurationSet, logger)
	case "sendgrid":
		if sg := notify.NewSendGridSender(cfg.SendGridAPIKey, from, logger); sg != nil {
			sender = sg
		}
	}
	if sender == nil {
		sender = notify.NewStubEmailSender(logger)
	}
	return notify.NewSalesTeam(sender, strings.Split(cfg.SalesNotifyEmail, ","), cfg.BrandName, logger)
}
