package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	ChatRateLimit      float64
	ChatBurst          int
	ChatTimeout        time.Duration

	// AdminJWTSecret signs operator tokens for the /leads API.
	AdminJWTSecret string

	// Language model providers
	LLMProvider          string
	LLMFallbackProvider  string
	LLMTimeout           time.Duration
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	BedrockModelID       string
	BedrockEmbeddingID   string
	GeminiAPIKey         string
	GeminiModel          string
	EmbeddingProvider    string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// CRM (Salesforce)
	CRMProvider        string
	SalesforceAuthURL  string
	SalesforceClientID string
	SalesforceSecret   string
	SalesforceVersion  string
	SalesforceOwnerID  string
	SlotTimezone       string
	CRMTimeout         time.Duration

	// Domain constants
	LeadCompany string
	BrandName   string

	// Knowledge corpus
	KnowledgeSources      []string
	KnowledgeCorpus       string
	KnowledgeTopK         int
	KnowledgeChunkSize    int
	KnowledgeChunkOverlap int

	// Storage
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	// Twilio WhatsApp
	TwilioAuthToken  string
	TwilioWebhookURL string

	// Sales-team notifications
	SalesNotifyEmail    string
	EmailProvider       string
	SendGridAPIKey      string
	EmailFrom           string
	EmailFromName       string
	SESConfigurationSet string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ChatRateLimit:      getEnvAsFloat("CHAT_RATE_LIMIT", 2),
		ChatBurst:          getEnvAsInt("CHAT_BURST", 10),
		ChatTimeout:        getEnvAsDuration("CHAT_TIMEOUT", 60*time.Second),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),

		LLMProvider:          strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider:  strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingID:   getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		EmbeddingProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMBEDDING_PROVIDER", "openai"))),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CRMProvider:        strings.ToLower(strings.TrimSpace(getEnv("CRM_PROVIDER", "salesforce"))),
		SalesforceAuthURL:  getEnv("SF_AUTH_URL", ""),
		SalesforceClientID: getEnv("SF_CLIENT_ID", ""),
		SalesforceSecret:   getEnv("SF_CLIENT_SECRET", ""),
		SalesforceVersion:  getEnv("SF_API_VERSION", "v60.0"),
		SalesforceOwnerID:  getEnv("SF_OWNER_ID", ""),
		SlotTimezone:       getEnv("SLOT_TIMEZONE", "Asia/Kolkata"),
		CRMTimeout:         getEnvAsDuration("CRM_TIMEOUT", 20*time.Second),

		LeadCompany: getEnv("LEAD_COMPANY", "Iquestbee Technology"),
		BrandName:   getEnv("BRAND_NAME", "Emaar"),

		KnowledgeSources:      getEnvAsList("KNOWLEDGE_SOURCES"),
		KnowledgeCorpus:       getEnv("KNOWLEDGE_CORPUS", "default"),
		KnowledgeTopK:         getEnvAsInt("KNOWLEDGE_TOP_K", 5),
		KnowledgeChunkSize:    getEnvAsInt("KNOWLEDGE_CHUNK_SIZE", 600),
		KnowledgeChunkOverlap: getEnvAsInt("KNOWLEDGE_CHUNK_OVERLAP", 100),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWebhookURL: getEnv("TWILIO_WEBHOOK_URL", ""),

		SalesNotifyEmail:    getEnv("SALES_NOTIFY_EMAIL", ""),
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Sales Assistant"),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
