package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

var extractorTracer = otel.Tracer("leadagent.internal.conversation.extractor")

// FieldExtractor turns free text into contact fields merged onto prior.
// ok is false when nothing usable came back; prior is then returned as-is.
type FieldExtractor interface {
	Extract(ctx context.Context, message string, prior leads.Fields) (leads.Fields, bool)
}

const extractionPrompt = "Extract contact information from the following message. " +
	"Return ONLY a minified JSON object (no markdown, no code block, no comments) with these exact fields " +
	"(always include all keys, even if missing): Name, Company, Email, Phone. " +
	"If a field is not found, return its value as null.\n" +
	"Message: %s\n" +
	"Return ONLY the JSON object, nothing else."

// LLMFieldExtractor implements FieldExtractor with an LLMClient.
type LLMFieldExtractor struct {
	client  LLMClient
	model   string
	company string
	logger  *logging.Logger
}

func NewLLMFieldExtractor(client LLMClient, model, company string, logger *logging.Logger) *LLMFieldExtractor {
	if client == nil {
		panic("conversation: extractor llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMFieldExtractor{
		client:  client,
		model:   model,
		company: company,
		logger:  logger.Component("extractor"),
	}
}

func (e *LLMFieldExtractor) Extract(ctx context.Context, message string, prior leads.Fields) (leads.Fields, bool) {
	ctx, span := extractorTracer.Start(ctx, "conversation.extract_fields")
	defer span.End()

	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:       e.model,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: fmt.Sprintf(extractionPrompt, message)}},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("field extraction call failed", "error", err)
		return prior, false
	}

	extracted, err := parseExtraction(resp.Text)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("failed to parse extracted fields", "error", err, "raw", resp.Text)
		return prior, false
	}

	merged := prior.Merge(extracted).WithCompany(e.company)
	span.SetAttributes(attribute.Int("leadagent.missing_fields", len(merged.Missing())))
	e.logger.Debug("merged lead fields", "fields", merged.String())
	return merged, true
}

// parseExtraction decodes the model reply, tolerating code fences and
// surrounding prose.
func parseExtraction(raw string) (map[string]any, error) {
	text := strings.TrimSpace(extractJSONObject(stripCodeFence(raw)))
	if text == "" {
		return nil, errors.New("conversation: empty extraction response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("conversation: decode extraction: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("conversation: extraction returned no fields")
	}
	return out, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
