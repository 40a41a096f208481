package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sales-lead-agent/internal/conversation"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// Searcher returns the most relevant chunk texts for a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// Answerer implements conversation.DocumentAnswerer over a Searcher and an LLM.
type Answerer struct {
	search Searcher
	llm    conversation.LLMClient
	model  string
	brand  string
	topK   int
	logger *logging.Logger
}

func NewAnswerer(search Searcher, llm conversation.LLMClient, brand string, topK int, logger *logging.Logger) *Answerer {
	if search == nil || llm == nil {
		panic("knowledge: answerer requires a searcher and an llm client")
	}
	if topK <= 0 {
		topK = 5
	}
	if strings.TrimSpace(brand) == "" {
		brand = "our company"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Answerer{search: search, llm: llm, brand: brand, topK: topK, logger: logger.Component("answerer")}
}

// refusal is returned verbatim when nothing relevant is indexed.
func (a *Answerer) refusal() string {
	return fmt.Sprintf("%s related to %s, meetings, or our services. Please ask something related.",
		conversation.RefusalSentinel, a.brand)
}

func (a *Answerer) Answer(ctx context.Context, req conversation.AnswerRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "knowledge.answer")
	defer span.End()

	chunks, err := a.search.Search(ctx, req.Message, a.topK)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("knowledge: retrieve context: %w", err)
	}
	span.SetAttributes(attribute.Int("leadagent.context_chunks", len(chunks)))
	contextText := strings.TrimSpace(strings.Join(chunks, "\n"))
	if contextText == "" {
		a.logger.Warn("no relevant context found for query")
		return a.refusal(), nil
	}

	topic := a.topic(ctx, req.History)

	system := fmt.Sprintf("You are a friendly sales assistant for %[1]s.\n"+
		"You must only answer questions related to %[1]s, meetings, or our services.\n"+
		"If the user's question is not related, politely respond: '%[2]s'\n"+
		"Never answer general knowledge or unrelated questions.\n\n"+
		"System Context:\nCurrent topic: %[3]s\nProduct info: %[4]s\nLead info: %[5]s\nLead state: %[6]s",
		a.brand, a.refusal(), topic, contextText, req.Lead.String(), req.State)
	prompt := fmt.Sprintf("Human: %s\nAssistant: Be direct and natural, maintain the conversation flow about %s if relevant.",
		req.Message, topic)

	answer, err := conversation.Prompt(ctx, a.llm, a.model, prompt, system)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("knowledge: generate answer: %w", err)
	}
	return answer, nil
}

// topic asks the LLM for the subject of the last four memory lines. Failures
// degrade to "general".
func (a *Answerer) topic(ctx context.Context, history []string) string {
	recent := history
	if len(recent) > 4 {
		recent = recent[len(recent)-4:]
	}
	if len(recent) == 0 {
		return "general"
	}
	prompt := "Given these conversation messages, identify the main topic being discussed:\n" +
		strings.Join(recent, "\n") + "\nReturn ONLY the topic being discussed, nothing else."
	topic, err := conversation.Prompt(ctx, a.llm, a.model, prompt)
	if err != nil || topic == "" {
		a.logger.Warn("topic detection failed", "error", err)
		return "general"
	}
	return topic
}
