package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/sales-lead-agent/internal/crm"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

var agentTracer = otel.Tracer("leadagent.internal.conversation")

// RefusalSentinel marks a document answer that declined an off-topic question.
const RefusalSentinel = "Sorry, I can only answer questions"

// ErrNilSession is returned by Process when called without a session.
var ErrNilSession = errors.New("conversation: session is nil")

const (
	replyThanks        = "Thanks!"
	replyLeadSaved     = "Great! I've saved your information.\nDo you want to schedule a meeting with our team? (Yes/No)"
	replyLeadFailed    = "Sorry, I had trouble saving your information. Would you mind trying again?"
	replyNoSlots       = "Sorry, I couldn’t fetch available meeting slots right now."
	replyDeclined      = "No problem! Let me know if you have any other questions."
	replyAnswerFailed  = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	replySlotsHeader   = "Here are the available meeting slots for today:\n"
	replyBooked        = "✅ Your meeting has been scheduled at %s. Our team will contact you soon!"
	replyBookingFailed = "❌ Something went wrong while scheduling your meeting at %s. Please try again."
	replyInvalidSlot   = "⚠️ '%s' is not a valid time. Please choose from: %s"
	withheldMessage    = "[message withheld]"
	replyScreened      = "I can help with questions about our projects and services, or set up a meeting with our sales team. What would you like to know?"
)

var affirmatives = map[string]struct{}{
	"yes": {}, "yeah": {}, "y": {}, "sure": {}, "please": {}, "schedule": {}, "schedule meeting": {},
}

// AnswerRequest is the input to a document answer.
type AnswerRequest struct {
	Message string
	History []string
	Lead    leads.Fields
	State   LeadState
}

// DocumentAnswerer answers product questions from the document corpus. A
// reply containing RefusalSentinel means the question was out of scope.
type DocumentAnswerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}

// CRM is the subset of the CRM client the agent drives.
type CRM interface {
	CreateLead(ctx context.Context, fields leads.Fields) (crm.LeadResult, error)
	ListAvailableSlots(ctx context.Context) ([]string, error)
	BookMeeting(ctx context.Context, leadID, slot string) error
}

// LeadRecorder mirrors CRM outcomes into the local lead ledger.
type LeadRecorder interface {
	Upsert(ctx context.Context, req *leads.RecordRequest) (*leads.Lead, error)
	MarkMeetingBooked(ctx context.Context, crmID, slot string) error
}

// SalesNotifier tells the sales team about new leads and meetings.
type SalesNotifier interface {
	LeadCaptured(ctx context.Context, crmID string, fields leads.Fields, duplicate bool) error
	MeetingBooked(ctx context.Context, crmID string, fields leads.Fields, slot string) error
}

// Agent runs the lead-qualification state machine. It holds no per-session
// state and is safe for concurrent use across sessions.
type Agent struct {
	answerer  DocumentAnswerer
	extractor FieldExtractor
	crm       CRM
	llm       LLMClient

	model       string
	brand       string
	slotColumns int

	logger     *logging.Logger
	metrics    *metrics.ConversationMetrics
	recorder   LeadRecorder
	notifier   SalesNotifier
	transcript TranscriptArchive
}

type AgentOption func(*Agent)

func WithAgentLogger(logger *logging.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ConversationMetrics) AgentOption {
	return func(a *Agent) { a.metrics = m }
}

// WithLeadRecorder mirrors created leads and booked meetings into a ledger.
func WithLeadRecorder(r LeadRecorder) AgentOption {
	return func(a *Agent) { a.recorder = r }
}

func WithSalesNotifier(n SalesNotifier) AgentOption {
	return func(a *Agent) { a.notifier = n }
}

func WithTranscript(t TranscriptArchive) AgentOption {
	return func(a *Agent) { a.transcript = t }
}

// WithBrand sets the brand named in the small-talk prompt.
func WithBrand(brand string) AgentOption {
	return func(a *Agent) {
		if strings.TrimSpace(brand) != "" {
			a.brand = brand
		}
	}
}

// WithModel overrides the model id used for small talk.
func WithModel(model string) AgentOption {
	return func(a *Agent) { a.model = model }
}

func WithSlotColumns(columns int) AgentOption {
	return func(a *Agent) { a.slotColumns = columns }
}

func NewAgent(answerer DocumentAnswerer, extractor FieldExtractor, crmClient CRM, llm LLMClient, opts ...AgentOption) *Agent {
	if answerer == nil {
		panic("conversation: document answerer cannot be nil")
	}
	if extractor == nil {
		panic("conversation: field extractor cannot be nil")
	}
	if crmClient == nil {
		panic("conversation: crm client cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	a := &Agent{
		answerer:    answerer,
		extractor:   extractor,
		crm:         crmClient,
		llm:         llm,
		brand:       "our company",
		slotColumns: 3,
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Component("agent")
	return a
}

// Process runs one turn for s. It is the only code that mutates a Session.
// Collaborator failures become apologetic replies; an error is returned only
// for a nil session or a context that is already done.
func (a *Agent) Process(ctx context.Context, s *Session, message string) (*Result, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.ensureInitialized()

	started := time.Now()
	startState := s.State

	ctx, span := agentTracer.Start(ctx, "conversation.process", trace.WithAttributes(
		attribute.String("leadagent.session_id", s.ID),
		attribute.String("leadagent.state", string(startState)),
	))
	defer span.End()

	log := a.logger.With("session_id", s.ID)
	log.Info("processing message", "state", s.State)

	if !s.State.Valid() {
		log.Warn("unknown lead state, resetting", "state", s.State)
		a.transition(log, s, StateNoInterest)
	}

	screen := ScreenInput(message)
	if screen.Blocked {
		log.Warn("message blocked by input screen", "signals", screen.Signals, "score", screen.Score)
		span.SetAttributes(attribute.Bool("leadagent.screened", true))
		// later prompts replay memory, so the raw text stays out of it
		s.Memory.AppendHuman(withheldMessage)
	} else {
		s.Memory.AppendHuman(message)
	}

	if s.State == StateNoInterest && HasPurchaseIntent(message) {
		a.transition(log, s, StateInterestDetected)
	}

	var reply string
	switch {
	case screen.Blocked:
		reply = replyScreened
	case s.State == StateNoInterest:
		reply = a.answerOrSmallTalk(ctx, log, s, message)
	case s.State == StateInterestDetected, s.State == StateCollectingInfo:
		reply = a.collectInfo(ctx, log, s, message)
	case s.State == StateInfoComplete:
		reply = a.createLead(ctx, log, s)
	case s.State == StateAwaitingMeetingConfirmation:
		reply = a.confirmMeeting(ctx, log, s, message)
	case s.State == StateWaitingMeetingSlotSelection:
		reply = a.selectSlot(ctx, log, s, message)
	}

	s.Memory.AppendAssistant(reply)
	s.UpdatedAt = time.Now().UTC()
	a.archive(ctx, log, s, message, reply)

	span.SetAttributes(attribute.String("leadagent.next_state", string(s.State)))
	a.metrics.ObserveTurn(string(startState), time.Since(started).Seconds())
	log.Info("turn complete", "state", s.State, "lead_info", s.Lead.String())
	return s.result(reply), nil
}

func (a *Agent) transition(log *logging.Logger, s *Session, to LeadState) {
	if s.State == to {
		return
	}
	log.Info("lead state transition", "from", s.State, "to", to)
	a.metrics.ObserveTransition(string(s.State), string(to))
	s.State = to
}

func (a *Agent) answerOrSmallTalk(ctx context.Context, log *logging.Logger, s *Session, message string) string {
	answer, err := a.answer(ctx, s, message)
	if err != nil {
		log.Error("document answer failed", "error", err)
		a.metrics.ObserveCollaboratorError("answerer")
		return replyAnswerFailed
	}
	if !strings.Contains(answer, RefusalSentinel) {
		return screened(log, answer)
	}

	chat, err := a.smallTalk(ctx, s)
	if err != nil {
		log.Warn("small talk failed, returning refusal", "error", err)
		a.metrics.ObserveCollaboratorError("small_talk")
		return answer
	}
	return screened(log, chat)
}

func screened(log *logging.Logger, reply string) string {
	if sc := ScreenReply(reply); sc.Blocked {
		log.Warn("generated reply withheld", "signals", sc.Signals)
		return replyScreened
	}
	return reply
}

func (a *Agent) answer(ctx context.Context, s *Session, message string) (string, error) {
	return a.answerer.Answer(ctx, AnswerRequest{
		Message: message,
		History: s.Memory.Lines(),
		Lead:    s.Lead.Clone(),
		State:   s.State,
	})
}

func (a *Agent) smallTalk(ctx context.Context, s *Session) (string, error) {
	system := fmt.Sprintf("You are a friendly, conversational sales assistant for %[1]s. "+
		"If the user greets you or starts with small talk (like 'hi', 'hello', 'how are you'), "+
		"respond warmly and conversationally, and guide them to ask about %[1]s, its projects, meetings, or services. "+
		"If the user's question is not related to %[1]s, politely respond: "+
		"'%[2]s related to %[1]s, meetings, or our services. Please ask something related.' "+
		"Never answer general knowledge or unrelated questions.", a.brand, RefusalSentinel)
	prompt := "Conversation so far:\n" + strings.Join(s.Memory.Recent(6), "\n") + "\nAssistant:"

	reply, err := Prompt(ctx, a.llm, a.model, prompt, system)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", errors.New("conversation: empty small talk reply")
	}
	return reply, nil
}

func (a *Agent) collectInfo(ctx context.Context, log *logging.Logger, s *Session, message string) string {
	if updated, ok := a.extractor.Extract(ctx, message, s.Lead); ok {
		s.Lead = updated
		a.transition(log, s, StateCollectingInfo)
		if s.Lead.Complete() {
			log.Info("lead info complete")
			a.transition(log, s, StateInfoComplete)
		}
	} else {
		a.metrics.ObserveCollaboratorError("extractor")
	}

	missing := s.Lead.Missing()
	if LooksLikeContactInfo(message) {
		if len(missing) > 0 {
			return askForFields(missing)
		}
		return replyThanks
	}

	reply, err := a.answer(ctx, s, message)
	if err != nil {
		log.Error("document answer failed", "error", err)
		a.metrics.ObserveCollaboratorError("answerer")
		reply = replyAnswerFailed
	}
	if len(missing) > 0 {
		reply += "\n\n" + askForFields(missing)
	}
	return reply
}

func askForFields(missing []string) string {
	return "Just need your " + strings.Join(missing, ", ") + " to get started."
}

func (a *Agent) createLead(ctx context.Context, log *logging.Logger, s *Session) string {
	res, err := a.crm.CreateLead(ctx, s.Lead)
	if err == nil && res.ID == "" {
		err = errors.New("crm returned an empty lead id")
	}
	if err != nil {
		log.Error("failed to create lead", "error", err)
		a.metrics.ObserveCollaboratorError("crm")
		return replyLeadFailed
	}

	log.Info("lead saved", "lead_id", res.ID, "duplicate", res.Duplicate)
	s.CurrentLeadID = res.ID
	a.transition(log, s, StateAwaitingMeetingConfirmation)

	if a.recorder != nil {
		if _, err := a.recorder.Upsert(ctx, &leads.RecordRequest{CRMID: res.ID, Fields: s.Lead.Clone()}); err != nil {
			log.Warn("failed to record lead locally", "error", err, "lead_id", res.ID)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.LeadCaptured(ctx, res.ID, s.Lead.Clone(), res.Duplicate); err != nil {
			log.Warn("failed to notify sales team of lead", "error", err, "lead_id", res.ID)
		}
	}
	return replyLeadSaved
}

func isAffirmative(message string) bool {
	_, ok := affirmatives[strings.ToLower(strings.TrimSpace(message))]
	return ok
}

func (a *Agent) confirmMeeting(ctx context.Context, log *logging.Logger, s *Session, message string) string {
	if !isAffirmative(message) {
		// CurrentLeadID is left as is on decline.
		a.transition(log, s, StateNoInterest)
		return replyDeclined
	}

	slots, err := a.crm.ListAvailableSlots(ctx)
	if err != nil {
		log.Error("failed to fetch meeting slots", "error", err)
		a.metrics.ObserveCollaboratorError("crm")
		slots = nil
	}
	if len(slots) == 0 {
		s.AvailableSlots = nil
		a.transition(log, s, StateNoInterest)
		return replyNoSlots
	}

	s.AvailableSlots = append([]string(nil), slots...)
	a.transition(log, s, StateWaitingMeetingSlotSelection)
	return replySlotsHeader + FormatSlots(s.AvailableSlots, a.slotColumns) + "\n"
}

func (a *Agent) selectSlot(ctx context.Context, log *logging.Logger, s *Session, message string) string {
	slot := NormalizeTime(message)
	if !slotIn(slot, s.AvailableSlots) || s.CurrentLeadID == "" {
		log.Info("invalid slot selection", "input", message, "normalized", slot)
		return fmt.Sprintf(replyInvalidSlot, message, strings.Join(s.AvailableSlots, ", "))
	}

	leadID := s.CurrentLeadID
	var reply string
	if err := a.crm.BookMeeting(ctx, leadID, slot); err != nil {
		log.Error("failed to book meeting", "error", err, "lead_id", leadID, "slot", slot)
		a.metrics.ObserveCollaboratorError("crm")
		reply = fmt.Sprintf(replyBookingFailed, slot)
	} else {
		log.Info("meeting booked", "lead_id", leadID, "slot", slot)
		reply = fmt.Sprintf(replyBooked, slot)
		a.recordBooking(ctx, log, s, leadID, slot)
	}

	a.transition(log, s, StateNoInterest)
	s.AvailableSlots = nil
	s.CurrentLeadID = ""
	return reply
}

func (a *Agent) recordBooking(ctx context.Context, log *logging.Logger, s *Session, leadID, slot string) {
	if a.recorder != nil {
		if err := a.recorder.MarkMeetingBooked(ctx, leadID, slot); err != nil {
			log.Warn("failed to record meeting locally", "error", err, "lead_id", leadID)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.MeetingBooked(ctx, leadID, s.Lead.Clone(), slot); err != nil {
			log.Warn("failed to notify sales team of meeting", "error", err, "lead_id", leadID)
		}
	}
}

func (a *Agent) archive(ctx context.Context, log *logging.Logger, s *Session, message, reply string) {
	if a.transcript == nil {
		return
	}
	now := time.Now().UTC()
	err := a.transcript.Append(ctx, s.ID,
		TranscriptMessage{Role: ChatRoleUser, Body: message, State: s.State, Timestamp: now},
		TranscriptMessage{Role: ChatRoleAssistant, Body: reply, State: s.State, Timestamp: now},
	)
	if err != nil {
		log.Warn("failed to archive transcript", "error", err)
	}
}
