package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// SalesTeam emails the sales inbox when the agent captures a lead or books a
// meeting. It satisfies conversation.SalesNotifier.
type SalesTeam struct {
	email      EmailSender
	recipients []string
	brand      string
	logger     *logging.Logger
}

// NewSalesTeam returns a notifier that sends to every recipient. With no
// sender or no recipients every call is a no-op.
func NewSalesTeam(email EmailSender, recipients []string, brand string, logger *logging.Logger) *SalesTeam {
	if logger == nil {
		logger = logging.Default()
	}
	cleaned := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	if strings.TrimSpace(brand) == "" {
		brand = "Sales"
	}
	return &SalesTeam{
		email:      email,
		recipients: cleaned,
		brand:      brand,
		logger:     logger.Component("notify"),
	}
}

// LeadCaptured announces a new (or re-detected duplicate) CRM lead.
func (s *SalesTeam) LeadCaptured(ctx context.Context, crmID string, fields leads.Fields, duplicate bool) error {
	name := displayName(fields)
	subject := fmt.Sprintf("New Lead - %s", name)
	headline := "A new lead has come in!"
	if duplicate {
		subject = fmt.Sprintf("Returning Lead - %s", name)
		headline = "An existing lead is back in touch."
	}
	body := fmt.Sprintf(`%s

%s
CRM ID: %s

- %s Assistant`, headline, contactBlock(fields), crmID, s.brand)

	return s.broadcast(ctx, subject, body, replyTo(fields), "crm_id", crmID)
}

// MeetingBooked announces a scheduled call.
func (s *SalesTeam) MeetingBooked(ctx context.Context, crmID string, fields leads.Fields, slot string) error {
	name := displayName(fields)
	subject := fmt.Sprintf("Meeting Booked - %s at %s", name, slot)
	body := fmt.Sprintf(`%s booked a call for %s today.

%s
CRM ID: %s

Please be ready to join the call.

- %s Assistant`, name, slot, contactBlock(fields), crmID, s.brand)

	return s.broadcast(ctx, subject, body, replyTo(fields), "crm_id", crmID, "slot", slot)
}

func (s *SalesTeam) broadcast(ctx context.Context, subject, body, replyTo string, logArgs ...any) error {
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: no email sender or recipients, skipping", logArgs...)
		return nil
	}

	var failed int
	for _, recipient := range s.recipients {
		msg := EmailMessage{To: recipient, ReplyTo: replyTo, Subject: subject, Text: body}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", append([]any{"error", err, "to", recipient}, logArgs...)...)
			failed++
			continue
		}
		s.logger.Info("notify: sales email sent", append([]any{"to", recipient}, logArgs...)...)
	}
	if failed > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", failed)
	}
	return nil
}

// replyTo is the prospect's address so a rep can answer from the inbox.
func replyTo(fields leads.Fields) string {
	email, _ := fields.Value(leads.FieldEmail)
	return email
}

func displayName(fields leads.Fields) string {
	if name, ok := fields.Value(leads.FieldName); ok {
		return name
	}
	return "A prospect"
}

func contactBlock(fields leads.Fields) string {
	lines := make([]string, 0, len(leads.AllFields))
	for _, key := range leads.AllFields {
		v, ok := fields.Value(key)
		if !ok {
			v = "-"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", key, v))
	}
	return strings.Join(lines, "\n")
}
