// Package crm talks to the customer-relationship system that owns leads and
// meeting events.
package crm

import (
	"context"
	"errors"

	"github.com/wolfman30/sales-lead-agent/internal/leads"
)

var (
	// ErrIncompleteLead is returned before any request when a field still holds "N/A".
	ErrIncompleteLead = errors.New("crm: lead info contains N/A")

	// ErrAuthentication is returned when the token exchange fails.
	ErrAuthentication = errors.New("crm: authentication failed")

	// ErrInvalidSlot is returned when a slot is not in HH:MM form.
	ErrInvalidSlot = errors.New("crm: invalid slot")
)

// LeadResult describes the lead the CRM now holds for the session.
// Duplicate is true when the CRM matched an existing record instead of creating one.
type LeadResult struct {
	ID        string
	Duplicate bool
}

// Client is the CRM capability used by the conversation agent.
type Client interface {
	CreateLead(ctx context.Context, fields leads.Fields) (LeadResult, error)
	ListAvailableSlots(ctx context.Context) ([]string, error)
	BookMeeting(ctx context.Context, leadID, slot string) error
}
