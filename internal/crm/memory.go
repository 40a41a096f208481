package crm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
)

// Booking is a meeting recorded by MemoryClient.
type Booking struct {
	LeadID string
	Slot   string
	At     time.Time
}

// MemoryClient is an in-process CRM used for local development and the CLI.
// Leads are de-duplicated by email the way a CRM duplicate rule would.
type MemoryClient struct {
	mu       sync.Mutex
	day      BusinessDay
	byEmail  map[string]string
	leads    map[string]leads.Fields
	bookings []Booking
	now      func() time.Time
}

// NewMemoryClient returns an empty in-memory CRM with the default business day.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		day:     DefaultBusinessDay,
		byEmail: make(map[string]string),
		leads:   make(map[string]leads.Fields),
		now:     time.Now,
	}
}

func (m *MemoryClient) CreateLead(_ context.Context, fields leads.Fields) (LeadResult, error) {
	if fields.HasSentinel() {
		return LeadResult{}, ErrIncompleteLead
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(fields[leads.FieldEmail]))
	if id, ok := m.byEmail[email]; ok && email != "" {
		return LeadResult{ID: id, Duplicate: true}, nil
	}
	id := uuid.NewString()
	m.leads[id] = fields.Clone()
	if email != "" {
		m.byEmail[email] = id
	}
	return LeadResult{ID: id}, nil
}

func (m *MemoryClient) ListAvailableSlots(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booked := make(map[string]struct{}, len(m.bookings))
	for _, b := range m.bookings {
		booked[b.Slot] = struct{}{}
	}
	return m.day.Available(booked)
}

func (m *MemoryClient) BookMeeting(_ context.Context, leadID, slot string) error {
	if _, err := time.Parse(slotLayout, slot); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[leadID]; !ok {
		return fmt.Errorf("crm: unknown lead %q", leadID)
	}
	for _, b := range m.bookings {
		if b.Slot == slot {
			return fmt.Errorf("crm: slot %s already booked", slot)
		}
	}
	m.bookings = append(m.bookings, Booking{LeadID: leadID, Slot: slot, At: m.now()})
	return nil
}

// Bookings returns a copy of the recorded meetings.
func (m *MemoryClient) Bookings() []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Booking, len(m.bookings))
	copy(out, m.bookings)
	return out
}

var _ Client = (*MemoryClient)(nil)
