package conversation

import (
	"time"

	"github.com/wolfman30/sales-lead-agent/internal/leads"
)

// Session is the per-conversation state. Only Agent.Process mutates it.
type Session struct {
	ID             string
	State          LeadState
	Lead           leads.Fields
	Memory         *Memory
	CurrentLeadID  string
	AvailableSlots []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		State:     StateNoInterest,
		Lead:      leads.Fields{},
		Memory:    NewMemory(DefaultMemoryLimit),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Result is what a front end gets back from one turn.
type Result struct {
	Reply    string       `json:"response"`
	LeadInfo leads.Fields `json:"lead_info"`
	State    LeadState    `json:"lead_state"`
}

func (s *Session) result(reply string) *Result {
	var info leads.Fields
	if len(s.Lead) > 0 {
		info = s.Lead.Clone()
	}
	return &Result{Reply: reply, LeadInfo: info, State: s.State}
}

func (s *Session) ensureInitialized() {
	if s.State == "" {
		s.State = StateNoInterest
	}
	if s.Lead == nil {
		s.Lead = leads.Fields{}
	}
	if s.Memory == nil {
		s.Memory = NewMemory(DefaultMemoryLimit)
	}
}
