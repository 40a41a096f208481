package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for the local lead ledger.
type Repository interface {
	Upsert(ctx context.Context, req *RecordRequest) (*Lead, error)
	GetByCRMID(ctx context.Context, crmID string) (*Lead, error)
	MarkMeetingBooked(ctx context.Context, crmID, slot string) error
	List(ctx context.Context, limit int) ([]*Lead, error)
}

// InMemoryRepository is a Repository backed by a map, used when no database is configured.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead // keyed by CRM id
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Upsert inserts a lead or refreshes the contact fields of an existing one.
// Duplicate CRM detections land here with the same CRM id.
func (r *InMemoryRepository) Upsert(ctx context.Context, req *RecordRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[req.CRMID]
	if !ok {
		lead = &Lead{
			ID:        uuid.New().String(),
			CRMID:     req.CRMID,
			CreatedAt: now,
		}
		r.leads[req.CRMID] = lead
	}
	lead.Name, _ = req.Fields.Value(FieldName)
	lead.Company, _ = req.Fields.Value(FieldCompany)
	lead.Email, _ = req.Fields.Value(FieldEmail)
	lead.Phone, _ = req.Fields.Value(FieldPhone)
	lead.UpdatedAt = now

	copied := *lead
	return &copied, nil
}

// GetByCRMID retrieves a lead by its CRM identifier
func (r *InMemoryRepository) GetByCRMID(ctx context.Context, crmID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[strings.TrimSpace(crmID)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

// MarkMeetingBooked stores the booked slot on the ledger entry.
func (r *InMemoryRepository) MarkMeetingBooked(ctx context.Context, crmID, slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[strings.TrimSpace(crmID)]
	if !ok {
		return ErrLeadNotFound
	}
	lead.MeetingSlot = slot
	lead.UpdatedAt = r.now()
	return nil
}

// List returns the most recently updated leads first.
func (r *InMemoryRepository) List(ctx context.Context, limit int) ([]*Lead, error) {
	r.mu.RLock()
	out := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		copied := *lead
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
