package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the subset of pgxpool.Pool used by the repository.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores the lead ledger in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool pgxQuerier) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Upsert inserts the lead or refreshes its contact fields when the CRM id is already known.
func (r *PostgresRepository) Upsert(ctx context.Context, req *RecordRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{CRMID: req.CRMID}
	lead.Name, _ = req.Fields.Value(FieldName)
	lead.Company, _ = req.Fields.Value(FieldCompany)
	lead.Email, _ = req.Fields.Value(FieldEmail)
	lead.Phone, _ = req.Fields.Value(FieldPhone)

	query := `
		INSERT INTO leads (id, crm_id, name, company, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (crm_id) DO UPDATE SET
			name = EXCLUDED.name,
			company = EXCLUDED.company,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			updated_at = now()
		RETURNING id, COALESCE(meeting_slot, ''), created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		uuid.New(),
		lead.CRMID,
		lead.Name,
		lead.Company,
		lead.Email,
		lead.Phone,
	).Scan(&lead.ID, &lead.MeetingSlot, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return nil, fmt.Errorf("leads: upsert failed: %w", err)
	}
	return lead, nil
}

// GetByCRMID fetches a ledger entry by CRM identifier.
func (r *PostgresRepository) GetByCRMID(ctx context.Context, crmID string) (*Lead, error) {
	query := `
		SELECT id, crm_id, name, company, email, phone, COALESCE(meeting_slot, ''), created_at, updated_at
		FROM leads
		WHERE crm_id = $1
	`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, strings.TrimSpace(crmID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// MarkMeetingBooked records the booked slot.
func (r *PostgresRepository) MarkMeetingBooked(ctx context.Context, crmID, slot string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET meeting_slot = $2, updated_at = now()
		WHERE crm_id = $1
	`, strings.TrimSpace(crmID), slot)
	if err != nil {
		return fmt.Errorf("leads: update meeting slot failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// List returns the most recently updated leads first.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, crm_id, name, company, email, phone, COALESCE(meeting_slot, ''), created_at, updated_at
		FROM leads
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list rows: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead      Lead
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&lead.ID,
		&lead.CRMID,
		&lead.Name,
		&lead.Company,
		&lead.Email,
		&lead.Phone,
		&lead.MeetingSlot,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	lead.CreatedAt = createdAt
	lead.UpdatedAt = updatedAt
	return &lead, nil
}
