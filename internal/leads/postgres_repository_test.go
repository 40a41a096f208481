package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadColumns = []string{"id", "crm_id", "name", "company", "email", "phone", "meeting_slot", "created_at", "updated_at"}

func TestPostgresRepository_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "00Q1", "Alex", "Iquestbee Technology", "alex@x.com", "9876543210").
		WillReturnRows(pgxmock.NewRows([]string{"id", "meeting_slot", "created_at", "updated_at"}).
			AddRow("4d5c3f0e-8f0a-4a43-9d43-2a8b5b0c8d11", "", now, now))

	repo := NewPostgresRepository(mock)
	lead, err := repo.Upsert(context.Background(), &RecordRequest{CRMID: "00Q1", Fields: completeFields()})
	require.NoError(t, err)
	assert.Equal(t, "4d5c3f0e-8f0a-4a43-9d43-2a8b5b0c8d11", lead.ID)
	assert.Equal(t, "Iquestbee Technology", lead.Company)
	assert.Equal(t, now, lead.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpsertValidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	_, err = repo.Upsert(context.Background(), &RecordRequest{Fields: completeFields()})
	assert.ErrorIs(t, err, ErrMissingCRMID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByCRMID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, crm_id").
		WithArgs("00Q1").
		WillReturnRows(pgxmock.NewRows(leadColumns).
			AddRow("id-1", "00Q1", "Alex", "Iquestbee Technology", "alex@x.com", "9876543210", "10:30", now, now))
	mock.ExpectQuery("SELECT id, crm_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	lead, err := repo.GetByCRMID(context.Background(), "00Q1")
	require.NoError(t, err)
	assert.Equal(t, "10:30", lead.MeetingSlot)

	_, err = repo.GetByCRMID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_MarkMeetingBooked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE leads SET meeting_slot").
		WithArgs("00Q1", "09:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE leads SET meeting_slot").
		WithArgs("ghost", "09:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE leads SET meeting_slot").
		WithArgs("00Q2", "09:00").
		WillReturnError(errors.New("conn reset"))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.MarkMeetingBooked(context.Background(), "00Q1", "09:00"))
	assert.ErrorIs(t, repo.MarkMeetingBooked(context.Background(), "ghost", "09:00"), ErrLeadNotFound)
	assert.Error(t, repo.MarkMeetingBooked(context.Background(), "00Q2", "09:00"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("ORDER BY updated_at DESC").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(leadColumns).
			AddRow("id-1", "00Q1", "Alex", "Iq", "a@x.com", "1", "", now, now).
			AddRow("id-2", "00Q2", "Sam", "Iq", "s@x.com", "2", "09:00", now, now))

	repo := NewPostgresRepository(mock)
	got, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "00Q2", got[1].CRMID)
	require.NoError(t, mock.ExpectationsWereMet())
}
