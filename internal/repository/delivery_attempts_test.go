package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAttemptsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DeliveryAttemptsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewDeliveryAttemptsRepository(db, zap.NewNop())
	return db, mock, repo
}

func sampleAttempt(tenantID string) *models.DeliveryAttempt {
	providerID := "SM123"
	return &models.DeliveryAttempt{
		AttemptID:         uuid.New().String(),
		AlertID:           uuid.New().String(),
		TenantID:          tenantID,
		RecipientID:       uuid.New().String(),
		Channel:           models.ChannelSMS,
		AttemptNumber:     1,
		Status:            models.AttemptSent,
		ProviderMessageID: &providerID,
		AttemptedAt:       time.Now(),
	}
}

func TestInsertAttempt_Success(t *testing.T) {
	db, mock, repo := setupMockAttemptsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	attempt := sampleAttempt(tenantID)

	mock.ExpectExec(`INSERT INTO delivery_attempts`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertAttempt(context.Background(), tenantID, attempt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAttempt_SuppressedRowAllowed(t *testing.T) {
	db, mock, repo := setupMockAttemptsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	attempt := sampleAttempt(tenantID)
	attempt.Status = models.AttemptSuppressed
	attempt.ProviderMessageID = nil

	mock.ExpectExec(`INSERT INTO delivery_attempts`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertAttempt(context.Background(), tenantID, attempt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAttempt_Validation(t *testing.T) {
	db, mock, repo := setupMockAttemptsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()

	attempt := sampleAttempt(tenantID)
	attempt.Channel = "fax"
	err := repo.InsertAttempt(context.Background(), tenantID, attempt)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")

	attempt = sampleAttempt(tenantID)
	attempt.AttemptNumber = 0
	err = repo.InsertAttempt(context.Background(), tenantID, attempt)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "attempt_number")

	attempt = sampleAttempt("other-tenant")
	err = repo.InsertAttempt(context.Background(), tenantID, attempt)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id must match")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAttemptsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	alertID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"attempt_id", "alert_id", "tenant_id", "recipient_id", "channel",
		"attempt_number", "status", "provider_message_id", "error", "attempted_at",
	}).
		AddRow(uuid.New().String(), alertID, tenantID, "r1", "push", 1, "sent", "p-1", nil, now).
		AddRow(uuid.New().String(), alertID, tenantID, "r2", "sms", 1, "failed", nil, "timeout", now).
		AddRow(uuid.New().String(), alertID, tenantID, "r2", "sms", 2, "sent", "SM9", nil, now.Add(2*time.Second))

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, alertID).
		WillReturnRows(rows)

	attempts, err := repo.ListByAlert(context.Background(), tenantID, alertID)

	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, models.AttemptSent, attempts[0].Status)
	require.NotNil(t, attempts[1].Error)
	assert.Equal(t, "timeout", *attempts[1].Error)
	assert.Equal(t, 2, attempts[2].AttemptNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	db, mock, repo := setupMockAttemptsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	alertID := uuid.New().String()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("sent", 2).
		AddRow("suppressed", 1)

	mock.ExpectQuery(`SELECT status, COUNT`).
		WithArgs(tenantID, alertID).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), tenantID, alertID)

	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.AttemptSent])
	assert.Equal(t, 1, counts[models.AttemptSuppressed])
	require.NoError(t, mock.ExpectationsWereMet())
}
