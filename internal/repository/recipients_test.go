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

func setupMockRecipientsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *RecipientsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewRecipientsRepository(db, zap.NewNop())
	return db, mock, repo
}

func recipientColumns() []string {
	return []string{
		"recipient_id", "tenant_id", "resident_id", "kind", "display_name",
		"relationship", "is_primary_contact", "role", "phone", "email",
		"push_endpoint", "consent_withdrawn", "created_at",
	}
}

func TestListRecipients_OrderPreserved(t *testing.T) {
	db, mock, repo := setupMockRecipientsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	residentID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows(recipientColumns()).
		AddRow("fam-1", tenantID, residentID, "family", "Anna", "daughter", true, nil, "+14155550100", nil, "wisefido/app/a1", false, now).
		AddRow("fam-2", tenantID, residentID, "family", "Ben", "son", false, nil, nil, "ben@example.com", nil, false, now.Add(time.Minute)).
		AddRow("staff-1", tenantID, residentID, "staff", "Dana", nil, false, "care_manager", nil, nil, "wisefido/app/d1", false, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, residentID).
		WillReturnRows(rows)

	recipients, err := repo.ListRecipients(ctx, tenantID, residentID)

	require.NoError(t, err)
	require.Len(t, recipients, 3)
	assert.Equal(t, "fam-1", recipients[0].RecipientID)
	assert.True(t, recipients[0].IsPrimaryContact)
	assert.Equal(t, models.KindFamilyContact, recipients[0].Kind)
	assert.Equal(t, "fam-2", recipients[1].RecipientID)
	assert.Equal(t, "staff-1", recipients[2].RecipientID)
	require.NotNil(t, recipients[2].Role)
	assert.Equal(t, models.RoleCareManager, *recipients[2].Role)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecipients_EmptyResultIsNotError(t *testing.T) {
	db, mock, repo := setupMockRecipientsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	residentID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, residentID).
		WillReturnRows(sqlmock.NewRows(recipientColumns()))

	recipients, err := repo.ListRecipients(context.Background(), tenantID, residentID)

	require.NoError(t, err)
	assert.Empty(t, recipients)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecipients_RequiredFields(t *testing.T) {
	db, mock, repo := setupMockRecipientsDB(t)
	defer db.Close()

	_, err := repo.ListRecipients(context.Background(), "", "res1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id is required")

	_, err = repo.ListRecipients(context.Background(), "t1", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "resident_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResidentName_MissingResident(t *testing.T) {
	db, mock, repo := setupMockRecipientsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	residentID := uuid.New().String()

	mock.ExpectQuery(`SELECT display_name`).
		WithArgs(tenantID, residentID).
		WillReturnError(sql.ErrNoRows)

	name, err := repo.GetResidentName(context.Background(), tenantID, residentID)

	require.NoError(t, err)
	assert.Equal(t, "", name)
	require.NoError(t, mock.ExpectationsWereMet())
}
