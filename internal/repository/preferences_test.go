package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockPreferencesDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PreferencesRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPreferencesRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestGetPreference_Success(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	recipientID := uuid.New().String()
	residentID := uuid.New().String()

	rows := sqlmock.NewRows([]string{
		"recipient_id", "resident_id", "tenant_id", "schema_version",
		"enabled_channels", "preferred_channel", "quiet_hours_start",
		"quiet_hours_end", "timezone", "emergency_override", "updated_at",
	}).AddRow(
		recipientID, residentID, tenantID, 1,
		pq.StringArray{"push", "sms"}, "sms", "22:00",
		"08:00", "America/New_York", true, time.Now(),
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, recipientID, residentID).
		WillReturnRows(rows)

	pref, err := repo.GetPreference(context.Background(), tenantID, recipientID, residentID)

	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelPush, models.ChannelSMS}, pref.EnabledChannels)
	assert.Equal(t, models.ChannelSMS, pref.PreferredChannel)
	assert.Equal(t, "22:00", pref.QuietHoursStart)
	assert.Equal(t, "America/New_York", pref.Timezone)
	assert.True(t, pref.EmergencyOverride)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreference_MissingRowYieldsDefaults(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	recipientID := uuid.New().String()
	residentID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, recipientID, residentID).
		WillReturnError(sql.ErrNoRows)

	pref, err := repo.GetPreference(context.Background(), tenantID, recipientID, residentID)

	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelPush}, pref.EnabledChannels)
	assert.Equal(t, models.ChannelPush, pref.PreferredChannel)
	assert.True(t, pref.EmergencyOverride)
	assert.False(t, pref.HasQuietHours())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePreference_ValidatedBeforeWrite(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	pref := models.DefaultPreference(tenantID, "r1", "res1")
	pref.EnabledChannels = []models.Channel{"pigeon"}

	err := repo.SavePreference(context.Background(), tenantID, &pref)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
	require.NoError(t, mock.ExpectationsWereMet(), "no SQL on invalid preference")
}

func TestSavePreference_QuietHoursValidated(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	pref := models.DefaultPreference(tenantID, "r1", "res1")
	pref.QuietHoursStart = "25:99"
	pref.QuietHoursEnd = "08:00"

	err := repo.SavePreference(context.Background(), tenantID, &pref)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "quiet_hours_start")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePreference_Success(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	pref := models.DefaultPreference(tenantID, "r1", "res1")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	pref.Timezone = "America/Chicago"

	mock.ExpectExec(`INSERT INTO notification_preferences`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SavePreference(context.Background(), tenantID, &pref)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
