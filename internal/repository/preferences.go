package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-escalation/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PreferencesRepository 通知偏好仓库
// One row per (recipient, resident) pair; rows are validated, versioned
// structs written through SavePreference — never free-form blobs.
type PreferencesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPreferencesRepository 创建仓库
func NewPreferencesRepository(db *sql.DB, logger *zap.Logger) *PreferencesRepository {
	return &PreferencesRepository{
		db:     db,
		logger: logger,
	}
}

// GetPreference reads the preference snapshot for one (recipient, resident)
// pair. A missing row yields the documented defaults (push on, sms/email
// off, emergency override on) instead of an error.
func (r *PreferencesRepository) GetPreference(ctx context.Context, tenantID, recipientID, residentID string) (models.NotificationPreference, error) {
	if tenantID == "" {
		return models.NotificationPreference{}, fmt.Errorf("tenant_id is required")
	}
	if recipientID == "" {
		return models.NotificationPreference{}, fmt.Errorf("recipient_id is required")
	}
	if residentID == "" {
		return models.NotificationPreference{}, fmt.Errorf("resident_id is required")
	}

	query := `
		SELECT
			recipient_id,
			resident_id,
			tenant_id,
			schema_version,
			enabled_channels,
			preferred_channel,
			quiet_hours_start,
			quiet_hours_end,
			timezone,
			emergency_override,
			updated_at
		FROM notification_preferences
		WHERE tenant_id = $1
		  AND recipient_id = $2
		  AND resident_id = $3
	`

	var pref models.NotificationPreference
	var channels pq.StringArray
	var quietStart, quietEnd, timezone sql.NullString

	err := r.db.QueryRowContext(ctx, query, tenantID, recipientID, residentID).Scan(
		&pref.RecipientID,
		&pref.ResidentID,
		&pref.TenantID,
		&pref.SchemaVersion,
		&channels,
		&pref.PreferredChannel,
		&quietStart,
		&quietEnd,
		&timezone,
		&pref.EmergencyOverride,
		&pref.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.DefaultPreference(tenantID, recipientID, residentID), nil
		}
		return models.NotificationPreference{}, fmt.Errorf("failed to get preference: %w", err)
	}

	pref.EnabledChannels = make([]models.Channel, 0, len(channels))
	for _, c := range channels {
		pref.EnabledChannels = append(pref.EnabledChannels, models.Channel(c))
	}
	if quietStart.Valid {
		pref.QuietHoursStart = quietStart.String
	}
	if quietEnd.Valid {
		pref.QuietHoursEnd = quietEnd.String
	}
	if timezone.Valid {
		pref.Timezone = timezone.String
	}

	return pref, nil
}

// SavePreference upserts one preference row. The struct is validated before
// any SQL runs; invalid channel names or malformed quiet-hour bounds are
// rejected at write time.
func (r *PreferencesRepository) SavePreference(ctx context.Context, tenantID string, pref *models.NotificationPreference) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if pref == nil {
		return fmt.Errorf("preference is required")
	}
	if pref.TenantID != tenantID {
		return fmt.Errorf("preference tenant_id must match tenant_id parameter")
	}
	if err := pref.Validate(); err != nil {
		return fmt.Errorf("invalid preference: %w", err)
	}

	channels := make([]string, 0, len(pref.EnabledChannels))
	for _, c := range pref.EnabledChannels {
		channels = append(channels, string(c))
	}

	query := `
		INSERT INTO notification_preferences (
			recipient_id,
			resident_id,
			tenant_id,
			schema_version,
			enabled_channels,
			preferred_channel,
			quiet_hours_start,
			quiet_hours_end,
			timezone,
			emergency_override,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, CURRENT_TIMESTAMP
		)
		ON CONFLICT (tenant_id, recipient_id, resident_id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			enabled_channels = EXCLUDED.enabled_channels,
			preferred_channel = EXCLUDED.preferred_channel,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			emergency_override = EXCLUDED.emergency_override,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		pref.RecipientID,
		pref.ResidentID,
		pref.TenantID,
		pref.SchemaVersion,
		pq.Array(channels),
		string(pref.PreferredChannel),
		pref.QuietHoursStart,
		pref.QuietHoursEnd,
		pref.Timezone,
		pref.EmergencyOverride,
	)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}

	r.logger.Info("Notification preference saved",
		zap.String("tenant_id", tenantID),
		zap.String("recipient_id", pref.RecipientID),
		zap.String("resident_id", pref.ResidentID),
	)
	return nil
}
