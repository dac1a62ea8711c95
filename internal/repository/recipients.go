package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-escalation/internal/models"

	"go.uber.org/zap"
)

// RecipientsRepository 通知对象仓库 (family contacts and organizational staff)
type RecipientsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecipientsRepository 创建仓库
func NewRecipientsRepository(db *sql.DB, logger *zap.Logger) *RecipientsRepository {
	return &RecipientsRepository{
		db:     db,
		logger: logger,
	}
}

// ListRecipients returns every consenting recipient for a resident in
// notification order: primary family contact first, remaining family
// contacts by relationship-creation order, then staff by role priority
// (facility director, care manager, nurse, other). Withdrawn consent
// excludes the row entirely. An empty result is not an error.
func (r *RecipientsRepository) ListRecipients(ctx context.Context, tenantID, residentID string) ([]models.Recipient, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if residentID == "" {
		return nil, fmt.Errorf("resident_id is required")
	}

	query := `
		SELECT
			recipient_id,
			tenant_id,
			resident_id,
			kind,
			display_name,
			relationship,
			is_primary_contact,
			role,
			phone,
			email,
			push_endpoint,
			consent_withdrawn,
			created_at
		FROM recipients
		WHERE tenant_id = $1
		  AND resident_id = $2
		  AND consent_withdrawn = FALSE
		ORDER BY
			CASE kind WHEN 'family' THEN 0 ELSE 1 END,
			is_primary_contact DESC,
			CASE role
				WHEN 'facility_director' THEN 0
				WHEN 'care_manager' THEN 1
				WHEN 'nurse' THEN 2
				ELSE 3
			END,
			created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, residentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var rec models.Recipient
		var relationship, role, phone, email, pushEndpoint sql.NullString

		err := rows.Scan(
			&rec.RecipientID,
			&rec.TenantID,
			&rec.ResidentID,
			&rec.Kind,
			&rec.DisplayName,
			&relationship,
			&rec.IsPrimaryContact,
			&role,
			&phone,
			&email,
			&pushEndpoint,
			&rec.ConsentWithdrawn,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}

		if relationship.Valid {
			rec.Relationship = &relationship.String
		}
		if role.Valid {
			staffRole := models.StaffRole(role.String)
			rec.Role = &staffRole
		}
		if phone.Valid {
			rec.Phone = &phone.String
		}
		if email.Valid {
			rec.Email = &email.String
		}
		if pushEndpoint.Valid {
			rec.PushEndpoint = &pushEndpoint.String
		}

		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}

	return recipients, nil
}

// GetResidentName returns the display name for alert rendering. Missing
// residents yield an empty name rather than an error — rendering falls back
// to a generic label.
func (r *RecipientsRepository) GetResidentName(ctx context.Context, tenantID, residentID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}
	if residentID == "" {
		return "", fmt.Errorf("resident_id is required")
	}

	query := `
		SELECT display_name
		FROM residents
		WHERE tenant_id = $1 AND resident_id = $2
	`

	var name string
	err := r.db.QueryRowContext(ctx, query, tenantID, residentID).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get resident name: %w", err)
	}
	return name, nil
}
