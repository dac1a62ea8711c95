package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-escalation/internal/models"

	"go.uber.org/zap"
)

// DeliveryAttemptsRepository 投递台账仓库 (对应 delivery_attempts 表)
// The ledger is append-only: this repository exposes no update or delete.
// Concurrent dispatch sub-tasks insert independent rows; the per-insert
// atomicity of the database is the only coordination required.
type DeliveryAttemptsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeliveryAttemptsRepository 创建仓库
func NewDeliveryAttemptsRepository(db *sql.DB, logger *zap.Logger) *DeliveryAttemptsRepository {
	return &DeliveryAttemptsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertAttempt appends one ledger row. Every (recipient, channel) pair the
// orchestrator considers gets a row — sent, failed or suppressed — so "no
// action taken" is always representable as data.
func (r *DeliveryAttemptsRepository) InsertAttempt(ctx context.Context, tenantID string, attempt *models.DeliveryAttempt) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if attempt == nil {
		return fmt.Errorf("attempt is required")
	}
	if attempt.TenantID != tenantID {
		return fmt.Errorf("attempt.tenant_id must match tenant_id parameter")
	}
	if attempt.AttemptID == "" {
		return fmt.Errorf("attempt_id is required")
	}
	if attempt.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if attempt.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if !attempt.Channel.Valid() {
		return fmt.Errorf("unknown channel: %q", attempt.Channel)
	}
	if attempt.AttemptNumber < 1 {
		return fmt.Errorf("attempt_number must be >= 1")
	}

	query := `
		INSERT INTO delivery_attempts (
			attempt_id,
			alert_id,
			tenant_id,
			recipient_id,
			channel,
			attempt_number,
			status,
			provider_message_id,
			error,
			attempted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.AttemptID,
		attempt.AlertID,
		attempt.TenantID,
		attempt.RecipientID,
		string(attempt.Channel),
		attempt.AttemptNumber,
		string(attempt.Status),
		attempt.ProviderMessageID,
		attempt.Error,
		attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery attempt: %w", err)
	}

	return nil
}

// ListByAlert returns every ledger row for one alert, in attempt order.
func (r *DeliveryAttemptsRepository) ListByAlert(ctx context.Context, tenantID, alertID string) ([]models.DeliveryAttempt, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			attempt_id,
			alert_id,
			tenant_id,
			recipient_id,
			channel,
			attempt_number,
			status,
			provider_message_id,
			error,
			attempted_at
		FROM delivery_attempts
		WHERE tenant_id = $1 AND alert_id = $2
		ORDER BY attempted_at ASC, attempt_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListByTimeRange returns ledger rows for compliance export.
func (r *DeliveryAttemptsRepository) ListByTimeRange(ctx context.Context, tenantID string, start, end time.Time) ([]models.DeliveryAttempt, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end must not be before start")
	}

	query := `
		SELECT
			attempt_id,
			alert_id,
			tenant_id,
			recipient_id,
			channel,
			attempt_number,
			status,
			provider_message_id,
			error,
			attempted_at
		FROM delivery_attempts
		WHERE tenant_id = $1
		  AND attempted_at >= $2
		  AND attempted_at <= $3
		ORDER BY attempted_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// CountByStatus returns per-status attempt counts for one alert.
func (r *DeliveryAttemptsRepository) CountByStatus(ctx context.Context, tenantID, alertID string) (map[models.AttemptStatus]int, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT status, COUNT(*)
		FROM delivery_attempts
		WHERE tenant_id = $1 AND alert_id = $2
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to count delivery attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AttemptStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan attempt count: %w", err)
		}
		counts[models.AttemptStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempt counts: %w", err)
	}

	return counts, nil
}

func scanAttempts(rows *sql.Rows) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		var providerID, errMsg sql.NullString

		err := rows.Scan(
			&a.AttemptID,
			&a.AlertID,
			&a.TenantID,
			&a.RecipientID,
			&a.Channel,
			&a.AttemptNumber,
			&a.Status,
			&providerID,
			&errMsg,
			&a.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}

		if providerID.Valid {
			a.ProviderMessageID = &providerID.String
		}
		if errMsg.Valid {
			a.Error = &errMsg.String
		}

		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery attempts: %w", err)
	}
	return attempts, nil
}
