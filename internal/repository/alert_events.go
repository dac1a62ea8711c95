package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// AlertEventsRepository 升级事件仓库 (对应 alert_events 表)
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertEventFilters 查询过滤条件
type AlertEventFilters struct {
	StartTime  *time.Time // triggered_at >= StartTime
	EndTime    *time.Time // triggered_at <= EndTime
	ResidentID *string
	Status     *models.AlertStatus
	Statuses   []models.AlertStatus
	Severity   *models.Severity
	Immediate  *bool // requires_immediate_alert
}

// CreateAlertEvent inserts one alert event. The interaction_id column has a
// unique constraint: a concurrent duplicate insert surfaces as
// ErrDuplicateInteraction so the caller can treat the event as already
// processed.
func (r *AlertEventsRepository) CreateAlertEvent(ctx context.Context, tenantID string, event *models.AlertEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.TenantID != tenantID {
		return fmt.Errorf("event.tenant_id must match tenant_id parameter")
	}
	if event.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if event.InteractionID == "" {
		return fmt.Errorf("interaction_id is required")
	}
	if event.TriggeredAt.IsZero() {
		return fmt.Errorf("triggered_at is required")
	}

	categories := make([]string, 0, len(event.Categories))
	for _, c := range event.Categories {
		categories = append(categories, string(c))
	}

	query := `
		INSERT INTO alert_events (
			alert_id,
			tenant_id,
			interaction_id,
			resident_id,
			status,
			severity,
			confidence,
			categories,
			detected_keywords,
			requires_immediate_alert,
			transcript_excerpt,
			triggered_at,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.AlertID,
		event.TenantID,
		event.InteractionID,
		event.ResidentID,
		string(event.Status),
		string(event.Severity),
		event.Confidence,
		pq.Array(categories),
		pq.Array(event.DetectedKeywords),
		event.RequiresImmediateAlert,
		event.TranscriptExcerpt,
		event.TriggeredAt,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateInteraction
		}
		return fmt.Errorf("failed to create alert event: %w", err)
	}

	return nil
}

// ErrDuplicateInteraction signals an alert already exists for the interaction.
var ErrDuplicateInteraction = fmt.Errorf("alert event already exists for interaction")

// ExistsForInteraction is the idempotency query: does any alert event exist
// for this interaction id.
func (r *AlertEventsRepository) ExistsForInteraction(ctx context.Context, tenantID, interactionID string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("tenant_id is required")
	}
	if interactionID == "" {
		return false, fmt.Errorf("interaction_id is required")
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM alert_events
			WHERE tenant_id = $1 AND interaction_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, tenantID, interactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check alert existence: %w", err)
	}
	return exists, nil
}

// UpdateAlertStatus moves an alert through its lifecycle. Terminal states
// are never overwritten: the WHERE clause only matches non-terminal rows.
func (r *AlertEventsRepository) UpdateAlertStatus(ctx context.Context, tenantID, alertID string, status models.AlertStatus) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE alert_events
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE alert_id = $2
		  AND tenant_id = $3
		  AND status NOT IN ('delivered', 'degraded', 'failed')
	`

	result, err := r.db.ExecContext(ctx, query, string(status), alertID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert event not found or already terminal: alert_id=%s", alertID)
	}

	r.logger.Info("Alert event status updated",
		zap.String("tenant_id", tenantID),
		zap.String("alert_id", alertID),
		zap.String("status", string(status)),
	)
	return nil
}

// GetAlertEvent 获取单个升级事件
func (r *AlertEventsRepository) GetAlertEvent(ctx context.Context, tenantID, alertID string) (*models.AlertEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := selectAlertColumns + `
		FROM alert_events
		WHERE alert_id = $1 AND tenant_id = $2
	`

	event, err := r.scanAlertEvent(r.db.QueryRowContext(ctx, query, alertID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert event not found: alert_id=%s, tenant_id=%s", alertID, tenantID)
		}
		return nil, fmt.Errorf("failed to get alert event: %w", err)
	}
	return event, nil
}

// ListAlertEvents 查询升级事件列表（多条件过滤和分页）
func (r *AlertEventsRepository) ListAlertEvents(
	ctx context.Context,
	tenantID string,
	filters AlertEventFilters,
	page, size int,
) ([]*models.AlertEvent, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argN := 2

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", argN))
		args = append(args, *filters.StartTime)
		argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", argN))
		args = append(args, *filters.EndTime)
		argN++
	}
	if filters.ResidentID != nil {
		where = append(where, fmt.Sprintf("resident_id = $%d", argN))
		args = append(args, *filters.ResidentID)
		argN++
	}
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(*filters.Status))
		argN++
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, 0, len(filters.Statuses))
		for _, s := range filters.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", argN))
		args = append(args, pq.Array(statuses))
		argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, string(*filters.Severity))
		argN++
	}
	if filters.Immediate != nil {
		where = append(where, fmt.Sprintf("requires_immediate_alert = $%d", argN))
		args = append(args, *filters.Immediate)
		argN++
	}

	whereClause := strings.Join(where, " AND ")

	countQuery := "SELECT COUNT(*) FROM alert_events WHERE " + whereClause
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	listQuery := fmt.Sprintf(`%s
		FROM alert_events
		WHERE %s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, selectAlertColumns, whereClause, argN, argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alert events: %w", err)
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event, err := r.scanAlertEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return events, total, nil
}

const selectAlertColumns = `
		SELECT
			alert_id,
			tenant_id,
			interaction_id,
			resident_id,
			status,
			severity,
			confidence,
			categories,
			detected_keywords,
			requires_immediate_alert,
			transcript_excerpt,
			triggered_at,
			created_at,
			updated_at`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AlertEventsRepository) scanAlertEvent(row rowScanner) (*models.AlertEvent, error) {
	var event models.AlertEvent
	var categories, keywords pq.StringArray

	err := row.Scan(
		&event.AlertID,
		&event.TenantID,
		&event.InteractionID,
		&event.ResidentID,
		&event.Status,
		&event.Severity,
		&event.Confidence,
		&categories,
		&keywords,
		&event.RequiresImmediateAlert,
		&event.TranscriptExcerpt,
		&event.TriggeredAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Categories = make([]models.Category, 0, len(categories))
	for _, c := range categories {
		event.Categories = append(event.Categories, models.Category(c))
	}
	event.DetectedKeywords = []string(keywords)

	return &event, nil
}
