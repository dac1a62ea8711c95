package models

import (
	"time"
)

// AlertStatus is the AlertEvent lifecycle state.
// created → dispatching → delivered | degraded | failed (terminal).
type AlertStatus string

const (
	AlertStatusCreated     AlertStatus = "created"
	AlertStatusDispatching AlertStatus = "dispatching"
	AlertStatusDelivered   AlertStatus = "delivered" // at least one attempt sent
	AlertStatusDegraded    AlertStatus = "degraded"  // some sent, some failed
	AlertStatusFailed      AlertStatus = "failed"    // all failed or suppressed
)

// Terminal reports whether s is a terminal alert status.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusDelivered || s == AlertStatusDegraded || s == AlertStatusFailed
}

// AlertEvent is the unit of work the orchestrator processes end-to-end
// (对应 alert_events 表). One row per incident-flagged interaction; the
// interaction_id uniqueness is the idempotency anchor.
type AlertEvent struct {
	AlertID                string      `json:"alert_id" db:"alert_id"`
	TenantID               string      `json:"tenant_id" db:"tenant_id"`
	InteractionID          string      `json:"interaction_id" db:"interaction_id"`
	ResidentID             string      `json:"resident_id" db:"resident_id"`
	Status                 AlertStatus `json:"status" db:"status"`
	Severity               Severity    `json:"severity" db:"severity"`
	Confidence             float64     `json:"confidence" db:"confidence"`
	Categories             []Category  `json:"categories" db:"categories"`
	DetectedKeywords       []string    `json:"detected_keywords" db:"detected_keywords"`
	RequiresImmediateAlert bool        `json:"requires_immediate_alert" db:"requires_immediate_alert"`
	TranscriptExcerpt      string      `json:"transcript_excerpt" db:"transcript_excerpt"`
	TriggeredAt            time.Time   `json:"triggered_at" db:"triggered_at"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at" db:"updated_at"`
}
