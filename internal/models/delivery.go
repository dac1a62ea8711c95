package models

import (
	"time"
)

// AttemptStatus is the terminal state of one delivery attempt.
type AttemptStatus string

const (
	AttemptQueued     AttemptStatus = "queued"
	AttemptSent       AttemptStatus = "sent"
	AttemptFailed     AttemptStatus = "failed"
	AttemptSuppressed AttemptStatus = "suppressed"
)

// DeliveryAttempt is one row of the append-only delivery ledger
// (对应 delivery_attempts 表). Rows are never updated and never deleted;
// a retry creates a new row with an incremented attempt number. Suppressed
// channels get a row too — "no action taken" is data, not a gap.
type DeliveryAttempt struct {
	AttemptID         string        `json:"attempt_id" db:"attempt_id"`
	AlertID           string        `json:"alert_id" db:"alert_id"`
	TenantID          string        `json:"tenant_id" db:"tenant_id"`
	RecipientID       string        `json:"recipient_id" db:"recipient_id"`
	Channel           Channel       `json:"channel" db:"channel"`
	AttemptNumber     int           `json:"attempt_number" db:"attempt_number"`
	Status            AttemptStatus `json:"status" db:"status"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Error             *string       `json:"error,omitempty" db:"error"`
	AttemptedAt       time.Time     `json:"attempted_at" db:"attempted_at"`
}

// DeliveryOutcome is the dispatcher's normalized per-send result.
// Permanent marks failures that must not be retried (malformed address,
// provider content rejection) as opposed to transient transport faults.
type DeliveryOutcome struct {
	Status            AttemptStatus
	ProviderMessageID string
	Error             string
	Permanent         bool
}
