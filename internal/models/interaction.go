package models

import (
	"time"
)

// InteractionSource identifies how the transcript was captured.
type InteractionSource string

const (
	SourceVoice InteractionSource = "voice"
	SourceText  InteractionSource = "text"
)

// Interaction is one completed conversational exchange with a resident.
// Produced by the conversation collaborator; immutable once created.
type Interaction struct {
	InteractionID string            `json:"interaction_id" db:"interaction_id"`
	TenantID      string            `json:"tenant_id" db:"tenant_id"`
	ResidentID    string            `json:"resident_id" db:"resident_id"`
	Transcript    string            `json:"transcript" db:"transcript"`
	Source        InteractionSource `json:"source" db:"source"`
	StartedAt     time.Time         `json:"started_at" db:"started_at"`
	EndedAt       time.Time         `json:"ended_at" db:"ended_at"`
}
