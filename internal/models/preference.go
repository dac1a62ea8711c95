package models

import (
	"fmt"
	"time"
)

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ChannelPriority orders channels for dispatch: push > sms > email.
func ChannelPriority(c Channel) int {
	switch c {
	case ChannelPush:
		return 0
	case ChannelSMS:
		return 1
	case ChannelEmail:
		return 2
	default:
		return 3
	}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelPush || c == ChannelSMS || c == ChannelEmail
}

// PreferenceSchemaVersion is the current versioned preference layout.
// Stored alongside each row so future migrations can interpret old rows.
const PreferenceSchemaVersion = 1

// NotificationPreference is the per (recipient, resident) notification
// configuration. A closed, versioned struct validated at write time — not a
// free-form blob interpreted at read time.
type NotificationPreference struct {
	RecipientID      string    `json:"recipient_id" db:"recipient_id"`
	ResidentID       string    `json:"resident_id" db:"resident_id"`
	TenantID         string    `json:"tenant_id" db:"tenant_id"`
	SchemaVersion    int       `json:"schema_version" db:"schema_version"`
	EnabledChannels  []Channel `json:"enabled_channels" db:"enabled_channels"`
	PreferredChannel Channel   `json:"preferred_channel" db:"preferred_channel"`
	QuietHoursStart  string    `json:"quiet_hours_start" db:"quiet_hours_start"` // "22:00", local time-of-day
	QuietHoursEnd    string    `json:"quiet_hours_end" db:"quiet_hours_end"`     // "08:00"
	Timezone         string    `json:"timezone" db:"timezone"`                   // IANA name, e.g. "America/New_York"
	EmergencyOverride bool     `json:"emergency_override" db:"emergency_override"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultPreference returns the preference created when a recipient/resident
// relationship is established: push on, sms and email off, override on,
// no quiet hours.
func DefaultPreference(tenantID, recipientID, residentID string) NotificationPreference {
	return NotificationPreference{
		RecipientID:       recipientID,
		ResidentID:        residentID,
		TenantID:          tenantID,
		SchemaVersion:     PreferenceSchemaVersion,
		EnabledChannels:   []Channel{ChannelPush},
		PreferredChannel:  ChannelPush,
		EmergencyOverride: true,
		UpdatedAt:         time.Now(),
	}
}

// ChannelEnabled reports whether c is in the enabled set.
func (p *NotificationPreference) ChannelEnabled(c Channel) bool {
	for _, e := range p.EnabledChannels {
		if e == c {
			return true
		}
	}
	return false
}

// HasQuietHours reports whether a quiet-hours window is configured.
func (p *NotificationPreference) HasQuietHours() bool {
	return p.QuietHoursStart != "" && p.QuietHoursEnd != ""
}

// Validate enforces the write-time rules for a preference row.
func (p *NotificationPreference) Validate() error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.ResidentID == "" {
		return fmt.Errorf("resident_id is required")
	}
	if p.SchemaVersion != PreferenceSchemaVersion {
		return fmt.Errorf("unsupported preference schema version: %d", p.SchemaVersion)
	}
	for _, c := range p.EnabledChannels {
		if !c.Valid() {
			return fmt.Errorf("unknown channel: %q", c)
		}
	}
	if !p.PreferredChannel.Valid() {
		return fmt.Errorf("unknown preferred channel: %q", p.PreferredChannel)
	}
	if (p.QuietHoursStart == "") != (p.QuietHoursEnd == "") {
		return fmt.Errorf("quiet hours start and end must be set together")
	}
	if p.HasQuietHours() {
		if err := validateTimeOfDay(p.QuietHoursStart); err != nil {
			return fmt.Errorf("invalid quiet_hours_start: %w", err)
		}
		if err := validateTimeOfDay(p.QuietHoursEnd); err != nil {
			return fmt.Errorf("invalid quiet_hours_end: %w", err)
		}
	}
	return nil
}

// validateTimeOfDay checks "HH:MM" 24-hour format.
func validateTimeOfDay(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("expected HH:MM, got %q", s)
	}
	return nil
}
