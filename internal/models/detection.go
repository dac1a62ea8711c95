package models

import (
	"fmt"
)

// Severity 报警级别 (incident severity level)
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparison (higher is worse).
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// IsEmergency reports whether s qualifies for the emergency-override path.
func (s Severity) IsEmergency() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Category is the incident classification vocabulary.
// The vocabulary is closed: unknown categories are rejected, not coerced.
type Category string

const (
	CategoryFall            Category = "fall"
	CategoryMedical         Category = "medical"
	CategoryDistress        Category = "distress"
	CategoryConfusion       Category = "confusion"
	CategoryAbuseDisclosure Category = "abuse-disclosure"
	CategoryOther           Category = "other"
)

var validCategories = map[Category]bool{
	CategoryFall:            true,
	CategoryMedical:         true,
	CategoryDistress:        true,
	CategoryConfusion:       true,
	CategoryAbuseDisclosure: true,
	CategoryOther:           true,
}

// ParseCategory validates a category string against the fixed vocabulary.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !validCategories[c] {
		return "", fmt.Errorf("unknown incident category: %q", s)
	}
	return c, nil
}

// IncidentDetection is the classifier output for one Interaction.
// Derived data: never persisted on its own, its fields are copied into the
// AlertEvent it triggers.
type IncidentDetection struct {
	IsIncident             bool       `json:"is_incident"`
	Confidence             float64    `json:"confidence"` // [0,1]
	Severity               Severity   `json:"severity"`
	Categories             []Category `json:"categories"`
	DetectedKeywords       []string   `json:"detected_keywords"`
	RequiresImmediateAlert bool       `json:"requires_immediate_alert"`
}

// Validate checks the detection invariants:
// requires_immediate_alert implies is_incident and severity in {high, critical}.
func (d *IncidentDetection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", d.Confidence)
	}
	if d.IsIncident && !d.Severity.Valid() {
		return fmt.Errorf("invalid severity: %q", d.Severity)
	}
	for _, c := range d.Categories {
		if !validCategories[c] {
			return fmt.Errorf("unknown incident category: %q", c)
		}
	}
	if d.RequiresImmediateAlert {
		if !d.IsIncident {
			return fmt.Errorf("requires_immediate_alert set on non-incident")
		}
		if !d.Severity.IsEmergency() {
			return fmt.Errorf("requires_immediate_alert requires high or critical severity, got %q", d.Severity)
		}
	}
	return nil
}

// NoIncident is the degraded result used when a transcript scores below the
// incident threshold or the scorer itself fails.
func NoIncident() IncidentDetection {
	return IncidentDetection{
		IsIncident: false,
		Confidence: 0,
		Severity:   SeverityLow,
	}
}
