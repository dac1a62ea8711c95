package models

import (
	"time"
)

// RecipientKind distinguishes family contacts from organizational staff.
type RecipientKind string

const (
	KindFamilyContact     RecipientKind = "family"
	KindOrganizationStaff RecipientKind = "staff"
)

// StaffRole 机构人员角色 (role priority order for staff notification)
type StaffRole string

const (
	RoleFacilityDirector StaffRole = "facility_director"
	RoleCareManager      StaffRole = "care_manager"
	RoleNurse            StaffRole = "nurse"
	RoleOther            StaffRole = "other"
)

// StaffRolePriority returns the notification ordering rank for a staff role.
// Lower is notified first. Unknown roles sort last.
func StaffRolePriority(role StaffRole) int {
	switch role {
	case RoleFacilityDirector:
		return 0
	case RoleCareManager:
		return 1
	case RoleNurse:
		return 2
	default:
		return 3
	}
}

// Recipient is a person eligible to be notified about a resident.
// FamilyContact fields (Relationship, IsPrimaryContact) are meaningful when
// Kind == family; Role when Kind == staff.
type Recipient struct {
	RecipientID      string        `json:"recipient_id" db:"recipient_id"`
	TenantID         string        `json:"tenant_id" db:"tenant_id"`
	ResidentID       string        `json:"resident_id" db:"resident_id"`
	Kind             RecipientKind `json:"kind" db:"kind"`
	DisplayName      string        `json:"display_name" db:"display_name"`
	Relationship     *string       `json:"relationship,omitempty" db:"relationship"`
	IsPrimaryContact bool          `json:"is_primary_contact" db:"is_primary_contact"`
	Role             *StaffRole    `json:"role,omitempty" db:"role"`
	Phone            *string       `json:"phone,omitempty" db:"phone"`
	Email            *string       `json:"email,omitempty" db:"email"`
	PushEndpoint     *string       `json:"push_endpoint,omitempty" db:"push_endpoint"`
	ConsentWithdrawn bool          `json:"consent_withdrawn" db:"consent_withdrawn"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// ResolvedRecipient pairs a recipient with the notification preference snapshot
// read at resolution time. Mid-dispatch preference changes do not affect an
// already-started event.
type ResolvedRecipient struct {
	Recipient  Recipient
	Preference NotificationPreference
}
