// Package resolver produces the ordered set of eligible notification
// recipients for a resident, each paired with a consistent preference
// snapshot read at resolution time.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"wisefido-escalation/internal/models"

	"go.uber.org/zap"
)

// RecipientStore is the recipient persistence surface (for test mocking).
type RecipientStore interface {
	ListRecipients(ctx context.Context, tenantID, residentID string) ([]models.Recipient, error)
}

// PreferenceStore is the preference persistence surface (for test mocking).
type PreferenceStore interface {
	GetPreference(ctx context.Context, tenantID, recipientID, residentID string) (models.NotificationPreference, error)
}

// Resolver 通知对象解析器
type Resolver struct {
	recipients  RecipientStore
	preferences PreferenceStore
	logger      *zap.Logger
}

// NewResolver 创建解析器
func NewResolver(recipients RecipientStore, preferences PreferenceStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		recipients:  recipients,
		preferences: preferences,
		logger:      logger,
	}
}

// Resolve returns the notification order for a resident: primary family
// contact, remaining family contacts in relationship-creation order, staff
// in role-priority order. Consent-withdrawn recipients never appear (filtered
// in SQL). An empty result is a valid outcome the orchestrator logs as a
// coverage gap, not an error.
func (r *Resolver) Resolve(ctx context.Context, tenantID, residentID string) ([]models.ResolvedRecipient, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if residentID == "" {
		return nil, fmt.Errorf("resident_id is required")
	}

	recipients, err := r.recipients.ListRecipients(ctx, tenantID, residentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	// The SQL already orders; re-assert here so resolution order never
	// silently depends on a repository implementation detail.
	sortRecipients(recipients)

	resolved := make([]models.ResolvedRecipient, 0, len(recipients))
	for _, rec := range recipients {
		pref, err := r.preferences.GetPreference(ctx, tenantID, rec.RecipientID, residentID)
		if err != nil {
			return nil, fmt.Errorf("failed to get preference for recipient %s: %w", rec.RecipientID, err)
		}
		resolved = append(resolved, models.ResolvedRecipient{
			Recipient:  rec,
			Preference: pref,
		})
	}

	if len(resolved) == 0 {
		r.logger.Warn("No eligible recipients for resident",
			zap.String("tenant_id", tenantID),
			zap.String("resident_id", residentID),
		)
	}

	return resolved, nil
}

func sortRecipients(recipients []models.Recipient) {
	sort.SliceStable(recipients, func(i, j int) bool {
		a, b := recipients[i], recipients[j]

		// family before staff
		if a.Kind != b.Kind {
			return a.Kind == models.KindFamilyContact
		}

		if a.Kind == models.KindFamilyContact {
			if a.IsPrimaryContact != b.IsPrimaryContact {
				return a.IsPrimaryContact
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}

		// staff: role priority, then creation order
		pa, pb := rolePriority(a.Role), rolePriority(b.Role)
		if pa != pb {
			return pa < pb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func rolePriority(role *models.StaffRole) int {
	if role == nil {
		return models.StaffRolePriority(models.RoleOther)
	}
	return models.StaffRolePriority(*role)
}
