package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecipientStore struct {
	recipients []models.Recipient
	err        error
}

func (f *fakeRecipientStore) ListRecipients(ctx context.Context, tenantID, residentID string) ([]models.Recipient, error) {
	return f.recipients, f.err
}

type fakePreferenceStore struct {
	prefs map[string]models.NotificationPreference
	err   error
}

func (f *fakePreferenceStore) GetPreference(ctx context.Context, tenantID, recipientID, residentID string) (models.NotificationPreference, error) {
	if f.err != nil {
		return models.NotificationPreference{}, f.err
	}
	if pref, ok := f.prefs[recipientID]; ok {
		return pref, nil
	}
	return models.DefaultPreference(tenantID, recipientID, residentID), nil
}

func role(r models.StaffRole) *models.StaffRole { return &r }

func familyContact(id string, primary bool, created time.Time) models.Recipient {
	return models.Recipient{
		RecipientID:      id,
		TenantID:         "t1",
		ResidentID:       "res1",
		Kind:             models.KindFamilyContact,
		IsPrimaryContact: primary,
		CreatedAt:        created,
	}
}

func staffMember(id string, r models.StaffRole, created time.Time) models.Recipient {
	return models.Recipient{
		RecipientID: id,
		TenantID:    "t1",
		ResidentID:  "res1",
		Kind:        models.KindOrganizationStaff,
		Role:        role(r),
		CreatedAt:   created,
	}
}

func TestResolve_Ordering(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// deliberately shuffled input
	store := &fakeRecipientStore{recipients: []models.Recipient{
		staffMember("nurse", models.RoleNurse, base),
		familyContact("son", false, base.Add(2*time.Hour)),
		staffMember("director", models.RoleFacilityDirector, base.Add(time.Hour)),
		familyContact("daughter-primary", true, base.Add(time.Hour)),
		familyContact("niece", false, base.Add(time.Hour)),
		staffMember("aide", models.RoleOther, base),
	}}

	r := NewResolver(store, &fakePreferenceStore{}, zap.NewNop())
	resolved, err := r.Resolve(context.Background(), "t1", "res1")

	require.NoError(t, err)
	ids := make([]string, 0, len(resolved))
	for _, rr := range resolved {
		ids = append(ids, rr.Recipient.RecipientID)
	}
	assert.Equal(t, []string{"daughter-primary", "niece", "son", "director", "nurse", "aide"}, ids)
}

func TestResolve_EmptyIsNotError(t *testing.T) {
	r := NewResolver(&fakeRecipientStore{}, &fakePreferenceStore{}, zap.NewNop())

	resolved, err := r.Resolve(context.Background(), "t1", "res1")

	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolve_PreferencesAttached(t *testing.T) {
	base := time.Now()
	store := &fakeRecipientStore{recipients: []models.Recipient{
		familyContact("fam1", true, base),
	}}
	prefs := &fakePreferenceStore{prefs: map[string]models.NotificationPreference{
		"fam1": {
			RecipientID:      "fam1",
			ResidentID:       "res1",
			TenantID:         "t1",
			SchemaVersion:    models.PreferenceSchemaVersion,
			EnabledChannels:  []models.Channel{models.ChannelSMS},
			PreferredChannel: models.ChannelSMS,
		},
	}}

	r := NewResolver(store, prefs, zap.NewNop())
	resolved, err := r.Resolve(context.Background(), "t1", "res1")

	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, []models.Channel{models.ChannelSMS}, resolved[0].Preference.EnabledChannels)
}

func TestResolve_MissingPreferenceUsesDefaults(t *testing.T) {
	store := &fakeRecipientStore{recipients: []models.Recipient{
		familyContact("fam1", true, time.Now()),
	}}

	r := NewResolver(store, &fakePreferenceStore{}, zap.NewNop())
	resolved, err := r.Resolve(context.Background(), "t1", "res1")

	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, []models.Channel{models.ChannelPush}, resolved[0].Preference.EnabledChannels)
	assert.True(t, resolved[0].Preference.EmergencyOverride)
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	r := NewResolver(&fakeRecipientStore{err: errors.New("db down")}, &fakePreferenceStore{}, zap.NewNop())

	_, err := r.Resolve(context.Background(), "t1", "res1")
	assert.Error(t, err)
}

func TestResolve_RequiredFields(t *testing.T) {
	r := NewResolver(&fakeRecipientStore{}, &fakePreferenceStore{}, zap.NewNop())

	_, err := r.Resolve(context.Background(), "", "res1")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "t1", "")
	assert.Error(t, err)
}
