package dispatcher

import (
	"strings"
	"testing"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/stretchr/testify/assert"
)

func testAlert() *models.AlertEvent {
	return &models.AlertEvent{
		AlertID:           "a1",
		TenantID:          "t1",
		ResidentID:        "res1",
		Severity:          models.SeverityCritical,
		Categories:        []models.Category{models.CategoryFall},
		TranscriptExcerpt: "I fell and I can't get up",
		TriggeredAt:       time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
	}
}

func TestRenderMessage_AllFormatsConsistent(t *testing.T) {
	msg := RenderMessage(testAlert(), "Edith M.")

	assert.Contains(t, msg.Title, "CRITICAL")
	assert.Contains(t, msg.Title, "Edith M.")
	assert.Contains(t, msg.Short, "fall")
	assert.Contains(t, msg.Subject, "critical")
	assert.Contains(t, msg.HTML, "Edith M.")
	assert.Contains(t, msg.Text, "I fell and I can't get up")
	assert.Contains(t, msg.HTML, "I fell and I can&#39;t get up")
}

func TestRenderMessage_SubjectIsPlainASCII(t *testing.T) {
	// The subject goes into the SMTP header without RFC 2047 encoding, so
	// any non-ASCII byte would render garbled in the recipient's client.
	msg := RenderMessage(testAlert(), "Edith M.")
	for i := 0; i < len(msg.Subject); i++ {
		assert.Less(t, msg.Subject[i], byte(0x80), "subject byte %d not ASCII", i)
	}
}

func TestRenderMessage_ShortClamped(t *testing.T) {
	alert := testAlert()
	alert.TranscriptExcerpt = strings.Repeat("long transcript ", 100)

	msg := RenderMessage(alert, "Edith M.")

	assert.LessOrEqual(t, len(msg.Short), smsMaxLen)
	assert.True(t, strings.HasSuffix(msg.Short, "..."))
}

func TestRenderMessage_UnknownResident(t *testing.T) {
	msg := RenderMessage(testAlert(), "")
	assert.Contains(t, msg.Short, "a resident")
}

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+14155550100", "+14155550100", false},
		{"+1 (415) 555-0100", "+14155550100", false},
		{"44 20 7946 0958", "+442079460958", false},
		{"+86.138.0013.8000", "+8613800138000", false},
		{"", "", true},
		{"not-a-number", "", true},
		{"0612345678", "", true},   // missing country code
		{"+1234", "", true},        // too short
		{"+1234567890123456", "", true}, // too long
	}
	for _, tc := range cases {
		got, err := NormalizeE164(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
		} else {
			assert.NoError(t, err, "input %q", tc.in)
			assert.Equal(t, tc.want, got)
		}
	}
}
