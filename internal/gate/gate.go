// Package gate decides, per recipient, which notification channels are
// currently permitted given the recipient's preference snapshot, the alert
// severity and the local time of day.
package gate

import (
	"sort"
	"time"

	"wisefido-escalation/internal/models"
)

// PermittedChannels computes the channels an alert may use for one recipient.
//
// Rules:
//   - start from the recipient's enabled-channel set;
//   - inside the quiet-hours window, routine alerts are fully suppressed
//     (empty set; the caller records suppressed ledger rows);
//   - high/critical alerts with requiresImmediate bypass quiet hours only
//     when the recipient has opted into emergency override. Without the
//     opt-in the alert is suppressed even for emergencies — the recipient's
//     explicit preference is honored, and the suppression is auditable;
//   - result order: preferred channel first when permitted, the remainder
//     push > sms > email.
func PermittedChannels(
	pref models.NotificationPreference,
	severity models.Severity,
	requiresImmediate bool,
	now time.Time,
) []models.Channel {
	enabled := make([]models.Channel, 0, len(pref.EnabledChannels))
	seen := make(map[models.Channel]bool)
	for _, c := range pref.EnabledChannels {
		if c.Valid() && !seen[c] {
			enabled = append(enabled, c)
			seen[c] = true
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	if pref.HasQuietHours() && inQuietHours(pref, now) {
		emergency := severity.IsEmergency() && requiresImmediate
		if !emergency || !pref.EmergencyOverride {
			return nil
		}
		// override opt-in restores the full enabled set
	}

	orderChannels(enabled, pref.PreferredChannel)
	return enabled
}

// inQuietHours reports whether now falls within [start, end), evaluated in
// the recipient's local time-of-day with midnight wrap (22:00–08:00 spans
// midnight). An unknown timezone falls back to the server's local zone.
func inQuietHours(pref models.NotificationPreference, now time.Time) bool {
	start, err1 := time.Parse("15:04", pref.QuietHoursStart)
	end, err2 := time.Parse("15:04", pref.QuietHoursEnd)
	if err1 != nil || err2 != nil {
		// Unparseable window: treat as no quiet hours rather than
		// suppressing notifications on bad data.
		return false
	}

	local := now
	if pref.Timezone != "" {
		if loc, err := time.LoadLocation(pref.Timezone); err == nil {
			local = now.In(loc)
		}
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	nowMin := local.Hour()*60 + local.Minute()

	if startMin == endMin {
		// zero-length window never suppresses
		return false
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// window wraps midnight
	return nowMin >= startMin || nowMin < endMin
}

// orderChannels sorts in place: preferred first, remainder by fixed priority.
func orderChannels(channels []models.Channel, preferred models.Channel) {
	sort.Slice(channels, func(i, j int) bool {
		if channels[i] == preferred {
			return true
		}
		if channels[j] == preferred {
			return false
		}
		return models.ChannelPriority(channels[i]) < models.ChannelPriority(channels[j])
	})
}
