package dispatcher

import (
	"fmt"
	"html"
	"strings"

	"wisefido-escalation/internal/models"
)

// smsMaxLen keeps short-channel bodies inside one provider segment budget.
const smsMaxLen = 320

// Message is the rendered notification content for one alert. All channels
// render from the same AlertEvent so content stays consistent; only the
// format differs per channel.
type Message struct {
	Title   string // push title
	Short   string // sms/push body, length-clamped
	Subject string // email subject
	HTML    string // email html body
	Text    string // email plain-text fallback
}

// RenderMessage builds the per-channel content for an alert.
func RenderMessage(alert *models.AlertEvent, residentName string) Message {
	who := residentName
	if who == "" {
		who = "a resident"
	}

	var kind string
	if len(alert.Categories) > 0 {
		parts := make([]string, 0, len(alert.Categories))
		for _, c := range alert.Categories {
			parts = append(parts, string(c))
		}
		kind = strings.Join(parts, ", ")
	} else {
		kind = "incident"
	}

	title := fmt.Sprintf("%s alert for %s", strings.ToUpper(string(alert.Severity)), who)

	short := fmt.Sprintf("%s: possible %s detected for %s at %s. Excerpt: %q",
		strings.ToUpper(string(alert.Severity)),
		kind,
		who,
		alert.TriggeredAt.Format("15:04 Jan 2"),
		alert.TranscriptExcerpt,
	)
	short = clamp(short, smsMaxLen)

	// Subject must stay plain ASCII: it goes into the SMTP header raw,
	// without RFC 2047 encoding.
	subject := fmt.Sprintf("[WiseFido] %s incident alert: %s", alert.Severity, who)

	text := fmt.Sprintf(
		"An incident was detected for %s.\r\n\r\n"+
			"Severity: %s\r\nCategories: %s\r\nDetected at: %s\r\n\r\n"+
			"Transcript excerpt:\r\n%s\r\n\r\n"+
			"Alert ID: %s\r\n",
		who, alert.Severity, kind,
		alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
		alert.TranscriptExcerpt,
		alert.AlertID,
	)

	htmlBody := fmt.Sprintf(
		"<html><body>"+
			"<h2>Incident alert for %s</h2>"+
			"<p><b>Severity:</b> %s<br/><b>Categories:</b> %s<br/><b>Detected at:</b> %s</p>"+
			"<blockquote>%s</blockquote>"+
			"<p style=\"color:#888\">Alert ID: %s</p>"+
			"</body></html>",
		html.EscapeString(who),
		html.EscapeString(string(alert.Severity)),
		html.EscapeString(kind),
		alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
		html.EscapeString(alert.TranscriptExcerpt),
		html.EscapeString(alert.AlertID),
	)

	return Message{
		Title:   title,
		Short:   short,
		Subject: subject,
		HTML:    htmlBody,
		Text:    text,
	}
}

// clamp truncates s to max bytes on a rune boundary with an ellipsis.
func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	for len(string(runes)) > max-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
