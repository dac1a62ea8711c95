// Package transport holds the external delivery collaborators: the SMS
// gateway, the push broker, the SMTP relay and the on-call fallback sink.
// Each is an explicit injected dependency with its own lifecycle — no
// module-level singleton clients.
package transport

import (
	"context"
	"errors"
)

// SMSTransport sends one SMS. to must already be E.164-normalized.
type SMSTransport interface {
	SendSMS(ctx context.Context, toE164, body string) (providerID string, err error)
}

// PushTransport sends one push notification to an app endpoint.
type PushTransport interface {
	SendPush(ctx context.Context, endpoint, title, body string) (providerID string, err error)
}

// EmailTransport sends one email with an HTML body and a plain-text fallback.
type EmailTransport interface {
	SendEmail(ctx context.Context, to, subject, html, text string) (messageID string, err error)
}

// OnCallNotifier is the out-of-band operational sink, invoked only when a
// critical alert has exhausted every recipient/channel option.
type OnCallNotifier interface {
	NotifyOnCall(ctx context.Context, payload OnCallPayload) error
}

// OnCallPayload is the fallback message body.
type OnCallPayload struct {
	AlertID    string `json:"alert_id"`
	TenantID   string `json:"tenant_id"`
	ResidentID string `json:"resident_id"`
	Severity   string `json:"severity"`
	Reason     string `json:"reason"`
	Summary    string `json:"summary"`
}

// permanentError marks a failure that must not be retried (provider rejected
// the content or the address; trying again cannot succeed).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent wraps err as non-retryable.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) is non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
