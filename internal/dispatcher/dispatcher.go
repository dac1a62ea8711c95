// Package dispatcher sends a single notification through one transport and
// normalizes the provider response into a DeliveryOutcome. Channel
// implementations are isolated behind the transport interfaces so a failure
// in one channel never affects another; retry policy belongs to the
// orchestrator, not here.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"wisefido-escalation/internal/models"
	"wisefido-escalation/internal/transport"

	"go.uber.org/zap"
)

// Timeouts are the per-channel send deadlines.
type Timeouts struct {
	SMS   time.Duration
	Push  time.Duration
	Email time.Duration
}

// Dispatcher 通道分发器
type Dispatcher struct {
	sms      transport.SMSTransport
	push     transport.PushTransport
	email    transport.EmailTransport
	timeouts Timeouts
	logger   *zap.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(
	sms transport.SMSTransport,
	push transport.PushTransport,
	email transport.EmailTransport,
	timeouts Timeouts,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		sms:      sms,
		push:     push,
		email:    email,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Send performs exactly one outbound transport call for one
// (recipient, channel) pair. A malformed or missing address fails
// permanently with no network call; transport faults (timeout, provider
// rejection) come back as failed with the error recorded for triage.
func (d *Dispatcher) Send(
	ctx context.Context,
	channel models.Channel,
	recipient models.Recipient,
	msg Message,
) models.DeliveryOutcome {
	switch channel {
	case models.ChannelSMS:
		return d.sendSMS(ctx, recipient, msg)
	case models.ChannelPush:
		return d.sendPush(ctx, recipient, msg)
	case models.ChannelEmail:
		return d.sendEmail(ctx, recipient, msg)
	default:
		return permanentFailure(fmt.Sprintf("unknown channel: %q", channel))
	}
}

func (d *Dispatcher) sendSMS(ctx context.Context, recipient models.Recipient, msg Message) models.DeliveryOutcome {
	if recipient.Phone == nil || *recipient.Phone == "" {
		return permanentFailure("recipient has no phone number")
	}
	toE164, err := NormalizeE164(*recipient.Phone)
	if err != nil {
		// Normalization failure is a dispatcher-level outcome, not a
		// transport call.
		return permanentFailure(fmt.Sprintf("phone normalization failed: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.SMS)
	defer cancel()

	providerID, err := d.sms.SendSMS(ctx, toE164, msg.Short)
	return d.outcome(models.ChannelSMS, recipient.RecipientID, providerID, err)
}

func (d *Dispatcher) sendPush(ctx context.Context, recipient models.Recipient, msg Message) models.DeliveryOutcome {
	if recipient.PushEndpoint == nil || *recipient.PushEndpoint == "" {
		return permanentFailure("recipient has no push endpoint")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Push)
	defer cancel()

	providerID, err := d.push.SendPush(ctx, *recipient.PushEndpoint, msg.Title, msg.Short)
	return d.outcome(models.ChannelPush, recipient.RecipientID, providerID, err)
}

func (d *Dispatcher) sendEmail(ctx context.Context, recipient models.Recipient, msg Message) models.DeliveryOutcome {
	if recipient.Email == nil || *recipient.Email == "" {
		return permanentFailure("recipient has no email address")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Email)
	defer cancel()

	messageID, err := d.email.SendEmail(ctx, *recipient.Email, msg.Subject, msg.HTML, msg.Text)
	return d.outcome(models.ChannelEmail, recipient.RecipientID, messageID, err)
}

// outcome normalizes a transport result.
func (d *Dispatcher) outcome(channel models.Channel, recipientID, providerID string, err error) models.DeliveryOutcome {
	if err != nil {
		d.logger.Warn("Transport send failed",
			zap.String("channel", string(channel)),
			zap.String("recipient_id", recipientID),
			zap.Bool("permanent", transport.IsPermanent(err)),
			zap.Error(err),
		)
		return models.DeliveryOutcome{
			Status:    models.AttemptFailed,
			Error:     err.Error(),
			Permanent: transport.IsPermanent(err),
		}
	}
	return models.DeliveryOutcome{
		Status:            models.AttemptSent,
		ProviderMessageID: providerID,
	}
}

func permanentFailure(reason string) models.DeliveryOutcome {
	return models.DeliveryOutcome{
		Status:    models.AttemptFailed,
		Error:     reason,
		Permanent: true,
	}
}
