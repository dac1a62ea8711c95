// Package orchestrator coordinates one AlertEvent end-to-end: classify the
// interaction, resolve recipients, gate channels, fan out dispatch, keep the
// delivery ledger, and page the on-call fallback when a critical alert
// exhausts every option.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"wisefido-escalation/internal/dispatcher"
	"wisefido-escalation/internal/gate"
	"wisefido-escalation/internal/models"
	"wisefido-escalation/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transcriptExcerptLen bounds how much raw transcript is copied onto the
// alert record and into rendered messages.
const transcriptExcerptLen = 400

// IncidentClassifier scores a transcript (for test mocking).
type IncidentClassifier interface {
	Classify(transcript string) models.IncidentDetection
}

// RecipientResolver produces the ordered recipient set with preferences.
type RecipientResolver interface {
	Resolve(ctx context.Context, tenantID, residentID string) ([]models.ResolvedRecipient, error)
}

// AlertStore is the alert-event persistence surface.
type AlertStore interface {
	CreateAlertEvent(ctx context.Context, tenantID string, event *models.AlertEvent) error
	ExistsForInteraction(ctx context.Context, tenantID, interactionID string) (bool, error)
	UpdateAlertStatus(ctx context.Context, tenantID, alertID string, status models.AlertStatus) error
}

// Ledger is the append-only delivery ledger surface.
type Ledger interface {
	InsertAttempt(ctx context.Context, tenantID string, attempt *models.DeliveryAttempt) error
}

// ResidentDirectory resolves display names for message rendering.
type ResidentDirectory interface {
	GetResidentName(ctx context.Context, tenantID, residentID string) (string, error)
}

// Sender performs one transport call for one (recipient, channel) pair.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, recipient models.Recipient, msg dispatcher.Message) models.DeliveryOutcome
}

// Options are the orchestrator dispatch budgets.
type Options struct {
	MaxAttempts   int           // per (recipient, channel), including the first try
	BackoffBase   time.Duration // exponential backoff base between retries
	MaxConcurrent int           // recipient fan-out cap for routine alerts
}

// Orchestrator 升级编排器
type Orchestrator struct {
	classifier IncidentClassifier
	resolver   RecipientResolver
	alerts     AlertStore
	ledger     Ledger
	residents  ResidentDirectory
	sender     Sender
	fallback   transport.OnCallNotifier
	opts       Options
	logger     *zap.Logger

	// isDuplicate recognizes the store's duplicate-interaction error.
	isDuplicate func(error) bool
	now         func() time.Time
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	classifier IncidentClassifier,
	resolver RecipientResolver,
	alerts AlertStore,
	ledger Ledger,
	residents ResidentDirectory,
	sender Sender,
	fallback transport.OnCallNotifier,
	isDuplicate func(error) bool,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if isDuplicate == nil {
		isDuplicate = func(error) bool { return false }
	}
	return &Orchestrator{
		classifier:  classifier,
		resolver:    resolver,
		alerts:      alerts,
		ledger:      ledger,
		residents:   residents,
		sender:      sender,
		fallback:    fallback,
		opts:        opts,
		logger:      logger,
		isDuplicate: isDuplicate,
		now:         time.Now,
	}
}

// OnInteractionCompleted processes one completed interaction. Safe to call
// twice with the same interaction id: the alert-exists check plus the
// store's unique interaction constraint guarantee a single AlertEvent.
func (o *Orchestrator) OnInteractionCompleted(ctx context.Context, interaction *models.Interaction) error {
	if interaction == nil {
		return fmt.Errorf("interaction is required")
	}
	if interaction.TenantID == "" {
		return fmt.Errorf("interaction tenant_id is required")
	}
	if interaction.InteractionID == "" {
		return fmt.Errorf("interaction_id is required")
	}

	detection := o.classifier.Classify(interaction.Transcript)
	if !detection.IsIncident {
		// The common case: no recipient resolution, no persistence.
		return nil
	}

	exists, err := o.alerts.ExistsForInteraction(ctx, interaction.TenantID, interaction.InteractionID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if exists {
		o.logger.Info("Alert already exists for interaction, skipping",
			zap.String("interaction_id", interaction.InteractionID),
		)
		return nil
	}

	alert := o.buildAlertEvent(interaction, detection)
	if err := o.alerts.CreateAlertEvent(ctx, interaction.TenantID, alert); err != nil {
		if o.isDuplicate(err) {
			// Lost a race with a concurrent call for the same interaction.
			o.logger.Info("Concurrent alert creation detected, skipping",
				zap.String("interaction_id", interaction.InteractionID),
			)
			return nil
		}
		return fmt.Errorf("failed to create alert event: %w", err)
	}

	o.logger.Info("Alert event created",
		zap.String("alert_id", alert.AlertID),
		zap.String("resident_id", alert.ResidentID),
		zap.String("severity", string(alert.Severity)),
		zap.Bool("immediate", alert.RequiresImmediateAlert),
	)

	recipients, err := o.resolveWithRetry(ctx, interaction.TenantID, interaction.ResidentID)
	if err != nil {
		// Resolution stayed down through the retry budget. The alert row
		// exists; leave it non-terminal for operator follow-up.
		o.logger.Error("Recipient resolution exhausted retries",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}

	if err := o.alerts.UpdateAlertStatus(ctx, interaction.TenantID, alert.AlertID, models.AlertStatusDispatching); err != nil {
		o.logger.Error("Failed to mark alert dispatching",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}

	if len(recipients) == 0 {
		// A resident with no one to notify is an audit finding, not a crash.
		o.logger.Warn("Alert has zero recipients",
			zap.String("alert_id", alert.AlertID),
			zap.String("resident_id", alert.ResidentID),
		)
		o.finalize(ctx, alert, dispatchTally{})
		return nil
	}

	residentName, err := o.residents.GetResidentName(ctx, interaction.TenantID, interaction.ResidentID)
	if err != nil {
		o.logger.Warn("Failed to look up resident name, using generic label",
			zap.String("resident_id", interaction.ResidentID),
			zap.Error(err),
		)
		residentName = ""
	}
	msg := dispatcher.RenderMessage(alert, residentName)

	tally := o.fanOut(ctx, alert, recipients, msg)
	o.finalize(ctx, alert, tally)
	return nil
}

func (o *Orchestrator) buildAlertEvent(interaction *models.Interaction, detection models.IncidentDetection) *models.AlertEvent {
	now := o.now()
	excerpt := truncateExcerpt(interaction.Transcript, transcriptExcerptLen)
	return &models.AlertEvent{
		AlertID:                uuid.New().String(),
		TenantID:               interaction.TenantID,
		InteractionID:          interaction.InteractionID,
		ResidentID:             interaction.ResidentID,
		Status:                 models.AlertStatusCreated,
		Severity:               detection.Severity,
		Confidence:             detection.Confidence,
		Categories:             detection.Categories,
		DetectedKeywords:       detection.DetectedKeywords,
		RequiresImmediateAlert: detection.RequiresImmediateAlert,
		TranscriptExcerpt:      excerpt,
		TriggeredAt:            interaction.EndedAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// truncateExcerpt cuts s to at most max bytes without splitting a UTF-8
// sequence. Transcripts are conversational text and may carry multi-byte
// characters.
func truncateExcerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// resolveWithRetry retries recipient resolution with backoff: an incident
// must eventually be escalated, so a transient persistence outage is worth
// waiting out.
func (o *Orchestrator) resolveWithRetry(ctx context.Context, tenantID, residentID string) ([]models.ResolvedRecipient, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		recipients, err := o.resolver.Resolve(ctx, tenantID, residentID)
		if err == nil {
			return recipients, nil
		}
		lastErr = err
		o.logger.Warn("Recipient resolution failed",
			zap.String("resident_id", residentID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < o.opts.MaxAttempts {
			if err := o.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// dispatchTally aggregates final per-(recipient, channel) outcomes.
type dispatchTally struct {
	sent       int
	failed     int
	suppressed int
}

// fanOut dispatches to every recipient concurrently. Channels for one
// recipient go sequentially in gate order; recipients are independent.
// Routine alerts respect the MaxConcurrent cap so a burst does not blow
// provider quotas; immediate alerts are never throttled.
func (o *Orchestrator) fanOut(
	ctx context.Context,
	alert *models.AlertEvent,
	recipients []models.ResolvedRecipient,
	msg dispatcher.Message,
) dispatchTally {
	var (
		mu    sync.Mutex
		tally dispatchTally
		wg    sync.WaitGroup
	)

	var sem chan struct{}
	if !alert.RequiresImmediateAlert {
		sem = make(chan struct{}, o.opts.MaxConcurrent)
	}

	now := o.now()
	for _, rec := range recipients {
		wg.Add(1)
		go func(rec models.ResolvedRecipient) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			result := o.dispatchRecipient(ctx, alert, rec, msg, now)

			mu.Lock()
			tally.sent += result.sent
			tally.failed += result.failed
			tally.suppressed += result.suppressed
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	return tally
}

// dispatchRecipient handles one recipient: gate the channels, record
// suppressions, then try each permitted channel in order with the retry
// budget.
func (o *Orchestrator) dispatchRecipient(
	ctx context.Context,
	alert *models.AlertEvent,
	rec models.ResolvedRecipient,
	msg dispatcher.Message,
	now time.Time,
) dispatchTally {
	var tally dispatchTally

	permitted := gate.PermittedChannels(rec.Preference, alert.Severity, alert.RequiresImmediateAlert, now)
	permittedSet := make(map[models.Channel]bool, len(permitted))
	for _, c := range permitted {
		permittedSet[c] = true
	}

	// Every enabled-but-not-permitted channel gets a suppressed ledger row:
	// the audit process treats a missing record as a bug.
	for _, c := range rec.Preference.EnabledChannels {
		if !c.Valid() || permittedSet[c] {
			continue
		}
		reason := "suppressed by quiet hours policy"
		o.recordAttempt(ctx, &models.DeliveryAttempt{
			AttemptID:     uuid.New().String(),
			AlertID:       alert.AlertID,
			TenantID:      alert.TenantID,
			RecipientID:   rec.Recipient.RecipientID,
			Channel:       c,
			AttemptNumber: 1,
			Status:        models.AttemptSuppressed,
			Error:         &reason,
			AttemptedAt:   o.now(),
		})
		tally.suppressed++
	}

	for _, channel := range permitted {
		if o.dispatchChannel(ctx, alert, rec.Recipient, channel, msg) {
			tally.sent++
		} else {
			tally.failed++
		}
	}

	return tally
}

// dispatchChannel runs the retry loop for one (recipient, channel) pair.
// Each try is its own ledger row, written before the next try starts, so a
// retry always follows the prior attempt's recorded terminal state.
func (o *Orchestrator) dispatchChannel(
	ctx context.Context,
	alert *models.AlertEvent,
	recipient models.Recipient,
	channel models.Channel,
	msg dispatcher.Message,
) bool {
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		outcome := o.sender.Send(ctx, channel, recipient, msg)

		row := &models.DeliveryAttempt{
			AttemptID:     uuid.New().String(),
			AlertID:       alert.AlertID,
			TenantID:      alert.TenantID,
			RecipientID:   recipient.RecipientID,
			Channel:       channel,
			AttemptNumber: attempt,
			Status:        outcome.Status,
			AttemptedAt:   o.now(),
		}
		if outcome.ProviderMessageID != "" {
			row.ProviderMessageID = &outcome.ProviderMessageID
		}
		if outcome.Error != "" {
			errMsg := outcome.Error
			row.Error = &errMsg
		}
		o.recordAttempt(ctx, row)

		if outcome.Status == models.AttemptSent {
			return true
		}
		if outcome.Permanent {
			o.logger.Warn("Permanent delivery failure, not retrying",
				zap.String("alert_id", alert.AlertID),
				zap.String("recipient_id", recipient.RecipientID),
				zap.String("channel", string(channel)),
				zap.String("error", outcome.Error),
			)
			return false
		}
		if attempt < o.opts.MaxAttempts {
			if err := o.backoff(ctx, attempt); err != nil {
				return false
			}
		}
	}

	o.logger.Error("Delivery retries exhausted",
		zap.String("alert_id", alert.AlertID),
		zap.String("recipient_id", recipient.RecipientID),
		zap.String("channel", string(channel)),
	)
	return false
}

// recordAttempt appends one ledger row. An insert failure is logged loudly
// but does not abort the dispatch: losing audit data is bad, dropping a
// resident safety notification over it is worse.
func (o *Orchestrator) recordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) {
	if err := o.ledger.InsertAttempt(ctx, attempt.TenantID, attempt); err != nil {
		o.logger.Error("Failed to record delivery attempt",
			zap.String("alert_id", attempt.AlertID),
			zap.String("recipient_id", attempt.RecipientID),
			zap.String("channel", string(attempt.Channel)),
			zap.Error(err),
		)
	}
}

// finalize computes the terminal alert status and pages the on-call
// fallback when a critical immediate alert exhausted every option.
func (o *Orchestrator) finalize(ctx context.Context, alert *models.AlertEvent, tally dispatchTally) {
	var status models.AlertStatus
	switch {
	case tally.sent == 0:
		status = models.AlertStatusFailed
	case tally.failed == 0:
		status = models.AlertStatusDelivered
	default:
		status = models.AlertStatusDegraded
	}

	if err := o.alerts.UpdateAlertStatus(ctx, alert.TenantID, alert.AlertID, status); err != nil {
		o.logger.Error("Failed to finalize alert status",
			zap.String("alert_id", alert.AlertID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}

	o.logger.Info("Alert event finalized",
		zap.String("alert_id", alert.AlertID),
		zap.String("status", string(status)),
		zap.Int("sent", tally.sent),
		zap.Int("failed", tally.failed),
		zap.Int("suppressed", tally.suppressed),
	)

	if status == models.AlertStatusFailed && alert.RequiresImmediateAlert {
		// A critical incident must never disappear silently.
		payload := transport.OnCallPayload{
			AlertID:    alert.AlertID,
			TenantID:   alert.TenantID,
			ResidentID: alert.ResidentID,
			Severity:   string(alert.Severity),
			Reason:     "all recipient channels failed or suppressed",
			Summary:    alert.TranscriptExcerpt,
		}
		if err := o.fallback.NotifyOnCall(ctx, payload); err != nil {
			o.logger.Error("On-call fallback failed for exhausted critical alert",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		}
	}
}

// backoff sleeps the exponential delay for the given attempt number,
// aborting early if the context is canceled.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) error {
	delay := o.opts.BackoffBase << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
