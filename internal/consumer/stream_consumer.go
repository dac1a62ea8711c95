// Package consumer reads completed-interaction events off Redis Streams and
// feeds them to the escalation pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	readBlock    = 5 * time.Second
	readCount    = 16
	reclaimBatch = 64
)

// InteractionHandler processes one completed interaction.
type InteractionHandler interface {
	OnInteractionCompleted(ctx context.Context, interaction *models.Interaction) error
}

// Options 消费者调优参数
type Options struct {
	// MaxInFlight caps how many interactions are processed concurrently.
	// One slow dispatch (retry backoff, provider timeout) must not delay
	// classification of the next resident's interaction.
	MaxInFlight int
	// ReclaimInterval is how often the pending-entries list is swept for
	// entries whose consumer died or whose handler failed.
	ReclaimInterval time.Duration
	// ReclaimMinIdle is how long an entry must sit unacked before the sweep
	// takes it over. Must comfortably exceed normal processing time.
	ReclaimMinIdle time.Duration
}

// StreamConsumer 交互事件消费者（Redis Streams consumer group）
type StreamConsumer struct {
	client       *redis.Client
	stream       string
	group        string
	consumerName string
	dedupePrefix string
	dedupeTTL    time.Duration
	tenantID     string
	handler      InteractionHandler
	opts         Options
	logger       *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewStreamConsumer 创建消费者
func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumerName string,
	dedupePrefix string,
	dedupeTTL time.Duration,
	tenantID string,
	handler InteractionHandler,
	opts Options,
	logger *zap.Logger,
) *StreamConsumer {
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 16
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = 30 * time.Second
	}
	if opts.ReclaimMinIdle <= 0 {
		opts.ReclaimMinIdle = time.Minute
	}
	return &StreamConsumer{
		client:       client,
		stream:       stream,
		group:        group,
		consumerName: consumerName,
		dedupePrefix: dedupePrefix,
		dedupeTTL:    dedupeTTL,
		tenantID:     tenantID,
		handler:      handler,
		opts:         opts,
		logger:       logger,
		slots:        make(chan struct{}, opts.MaxInFlight),
	}
}

// Start runs the read loop until the context is canceled. Each interaction
// is handled on its own goroutine (bounded by MaxInFlight) and acked only
// after the handler returns; a crash mid-processing leaves the entry pending
// for the reclaim sweep.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
		zap.String("consumer", c.consumerName),
		zap.Int("max_in_flight", c.opts.MaxInFlight),
	)

	// Entries delivered to this consumer name before a restart are still in
	// the group's pending list; drain them before taking new work.
	c.recoverOwnPending(ctx)

	go c.reclaimLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerName,
			Streams:  []string{c.stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				c.wg.Wait()
				c.logger.Info("Stream consumer stopped")
				return nil
			}
			c.logger.Error("Failed to read from stream",
				zap.String("stream", c.stream),
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, msg)
			}
		}
	}
}

// dispatch hands one entry to a worker goroutine, blocking only when all
// in-flight slots are taken.
func (c *StreamConsumer) dispatch(ctx context.Context, msg redis.XMessage) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		// Unprocessed entry stays in the pending list for redelivery.
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.slots }()
		c.processMessage(ctx, msg)
	}()
}

// ensureGroup creates the consumer group, tolerating an existing one.
func (c *StreamConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// recoverOwnPending re-reads entries already delivered to this consumer name
// but never acked (process died mid-handling, or the handler failed right
// before shutdown). Reading id "0" returns own-PEL entries without consuming
// new ones. One bounded batch: anything beyond it is picked up by the
// reclaim sweep once idle.
func (c *StreamConsumer) recoverOwnPending(ctx context.Context) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerName,
		Streams:  []string{c.stream, "0"},
		Count:    reclaimBatch,
	}).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Failed to read own pending entries",
				zap.String("stream", c.stream),
				zap.Error(err),
			)
		}
		return
	}

	total := 0
	for _, stream := range streams {
		total += len(stream.Messages)
		for _, msg := range stream.Messages {
			c.dispatch(ctx, msg)
		}
	}
	if total > 0 {
		c.logger.Info("Recovered pending entries from previous run",
			zap.Int("count", total),
		)
	}
}

// reclaimLoop periodically claims stale pending entries — from crashed
// consumers in the group or from this consumer's own failed handler runs —
// so an incident is never stranded once its transient cause clears.
func (c *StreamConsumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reclaimStale(ctx)
		}
	}
}

// reclaimStale claims pending entries idle past ReclaimMinIdle and runs them
// through the normal processing path.
func (c *StreamConsumer) reclaimStale(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  reclaimBatch,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.logger.Error("Failed to inspect pending entries",
				zap.String("stream", c.stream),
				zap.Error(err),
			)
		}
		return
	}

	var stale []string
	for _, p := range pending {
		if p.Idle >= c.opts.ReclaimMinIdle {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) == 0 {
		return
	}

	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumerName,
		MinIdle:  c.opts.ReclaimMinIdle,
		Messages: stale,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.logger.Error("Failed to claim stale entries",
				zap.String("stream", c.stream),
				zap.Error(err),
			)
		}
		return
	}

	if len(msgs) > 0 {
		c.logger.Warn("Reclaimed stale pending entries",
			zap.Int("count", len(msgs)),
		)
	}
	for _, msg := range msgs {
		c.dispatch(ctx, msg)
	}
}

// processMessage parses, dedupes and dispatches one stream entry.
// Malformed entries are acked and dropped so a poison message cannot wedge
// the group.
func (c *StreamConsumer) processMessage(ctx context.Context, msg redis.XMessage) {
	interaction, err := c.parseInteraction(msg)
	if err != nil {
		c.logger.Error("Discarding malformed stream entry",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		c.ack(ctx, msg.ID)
		return
	}

	// Cross-consumer dedupe guard. The unique interaction constraint in the
	// store is the hard guarantee; this just saves the round trip when a
	// redelivered entry was already fully processed.
	claimed, err := c.client.SetNX(ctx, c.dedupeKey(interaction.InteractionID), "1", c.dedupeTTL).Result()
	if err != nil {
		c.logger.Warn("Dedupe check failed, processing anyway",
			zap.String("interaction_id", interaction.InteractionID),
			zap.Error(err),
		)
		claimed = true
	}
	if !claimed {
		c.logger.Debug("Interaction already claimed, acking duplicate delivery",
			zap.String("interaction_id", interaction.InteractionID),
		)
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.handler.OnInteractionCompleted(ctx, interaction); err != nil {
		c.logger.Error("Failed to process interaction, leaving entry pending",
			zap.String("interaction_id", interaction.InteractionID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		// Release the claim so the reclaim sweep can try again.
		if delErr := c.client.Del(ctx, c.dedupeKey(interaction.InteractionID)).Err(); delErr != nil {
			c.logger.Warn("Failed to release dedupe claim",
				zap.String("interaction_id", interaction.InteractionID),
				zap.Error(delErr),
			)
		}
		return
	}

	c.ack(ctx, msg.ID)
}

// parseInteraction decodes the JSON payload carried in the entry's data
// field.
func (c *StreamConsumer) parseInteraction(msg redis.XMessage) (*models.Interaction, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("stream entry has no data field")
	}
	data, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("stream entry data field is not a string")
	}

	var interaction models.Interaction
	if err := json.Unmarshal([]byte(data), &interaction); err != nil {
		return nil, fmt.Errorf("failed to parse interaction payload: %w", err)
	}
	if interaction.InteractionID == "" {
		return nil, fmt.Errorf("interaction payload missing interaction_id")
	}
	if interaction.TenantID == "" {
		interaction.TenantID = c.tenantID
	}
	return &interaction, nil
}

func (c *StreamConsumer) dedupeKey(interactionID string) string {
	return c.dedupePrefix + interactionID
}

func (c *StreamConsumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		c.logger.Warn("Failed to ack stream entry",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// PublishInteraction appends a completed interaction to the stream. Used by
// upstream services and by tooling; carries the JSON payload in the data
// field.
func PublishInteraction(ctx context.Context, client *redis.Client, stream string, interaction *models.Interaction) (string, error) {
	payload, err := json.Marshal(interaction)
	if err != nil {
		return "", fmt.Errorf("failed to serialize interaction: %w", err)
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}
