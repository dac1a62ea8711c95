package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MQTTOnCall publishes exhausted-critical-alert payloads to the fixed on-call
// paging topic. This is the single fatal-if-unreachable sink in the pipeline.
type MQTTOnCall struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewMQTTOnCall 创建 on-call 回退通道
func NewMQTTOnCall(publisher Publisher, topic string, logger *zap.Logger) *MQTTOnCall {
	return &MQTTOnCall{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// NotifyOnCall pages the on-call operator.
func (o *MQTTOnCall) NotifyOnCall(ctx context.Context, payload OnCallPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal on-call payload: %w", err)
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := o.publisher.Publish(o.topic, body, timeout); err != nil {
		// Paging-worthy outside this pipeline's own responsibility.
		o.logger.Error("On-call fallback publish failed for exhausted critical alert",
			zap.String("alert_id", payload.AlertID),
			zap.Error(err),
		)
		return fmt.Errorf("on-call fallback publish failed: %w", err)
	}

	o.logger.Warn("On-call fallback paged",
		zap.String("alert_id", payload.AlertID),
		zap.String("reason", payload.Reason),
	)
	return nil
}
