package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pushMessage is the JSON published to a recipient's app topic.
type pushMessage struct {
	MessageID string `json:"message_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	SentAt    string `json:"sent_at"`
}

// Publisher is the broker surface MQTTPush needs (satisfied by MQTTClient,
// faked in tests).
type Publisher interface {
	Publish(topic string, payload []byte, timeout time.Duration) error
}

// MQTTPush delivers push notifications by publishing to the recipient's
// per-device app topic. The push endpoint stored on a recipient is the topic.
type MQTTPush struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewMQTTPush 创建推送通道
func NewMQTTPush(publisher Publisher, logger *zap.Logger) *MQTTPush {
	return &MQTTPush{
		publisher: publisher,
		logger:    logger,
	}
}

// SendPush publishes one notification to the endpoint topic.
func (p *MQTTPush) SendPush(ctx context.Context, endpoint, title, body string) (string, error) {
	msg := pushMessage{
		MessageID: uuid.New().String(),
		Title:     title,
		Body:      body,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", MarkPermanent(fmt.Errorf("failed to marshal push payload: %w", err))
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := p.publisher.Publish(endpoint, payload, timeout); err != nil {
		return "", fmt.Errorf("push publish failed: %w", err)
	}

	return msg.MessageID, nil
}
