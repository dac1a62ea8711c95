package transport

import (
	"context"
	"fmt"
	"time"

	"wisefido-escalation/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// smsRequest SMS 网关请求
type smsRequest struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	SenderID string `json:"sender_id"`
}

// smsResponse SMS 网关响应
type smsResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// SMSClient SMS 网关客户端
type SMSClient struct {
	httpClient *resty.Client
	senderID   string
	logger     *zap.Logger
}

// NewSMSClient 创建 SMS 客户端
// Per-call timeouts come from the caller's context; the dispatcher owns the
// retry budget, so the client performs no retries of its own.
func NewSMSClient(cfg config.SMSConfig, logger *zap.Logger) *SMSClient {
	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(30 * time.Second). // hard ceiling; dispatcher context is tighter
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.Token)

	return &SMSClient{
		httpClient: client,
		senderID:   cfg.SenderID,
		logger:     logger,
	}
}

// SendSMS sends one message through the gateway.
// A 4xx gateway response is a permanent failure (bad address or rejected
// content); 5xx and network faults are transient and retryable.
func (c *SMSClient) SendSMS(ctx context.Context, toE164, body string) (string, error) {
	var result smsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(smsRequest{To: toE164, Body: body, SenderID: c.senderID}).
		SetResult(&result).
		SetError(&result).
		Post("")

	if err != nil {
		return "", fmt.Errorf("sms gateway call failed: %w", err)
	}

	if resp.IsError() {
		gwErr := fmt.Errorf("sms gateway rejected request: status=%d msg=%s", resp.StatusCode(), result.Error)
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return "", MarkPermanent(gwErr)
		}
		return "", gwErr
	}

	if result.MessageID == "" {
		return "", fmt.Errorf("sms gateway returned no message id")
	}

	c.logger.Debug("SMS accepted by gateway",
		zap.String("provider_message_id", result.MessageID),
	)
	return result.MessageID, nil
}
