package transport

import (
	"fmt"
	"time"

	"wisefido-escalation/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTClient MQTT客户端封装 (shared by the push channel and the on-call sink)
type MQTTClient struct {
	client mqtt.Client
	qos    byte
	logger *zap.Logger
}

// NewMQTTClient 创建MQTT客户端
func NewMQTTClient(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTClient{
		client: client,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// Publish 发布消息（带超时等待确认）
func (c *MQTTClient) Publish(topic string, payload []byte, timeout time.Duration) error {
	token := c.client.Publish(topic, c.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, timeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close 断开连接
func (c *MQTTClient) Close() {
	c.client.Disconnect(250)
}
