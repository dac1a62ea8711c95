package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 通知升级服务配置 (escalation service configuration)
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// Transport gateways
	SMS   SMSConfig
	Email EmailConfig

	// Classifier thresholds (kept configurable rather than hard-coded;
	// tuned per deployment)
	Classifier struct {
		IncidentThreshold  float64 // minimum confidence to flag an incident
		ImmediateThreshold float64 // minimum confidence for requires_immediate_alert
	}

	// Dispatch and retry budgets
	Dispatch struct {
		MaxAttempts     int // attempts per (recipient, channel), default 3
		BackoffBaseSec  int // exponential backoff base, default 2s
		SMSTimeoutSec   int
		EmailTimeoutSec int
		PushTimeoutSec  int
		MaxConcurrent   int // recipient fan-out cap for routine (non-immediate) alerts
	}

	// Fallback on-call channel for fully exhausted critical events
	Fallback struct {
		OnCallTopic string
	}

	// Interaction stream (Redis Streams)
	Stream struct {
		InteractionsStream string
		ConsumerGroup      string
		ConsumerName       string
		DedupeKeyPrefix    string
		DedupeTTLSec       int
		MaxInFlight        int // concurrent interactions per consumer
		ReclaimIntervalSec int // pending-entry sweep period
		ReclaimMinIdleSec  int // idle threshold before a pending entry is taken over
	}

	Log struct {
		Level  string
		Format string
	}
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（推送通道和 on-call 回退通道）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// SMSConfig SMS 网关配置
type SMSConfig struct {
	GatewayURL string
	Token      string
	SenderID   string
}

// EmailConfig SMTP 配置
type EmailConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-escalation")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.SMS.GatewayURL = getEnv("SMS_GATEWAY_URL", "")
	cfg.SMS.Token = getEnv("SMS_GATEWAY_TOKEN", "")
	cfg.SMS.SenderID = getEnv("SMS_SENDER_ID", "WiseFido")

	cfg.Email.Addr = getEnv("SMTP_ADDR", "localhost:587")
	cfg.Email.From = getEnv("SMTP_FROM", "alerts@wisefido.local")
	cfg.Email.Username = getEnv("SMTP_USERNAME", "")
	cfg.Email.Password = getEnv("SMTP_PASSWORD", "")

	cfg.Classifier.IncidentThreshold = getEnvFloat("CLASSIFIER_INCIDENT_THRESHOLD", 0.35)
	cfg.Classifier.ImmediateThreshold = getEnvFloat("CLASSIFIER_IMMEDIATE_THRESHOLD", 0.75)

	cfg.Dispatch.MaxAttempts = getEnvInt("DISPATCH_MAX_ATTEMPTS", 3)
	cfg.Dispatch.BackoffBaseSec = getEnvInt("DISPATCH_BACKOFF_BASE_SEC", 2)
	cfg.Dispatch.SMSTimeoutSec = getEnvInt("DISPATCH_SMS_TIMEOUT_SEC", 10)
	cfg.Dispatch.EmailTimeoutSec = getEnvInt("DISPATCH_EMAIL_TIMEOUT_SEC", 10)
	cfg.Dispatch.PushTimeoutSec = getEnvInt("DISPATCH_PUSH_TIMEOUT_SEC", 5)
	cfg.Dispatch.MaxConcurrent = getEnvInt("DISPATCH_MAX_CONCURRENT", 8)

	cfg.Fallback.OnCallTopic = getEnv("FALLBACK_ONCALL_TOPIC", "wisefido/oncall/escalation")

	cfg.Stream.InteractionsStream = getEnv("STREAM_INTERACTIONS", "wisefido:interactions:completed")
	cfg.Stream.ConsumerGroup = getEnv("STREAM_GROUP", "escalation")
	cfg.Stream.ConsumerName = getEnv("STREAM_CONSUMER", "escalation-1")
	cfg.Stream.DedupeKeyPrefix = getEnv("STREAM_DEDUPE_PREFIX", "escalation:dedupe:")
	cfg.Stream.DedupeTTLSec = getEnvInt("STREAM_DEDUPE_TTL_SEC", 86400)
	cfg.Stream.MaxInFlight = getEnvInt("STREAM_MAX_IN_FLIGHT", 16)
	cfg.Stream.ReclaimIntervalSec = getEnvInt("STREAM_RECLAIM_INTERVAL_SEC", 30)
	cfg.Stream.ReclaimMinIdleSec = getEnvInt("STREAM_RECLAIM_MIN_IDLE_SEC", 60)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Classifier.IncidentThreshold < 0 || cfg.Classifier.IncidentThreshold > 1 {
		return nil, fmt.Errorf("CLASSIFIER_INCIDENT_THRESHOLD must be in [0,1]")
	}
	if cfg.Classifier.ImmediateThreshold < 0 || cfg.Classifier.ImmediateThreshold > 1 {
		return nil, fmt.Errorf("CLASSIFIER_IMMEDIATE_THRESHOLD must be in [0,1]")
	}
	if cfg.Dispatch.MaxAttempts < 1 {
		return nil, fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
