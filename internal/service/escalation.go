package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-escalation/internal/classifier"
	"wisefido-escalation/internal/config"
	"wisefido-escalation/internal/consumer"
	"wisefido-escalation/internal/dispatcher"
	"wisefido-escalation/internal/export"
	"wisefido-escalation/internal/orchestrator"
	"wisefido-escalation/internal/repository"
	"wisefido-escalation/internal/resolver"
	"wisefido-escalation/internal/transport"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// EscalationService 通知升级服务（整合各层）
type EscalationService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *transport.MQTTClient
	logger      *zap.Logger
	tenantID    string

	// 各层组件
	recipientsRepo *repository.RecipientsRepository
	prefsRepo      *repository.PreferencesRepository
	alertsRepo     *repository.AlertEventsRepository
	attemptsRepo   *repository.DeliveryAttemptsRepository
	classifier     *classifier.Classifier
	resolver       *resolver.Resolver
	dispatcher     *dispatcher.Dispatcher
	orchestrator   *orchestrator.Orchestrator
	consumer       *consumer.StreamConsumer
	exporter       *export.LedgerExporter
}

// NewEscalationService 创建通知升级服务
func NewEscalationService(cfg *config.Config, logger *zap.Logger, tenantID string) (*EscalationService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（推送通道和 on-call 回退通道共用）
	mqttClient, err := transport.NewMQTTClient(cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	// 4. 创建 Repository 层
	recipientsRepo := repository.NewRecipientsRepository(db, logger)
	prefsRepo := repository.NewPreferencesRepository(db, logger)
	alertsRepo := repository.NewAlertEventsRepository(db, logger)
	attemptsRepo := repository.NewDeliveryAttemptsRepository(db, logger)

	// 5. 创建分类器与解析器
	clf := classifier.NewClassifier(classifier.Thresholds{
		IncidentThreshold:  cfg.Classifier.IncidentThreshold,
		ImmediateThreshold: cfg.Classifier.ImmediateThreshold,
	}, logger)
	res := resolver.NewResolver(recipientsRepo, prefsRepo, logger)

	// 6. 创建通道分发器
	smsTransport := transport.NewSMSClient(cfg.SMS, logger)
	pushTransport := transport.NewMQTTPush(mqttClient, logger)
	emailTransport := transport.NewSMTPEmail(cfg.Email, logger)
	disp := dispatcher.NewDispatcher(
		smsTransport,
		pushTransport,
		emailTransport,
		dispatcher.Timeouts{
			SMS:   time.Duration(cfg.Dispatch.SMSTimeoutSec) * time.Second,
			Push:  time.Duration(cfg.Dispatch.PushTimeoutSec) * time.Second,
			Email: time.Duration(cfg.Dispatch.EmailTimeoutSec) * time.Second,
		},
		logger,
	)

	// 7. 创建编排器
	onCall := transport.NewMQTTOnCall(mqttClient, cfg.Fallback.OnCallTopic, logger)
	orch := orchestrator.NewOrchestrator(
		clf,
		res,
		alertsRepo,
		attemptsRepo,
		recipientsRepo,
		disp,
		onCall,
		func(err error) bool { return errors.Is(err, repository.ErrDuplicateInteraction) },
		orchestrator.Options{
			MaxAttempts:   cfg.Dispatch.MaxAttempts,
			BackoffBase:   time.Duration(cfg.Dispatch.BackoffBaseSec) * time.Second,
			MaxConcurrent: cfg.Dispatch.MaxConcurrent,
		},
		logger,
	)

	// 8. 创建 StreamConsumer
	streamConsumer := consumer.NewStreamConsumer(
		redisClient,
		cfg.Stream.InteractionsStream,
		cfg.Stream.ConsumerGroup,
		cfg.Stream.ConsumerName,
		cfg.Stream.DedupeKeyPrefix,
		time.Duration(cfg.Stream.DedupeTTLSec)*time.Second,
		tenantID,
		orch,
		consumer.Options{
			MaxInFlight:     cfg.Stream.MaxInFlight,
			ReclaimInterval: time.Duration(cfg.Stream.ReclaimIntervalSec) * time.Second,
			ReclaimMinIdle:  time.Duration(cfg.Stream.ReclaimMinIdleSec) * time.Second,
		},
		logger,
	)

	return &EscalationService{
		config:         cfg,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		logger:         logger,
		tenantID:       tenantID,
		recipientsRepo: recipientsRepo,
		prefsRepo:      prefsRepo,
		alertsRepo:     alertsRepo,
		attemptsRepo:   attemptsRepo,
		classifier:     clf,
		resolver:       res,
		dispatcher:     disp,
		orchestrator:   orch,
		consumer:       streamConsumer,
		exporter:       export.NewLedgerExporter(attemptsRepo),
	}, nil
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *EscalationService) Start(ctx context.Context) error {
	s.logger.Info("Starting escalation service",
		zap.String("tenant_id", s.tenantID),
		zap.String("stream", s.config.Stream.InteractionsStream),
	)

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *EscalationService) Stop() error {
	s.logger.Info("Stopping escalation service")

	s.mqttClient.Close()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// ExportLedger 导出投递台账（供运维脚本调用）
func (s *EscalationService) ExportLedger(ctx context.Context, start, end time.Time) ([]byte, error) {
	return s.exporter.Export(ctx, s.tenantID, start, end)
}
