package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carelink-signal/internal/call"
	"carelink-signal/internal/config"
	"carelink-signal/internal/extractor"
	"carelink-signal/internal/push"
	"carelink-signal/internal/registry"
	"carelink-signal/internal/repository"
	"carelink-signal/internal/router"
	"carelink-signal/internal/sentiment"
	"carelink-signal/internal/trend"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// SignalService 信号服务（整合各层）
type SignalService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	subjectsRepo *repository.SubjectsRepository
	alertsRepo   *repository.AlertsRepository
	messagesRepo *repository.MessagesRepository
	moodRepo     *repository.MoodRepository
	registry     *registry.Registry
	pushSender   push.Sender
	router       *router.Router
	extractor    *extractor.Extractor
	sentiment    sentiment.HintProvider
	aggregator   *trend.Aggregator
	calls        *call.Coordinator
}

// NewSignalService 创建信号服务
func NewSignalService(cfg *config.Config, logger *zap.Logger) (*SignalService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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

	// 3. 创建 Repository 层
	subjectsRepo := repository.NewSubjectsRepository(db, logger)
	alertsRepo := repository.NewAlertsRepository(db, logger)
	messagesRepo := repository.NewMessagesRepository(db, logger)
	moodRepo := repository.NewMoodRepository(db, logger)

	// 4. 连接注册表 + presence 镜像
	presenceTTL := time.Duration(cfg.Signal.PresenceTTLSec) * time.Second
	presenceCache := registry.NewPresenceCache(redisClient, presenceTTL, logger)
	offlineGrace := time.Duration(cfg.Signal.OfflineGraceSec) * time.Second
	reg := registry.NewRegistry(presenceCache, offlineGrace, logger)

	// 5. 推送网关（broker 未配置时禁用，纯在线部署）
	var pushSender push.Sender
	if cfg.Push.Broker != "" {
		mqttSender, err := push.NewMQTTSender(&cfg.Push, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect push broker: %w", err)
		}
		pushSender = mqttSender
	}

	// 6. 路由 / 提取 / 聚合 / 呼叫
	audienceRouter := router.NewRouter(reg, pushSender, logger)
	ringTimeout := time.Duration(cfg.Signal.CallRingTimeoutSec) * time.Second

	return &SignalService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		subjectsRepo: subjectsRepo,
		alertsRepo:   alertsRepo,
		messagesRepo: messagesRepo,
		moodRepo:     moodRepo,
		registry:     reg,
		pushSender:   pushSender,
		router:       audienceRouter,
		extractor:    extractor.New(),
		sentiment:    sentiment.NewClient(&cfg.Sentiment, logger),
		aggregator:   trend.NewAggregator(moodRepo, alertsRepo, redisClient, cfg.Signal, logger),
		calls:        call.NewCoordinator(audienceRouter, ringTimeout, logger),
	}, nil
}

// Start 启动服务（presence 镜像刷新 + presence 事件消费）
func (s *SignalService) Start(ctx context.Context) error {
	s.logger.Info("Starting signal service")

	refreshInterval := time.Duration(s.config.Signal.PresenceTTLSec) * time.Second / 2
	s.registry.Start(ctx, refreshInterval)

	go s.consumePresence(ctx)

	return nil
}

// Stop 停止服务
func (s *SignalService) Stop() error {
	s.logger.Info("Stopping signal service")

	if closer, ok := s.pushSender.(*push.MQTTSender); ok && closer != nil {
		closer.Close()
	}

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

// consumePresence 消费注册表的在线状态迁移事件
// 离线时结束该 actor 参与的呼叫；设备端的迁移广播给机构 staff
func (s *SignalService) consumePresence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.registry.Events():
			if !ok {
				return
			}
			s.handlePresenceEvent(ctx, ev)
		}
	}
}
