// Package service 组装 sleepwatch 在线服务
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/hoanvar/LTN/internal/alert"
	"github.com/hoanvar/LTN/internal/analyzer"
	"github.com/hoanvar/LTN/internal/cache"
	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/consumer"
	"github.com/hoanvar/LTN/internal/detector"
	httpapi "github.com/hoanvar/LTN/internal/http"
	"github.com/hoanvar/LTN/internal/metrics"
	"github.com/hoanvar/LTN/internal/platform/database"
	mqttcommon "github.com/hoanvar/LTN/internal/platform/mqtt"
	rediscommon "github.com/hoanvar/LTN/internal/platform/redis"
	"github.com/hoanvar/LTN/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SleepwatchService 在线服务：MQTT 消费、会话分析、异常检测与告警
type SleepwatchService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client
	consumer   *consumer.MQTTConsumer
	analyzer   *analyzer.Analyzer
	server     *Server
}

// NewSleepwatchService 创建服务并连接依赖
func NewSleepwatchService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SleepwatchService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 初始化数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := metrics.New()

	// 创建Repository
	sessionRepo := repository.NewSessionRepository(db, logger)
	readingRepo := repository.NewSensorReadingRepository(db, logger)
	settingsRepo := repository.NewSettingsRepository(db, logger)

	thresholds, err := settingsRepo.GetThresholds(ctx, cfg.Thresholds)
	if err != nil {
		logger.Warn("Failed to load stored thresholds, using configured values", zap.Error(err))
	}

	scorer := NewScorer(cfg, loc, m, logger)
	sessionAnalyzer := analyzer.NewAnalyzer(sessionRepo, scorer, logger,
		analyzer.WithEventPublisher(cache.NewSessionStream(redisClient, cfg.Cache.SessionStream, cfg.Cache.StreamMaxLen)),
		analyzer.WithRecorder(m),
		analyzer.WithDedupCapacity(cfg.Sleep.DedupSize),
	)

	latestCache := cache.NewReadingCache(redisClient, cfg.Cache.LatestKey, cfg.Cache.LatestTTL)
	deps := consumer.Deps{
		Tracker:  sessionAnalyzer,
		Detector: detector.NewDetector(thresholds),
		Readings: readingRepo,
		Cache:    latestCache,
		Metrics:  m,
	}
	notifier := alert.NewNotifier(alert.Config{
		WebhookURL: cfg.Alert.WebhookURL,
		Timeout:    cfg.Alert.Timeout,
		RetryCount: cfg.Alert.RetryCount,
	}, loc, logger)
	if notifier.Enabled() {
		deps.Notifier = notifier
	}

	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}
	deps.Broker = mqttClient

	// 创建Consumer
	mqttConsumer := consumer.NewMQTTConsumer(cfg, deps, logger)
	// 重连后重新下发阈值
	mqttClient.OnConnect(func() {
		if err := mqttConsumer.PublishThresholds(); err != nil {
			logger.Warn("Failed to republish thresholds", zap.Error(err))
		}
	})

	s := &SleepwatchService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		consumer:   mqttConsumer,
		analyzer:   sessionAnalyzer,
	}

	if cfg.HTTP.Addr != "" {
		router := httpapi.NewRouter(logger)
		router.RegisterOpsRoutes(m.Registry)
		router.RegisterSleepRoutes(&httpapi.SleepHandler{
			Status:   sessionAnalyzer,
			Latest:   latestCache,
			Readings: readingRepo,
			Sessions: sessionRepo,
			Limits:   thresholds,
			Logger:   logger,
		})
		s.server = NewServer(cfg.HTTP.Addr, router, logger)
	}

	return s, nil
}

// Start 启动服务，阻塞直到 ctx 取消
func (s *SleepwatchService) Start(ctx context.Context) error {
	s.logger.Info("Starting sleepwatch service components")

	if s.server != nil {
		go func() {
			if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	// 启动MQTT消费者
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}
	return nil
}

// Stop 停止服务；正在记录的会话会被结束并保存
func (s *SleepwatchService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping sleepwatch service")

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	if s.analyzer != nil && s.analyzer.State() == analyzer.StateRecording {
		if _, err := s.analyzer.EndSession(ctx); err != nil {
			s.logger.Error("Failed to close open session on shutdown", zap.Error(err))
		}
	}

	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		rediscommon.Close(s.redis)
	}

	// 关闭数据库
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Sleepwatch service stopped")
	return nil
}
