package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/hoanvar/LTN/internal/cache"
	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/metrics"
	"github.com/hoanvar/LTN/internal/platform/database"
	rediscommon "github.com/hoanvar/LTN/internal/platform/redis"
	"github.com/hoanvar/LTN/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// BatchEnv 批处理任务（训练、重标注）共享的依赖
type BatchEnv struct {
	Config   *config.Config
	Logger   *zap.Logger
	Location *time.Location
	DB       *sql.DB
	Redis    *redis.Client
	Sessions *repository.SessionRepository
	Metrics  *metrics.Metrics
}

// BatchFunc 在持有任务锁期间执行
type BatchFunc func(ctx context.Context, env *BatchEnv) error

// RunBatch 连接数据库与 Redis，获取任务锁后执行 fn
// 同一时间只允许一个批处理任务运行（ErrJobLocked）
func RunBatch(ctx context.Context, cfg *config.Config, logger *zap.Logger, job string, fn BatchFunc) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(redisClient)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	holder, _ := os.Hostname()
	lock, err := cache.NewJobLocker(redisClient, cfg.Cache.JobLockKey, cfg.Cache.JobLockTTL).Acquire(ctx, job+"@"+holder)
	if err != nil {
		return err
	}
	defer func() {
		// ctx 可能已取消，释放锁使用独立的 context
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("Failed to release job lock", zap.Error(err))
		}
	}()

	env := &BatchEnv{
		Config:   cfg,
		Logger:   logger,
		Location: loc,
		DB:       db,
		Redis:    redisClient,
		Sessions: repository.NewSessionRepository(db, logger),
		Metrics:  metrics.New(),
	}

	logger.Info("Batch job started", zap.String("job", job), zap.String("holder", lock.Holder()))
	start := time.Now()
	err = fn(ctx, env)
	env.Metrics.ObserveJob(job, time.Since(start), err)
	pushMetrics(cfg, env.Metrics, job, logger)

	if err != nil {
		logger.Error("Batch job failed", zap.String("job", job), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return err
	}
	logger.Info("Batch job finished", zap.String("job", job), zap.Duration("duration", time.Since(start)))
	return nil
}

func pushMetrics(cfg *config.Config, m *metrics.Metrics, job string, logger *zap.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := push.New(cfg.Metrics.PushgatewayURL, "sleepwatch_"+job).Gatherer(m.Registry).Push(); err != nil {
		logger.Warn("Failed to push metrics", zap.String("job", job), zap.Error(err))
	}
}
