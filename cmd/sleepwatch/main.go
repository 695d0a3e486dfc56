package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/platform/database"
	"github.com/hoanvar/LTN/internal/platform/logger"
	"github.com/hoanvar/LTN/internal/repository"
	"github.com/hoanvar/LTN/internal/service"

	"go.uber.org/zap"
)

func main() {
	saveThresholds := flag.Bool("save-thresholds", false, "store the configured thresholds in the database before starting")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "sleepwatch")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting sleepwatch service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("sleep_topic", cfg.Sleep.SleepTopic),
		zap.String("data_topic", cfg.Sleep.DataTopic),
		zap.String("timezone", cfg.Sleep.Timezone),
		zap.String("model_dir", cfg.Sleep.ModelDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *saveThresholds {
		if err := storeThresholds(ctx, cfg, zapLogger); err != nil {
			zapLogger.Fatal("Failed to store thresholds", zap.Error(err))
		}
	}

	// 创建服务
	sleepwatchService, err := service.NewSleepwatchService(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create sleepwatch service", zap.Error(err))
	}

	// 在 goroutine 中启动服务
	go func() {
		if err := sleepwatchService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start sleepwatch service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := sleepwatchService.Stop(stopCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}

func storeThresholds(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := repository.NewSettingsRepository(db, zapLogger).SaveThresholds(ctx, cfg.Thresholds); err != nil {
		return err
	}
	zapLogger.Info("Thresholds stored", zap.Any("thresholds", cfg.Thresholds))
	return nil
}
