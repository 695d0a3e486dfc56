package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/platform/logger"
	"github.com/hoanvar/LTN/internal/service"

	"go.uber.org/zap"
)

func main() {
	reportPath := flag.String("report", "", "write the relabel report to this .xlsx file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "sleepwatch-relabel")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = service.RunBatch(ctx, cfg, zapLogger, "relabel", func(ctx context.Context, env *service.BatchEnv) error {
		rep, err := service.Relabel(ctx, env, *reportPath)
		if err != nil {
			return err
		}
		if rep.Interrupted {
			zapLogger.Warn("Relabel interrupted before all sessions were processed")
		}
		return nil
	})
	if err != nil {
		zapLogger.Fatal("Relabel failed", zap.Error(err))
	}
}
