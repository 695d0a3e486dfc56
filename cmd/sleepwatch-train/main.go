package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/platform/logger"
	"github.com/hoanvar/LTN/internal/service"
	"github.com/hoanvar/LTN/internal/trainer"

	"go.uber.org/zap"
)

func main() {
	relabel := flag.Bool("relabel", false, "relabel all closed sessions with the new model after training")
	reportPath := flag.String("report", "", "write the relabel report to this .xlsx file (with -relabel)")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "sleepwatch-train")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = service.RunBatch(ctx, cfg, zapLogger, "train", func(ctx context.Context, env *service.BatchEnv) error {
		store := classifier.NewStore(cfg.Sleep.ModelDir)
		result, err := trainer.NewTrainer(env.Sessions, store, cfg.Forest, env.Location, zapLogger).Run(ctx)
		if err != nil {
			return err
		}

		zapLogger.Info("Model trained",
			zap.String("model_dir", store.Dir()),
			zap.String("fingerprint", result.Model.Meta.Fingerprint),
			zap.Int("sessions", result.Sessions),
			zap.Int("hourly_rows", result.HourlyRows),
			zap.Float64("train_accuracy", result.TrainAccuracy),
			zap.Float64("validation_accuracy", result.ValidationAccuracy),
			zap.Any("validation_distribution", result.ValidationDistribution),
			zap.Any("target_distribution", result.TargetDistribution),
			zap.Any("class_weights", result.ClassWeights),
			zap.Duration("duration", result.Duration),
		)

		if !*relabel {
			return nil
		}
		_, err = service.Relabel(ctx, env, *reportPath)
		return err
	})
	if err != nil {
		zapLogger.Fatal("Training failed", zap.Error(err))
	}
}
