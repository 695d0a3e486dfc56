package service

import (
	"errors"
	"time"

	"github.com/hoanvar/LTN/internal/analyzer"
	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/config"

	"go.uber.org/zap"
)

// NewScorer 加载模型文件并创建评分器
// 模型缺失或损坏时返回只使用启发式规则的评分器
func NewScorer(cfg *config.Config, loc *time.Location, recorder analyzer.Recorder, logger *zap.Logger) *analyzer.Scorer {
	var predictor analyzer.Predictor
	model, err := classifier.NewStore(cfg.Sleep.ModelDir).Load()
	switch {
	case err == nil:
		predictor = model
		logger.Info("Quality model loaded",
			zap.String("fingerprint", model.Meta.Fingerprint),
			zap.Time("trained_at", model.Meta.TrainedAt),
			zap.Int("train_size", model.Meta.TrainSize),
		)
	case errors.Is(err, classifier.ErrModelUnavailable):
		logger.Warn("Quality model unavailable, using heuristic scoring", zap.Error(err))
	default:
		logger.Error("Quality model corrupt, using heuristic scoring", zap.Error(err))
	}
	return analyzer.NewScorer(predictor, cfg.Heuristic, loc, recorder, logger)
}
