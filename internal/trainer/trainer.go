package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/features"
	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// ErrEmptyTrainingSet 没有可用于训练的带标签小时样本
var ErrEmptyTrainingSet = errors.New("empty training set")

// ValidationFraction 验证集比例
const ValidationFraction = 0.2

// TargetDistribution 期望的标签分布（仅用于报告，未参与权重计算）
var TargetDistribution = map[models.Quality]float64{
	models.QualityBad:    0.2,
	models.QualityMedium: 0.4,
	models.QualityGood:   0.4,
}

// LabeledSession 带标签的历史会话及其采样
type LabeledSession struct {
	Session models.Session
	Samples []models.Sample
}

// SessionSource 训练数据来源
type SessionSource interface {
	ListLabeledSessions(ctx context.Context) ([]models.Session, error)
	ListSamples(ctx context.Context, sessionID string) ([]models.Sample, error)
}

// ModelSaver 模型持久化
type ModelSaver interface {
	Save(m *classifier.Model) error
}

// Result 训练诊断信息
type Result struct {
	Sessions               int
	HourlyRows             int
	TrainRows              int
	ValidationRows         int
	TrainAccuracy          float64
	ValidationAccuracy     float64
	ValidationDistribution map[models.Quality]float64
	ClassWeights           map[int]float64
	TargetDistribution     map[models.Quality]float64
	Duration               time.Duration
	Model                  *classifier.Model
}

// Trainer 训练器
type Trainer struct {
	source   SessionSource
	saver    ModelSaver
	params   classifier.Params
	location *time.Location
	logger   *zap.Logger
}

// NewTrainer 创建训练器
func NewTrainer(source SessionSource, saver ModelSaver, params classifier.Params, loc *time.Location, logger *zap.Logger) *Trainer {
	if loc == nil {
		loc = time.UTC
	}
	return &Trainer{
		source:   source,
		saver:    saver,
		params:   params,
		location: loc,
		logger:   logger,
	}
}

// Run 从数据源加载全部带标签会话并训练
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	sessions, err := t.source.ListLabeledSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list labeled sessions: %w", err)
	}

	labeled := make([]LabeledSession, 0, len(sessions))
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, err := t.source.ListSamples(ctx, s.ID)
		if err != nil {
			// 单个会话失败不影响整体训练
			t.logger.Warn("Failed to load samples, session skipped",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
			continue
		}
		labeled = append(labeled, LabeledSession{Session: s, Samples: samples})
	}

	return t.Train(ctx, labeled)
}

// Train 构建小时级数据集，80/20 切分，拟合标准化器与随机森林，成功后持久化
func (t *Trainer) Train(ctx context.Context, sessions []LabeledSession) (*Result, error) {
	start := time.Now()

	// 1. 构建数据集（会话标签复制到该会话的每个小时）
	X, y := BuildDataset(sessions, t.location)
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	// 2. 固定种子切分
	trainIdx, valIdx := Split(len(X), ValidationFraction, t.params.Seed)
	Xtrain, ytrain := subset(X, y, trainIdx)
	Xval, yval := subset(X, y, valIdx)

	// 3. 标准化器只在训练集上拟合
	scaler, err := classifier.FitScaler(Xtrain)
	if err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}
	XtrainScaled, err := scaler.TransformAll(Xtrain)
	if err != nil {
		return nil, err
	}
	XvalScaled, err := scaler.TransformAll(Xval)
	if err != nil {
		return nil, err
	}

	// 4. 训练
	weights := BalancedClassWeights(ytrain)
	forest, err := classifier.FitForest(ctx, XtrainScaled, ytrain, weights, t.params)
	if err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	model := &classifier.Model{
		Forest: forest,
		Scaler: scaler,
		Meta: classifier.Meta{
			TrainedAt:    time.Now().UTC(),
			FeatureNames: features.Names[:],
			TrainSize:    len(Xtrain),
		},
	}

	// 5. 诊断
	trainAcc, _, err := evaluate(forest, XtrainScaled, ytrain)
	if err != nil {
		return nil, err
	}
	valAcc, valDist, err := evaluate(forest, XvalScaled, yval)
	if err != nil {
		return nil, err
	}

	// 6. 持久化
	if t.saver != nil {
		if err := t.saver.Save(model); err != nil {
			return nil, fmt.Errorf("failed to save model: %w", err)
		}
	}

	result := &Result{
		Sessions:               len(sessions),
		HourlyRows:             len(X),
		TrainRows:              len(Xtrain),
		ValidationRows:         len(Xval),
		TrainAccuracy:          trainAcc,
		ValidationAccuracy:     valAcc,
		ValidationDistribution: valDist,
		ClassWeights:           weights,
		TargetDistribution:     TargetDistribution,
		Duration:               time.Since(start),
		Model:                  model,
	}

	t.logger.Info("Model trained",
		zap.Int("sessions", result.Sessions),
		zap.Int("hourly_rows", result.HourlyRows),
		zap.Int("train_rows", result.TrainRows),
		zap.Int("validation_rows", result.ValidationRows),
		zap.Float64("train_accuracy", trainAcc),
		zap.Float64("validation_accuracy", valAcc),
		zap.Float64("validation_good", valDist[models.QualityGood]),
		zap.Float64("validation_medium", valDist[models.QualityMedium]),
		zap.Float64("validation_bad", valDist[models.QualityBad]),
		zap.String("fingerprint", model.Meta.Fingerprint),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// BuildDataset 每个带标签会话的每个小时生成一行
func BuildDataset(sessions []LabeledSession, loc *time.Location) ([][]float64, []int) {
	var X [][]float64
	var y []int
	for _, s := range sessions {
		if s.Session.Quality == nil || !s.Session.Quality.Valid() || len(s.Samples) == 0 {
			continue
		}
		label := s.Session.Quality.Score()
		for _, g := range features.GroupByHour(s.Samples, loc) {
			v, err := features.Extract(g.Samples)
			if err != nil {
				continue
			}
			X = append(X, v.Slice())
			y = append(y, label)
		}
	}
	return X, y
}

// Split 固定种子打乱后切分，验证集大小向上取整（至少保留 1 行训练数据）
func Split(n int, fraction float64, seed int64) (train, validation []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nVal := int(math.Ceil(fraction * float64(n)))
	if nVal >= n {
		nVal = n - 1
	}
	if nVal < 0 {
		nVal = 0
	}
	return perm[nVal:], perm[:nVal]
}

// BalancedClassWeights n / (k * count_c)
func BalancedClassWeights(y []int) map[int]float64 {
	counts := make(map[int]int)
	for _, c := range y {
		counts[c]++
	}
	weights := make(map[int]float64, len(counts))
	k := float64(len(counts))
	for c, cnt := range counts {
		weights[c] = float64(len(y)) / (k * float64(cnt))
	}
	return weights
}

func subset(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

func evaluate(f *classifier.Forest, X [][]float64, y []int) (float64, map[models.Quality]float64, error) {
	dist := map[models.Quality]float64{}
	if len(X) == 0 {
		return 0, dist, nil
	}
	correct := 0
	for i, row := range X {
		pred, err := f.Predict(row)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to evaluate: %w", err)
		}
		if pred == y[i] {
			correct++
		}
		if q, err := models.QualityFromScore(pred); err == nil {
			dist[q] += 1 / float64(len(X))
		}
	}
	return float64(correct) / float64(len(X)), dist, nil
}
