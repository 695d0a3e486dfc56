package analyzer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/features"
	"github.com/hoanvar/LTN/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func profileSamples(start time.Time, n int, hr, spo2, temp, acc float64, offset int) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		jitter := float64((i+offset)%3) * 0.1
		out[i] = models.Sample{
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
			HeartRate:    hr + jitter*10,
			SpO2:         spo2 + jitter,
			Temperature:  temp + jitter/10,
			Acceleration: acc + jitter/10,
		}
	}
	return out
}

// loadedModel 训练一个区分 GOOD / BAD 的小森林，经 Store 保存后重新加载
func loadedModel(t *testing.T) *classifier.Model {
	t.Helper()
	start := time.Date(2026, 2, 1, 22, 0, 0, 0, time.UTC)

	var X [][]float64
	var y []int
	for i := 0; i < 12; i++ {
		good, err := features.Extract(profileSamples(start, 10, 65, 98, 36.6, 1.02, i))
		require.NoError(t, err)
		bad, err := features.Extract(profileSamples(start, 10, 110, 90, 38.0, 1.5, i))
		require.NoError(t, err)
		X = append(X, good.Slice(), bad.Slice())
		y = append(y, models.QualityGood.Score(), models.QualityBad.Score())
	}

	scaler, err := classifier.FitScaler(X)
	require.NoError(t, err)
	Xs, err := scaler.TransformAll(X)
	require.NoError(t, err)
	params := classifier.Params{NTrees: 15, MaxDepth: 5, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 7}
	forest, err := classifier.FitForest(context.Background(), Xs, y, nil, params)
	require.NoError(t, err)

	store := classifier.NewStore(t.TempDir())
	require.NoError(t, store.Save(&classifier.Model{
		Forest: forest,
		Scaler: scaler,
		Meta:   classifier.Meta{FeatureNames: features.Names[:], TrainSize: len(X)},
	}))
	model, err := store.Load()
	require.NoError(t, err)
	return model
}

// nonFiniteAbove 心率均值超过 limit 的小时送入含 NaN 的向量
type nonFiniteAbove struct {
	model *classifier.Model
	limit float64
	errs  []error
}

func (p *nonFiniteAbove) Predict(v features.Vector) (float64, error) {
	if v[features.HRMean] > p.limit {
		v[features.SpO2Std] = math.NaN()
	}
	score, err := p.model.Predict(v)
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return score, err
}

func TestScoreSamples_LoadedModelInferenceErrorFallsBackForHour(t *testing.T) {
	model := loadedModel(t)

	var nan features.Vector
	nan[features.HRMean] = math.NaN()
	_, err := model.Predict(nan)
	require.ErrorIs(t, err, classifier.ErrInference)

	p := &nonFiniteAbove{model: model, limit: 100}
	criteria := models.DefaultHeuristicCriteria()
	s := NewScorer(p, criteria, time.UTC, nil, zap.NewNop())

	first := goodSamples(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC), 60)
	second := goodSamples(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC), 60)
	for i := range second {
		second[i].HeartRate = 150
	}

	a := s.ScoreSamples(append(first, second...))

	assert.Equal(t, StrategyModel, a.Strategy)
	require.Len(t, a.Hours, 2)
	assert.Equal(t, SourceModel, a.Hours[0].Source)
	assert.Equal(t, float64(models.QualityGood.Score()), a.Hours[0].Score)

	require.Len(t, p.errs, 1)
	assert.ErrorIs(t, p.errs[0], classifier.ErrInference)

	// 失败的小时与同一数据的启发式评分一致
	want := Heuristic(features.Means{HeartRate: 150, SpO2: 98, Temperature: 36.6, Acceleration: 1.02}, criteria)
	assert.Equal(t, SourceFallback, a.Hours[1].Source)
	assert.Equal(t, want, a.Hours[1].Score)
	assert.Equal(t, models.QualityGood, a.Quality)
}
