package classifier

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hoanvar/LTN/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separableDataset 每个特征都与类别单调相关
func separableDataset() ([][]float64, []int) {
	var X [][]float64
	var y []int
	for _, c := range []int{1, 2, 3} {
		for i := 0; i < 20; i++ {
			row := make([]float64, features.Size)
			for j := range row {
				row[j] = float64(c)*10 + float64((i*7+j)%5)*0.1
			}
			X = append(X, row)
			y = append(y, c)
		}
	}
	return X, y
}

func vectorFor(c int) features.Vector {
	var v features.Vector
	for j := range v {
		v[j] = float64(c)*10 + 0.2
	}
	return v
}

func smallParams() Params {
	p := DefaultParams()
	p.NTrees = 25
	return p
}

func fitModel(t *testing.T) *Model {
	t.Helper()
	X, y := separableDataset()
	scaler, err := FitScaler(X)
	require.NoError(t, err)
	Xs, err := scaler.TransformAll(X)
	require.NoError(t, err)
	forest, err := FitForest(context.Background(), Xs, y, map[int]float64{1: 1, 2: 1, 3: 1}, smallParams())
	require.NoError(t, err)
	return &Model{Forest: forest, Scaler: scaler, Meta: Meta{FeatureNames: features.Names[:]}}
}

func TestFitScaler(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, 1.0, s.Scale[0])
	// 常量列
	assert.Equal(t, 1.0, s.Scale[1])

	out, err := s.Transform([]float64{3, 7})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, out)

	_, err = s.Transform([]float64{1})
	assert.ErrorIs(t, err, ErrInference)

	_, err = FitScaler(nil)
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.NTrees = 0
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.MinSamplesSplit = 1
	assert.Error(t, p.Validate())
}

func TestFitForest_LearnsSeparableClasses(t *testing.T) {
	m := fitModel(t)

	assert.Equal(t, []int{1, 2, 3}, m.Forest.Classes)
	assert.Len(t, m.Forest.Trees, 25)
	for _, c := range []int{1, 2, 3} {
		score, err := m.Predict(vectorFor(c))
		require.NoError(t, err)
		assert.Equal(t, float64(c), score)
	}
}

func TestFitForest_Deterministic(t *testing.T) {
	a := fitModel(t)
	b := fitModel(t)

	require.Equal(t, len(a.Forest.Trees), len(b.Forest.Trees))
	for i := range a.Forest.Trees {
		assert.Equal(t, a.Forest.Trees[i].Nodes, b.Forest.Trees[i].Nodes)
	}

	v := vectorFor(2)
	v[features.HRMean] = 25
	pa, err := a.Predict(v)
	require.NoError(t, err)
	pb, err := b.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestFitForest_RespectsMaxDepth(t *testing.T) {
	X, y := separableDataset()
	p := smallParams()
	p.MaxDepth = 1
	f, err := FitForest(context.Background(), X, y, nil, p)
	require.NoError(t, err)

	for _, tree := range f.Trees {
		// 深度 1：根 + 最多两个叶子
		assert.LessOrEqual(t, len(tree.Nodes), 3)
	}
}

func TestFitForest_Cancelled(t *testing.T) {
	X, y := separableDataset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitForest(ctx, X, y, nil, smallParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelPredict_Errors(t *testing.T) {
	var nilModel *Model
	_, err := nilModel.Predict(vectorFor(1))
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = (&Model{}).Predict(vectorFor(1))
	assert.ErrorIs(t, err, ErrModelUnavailable)

	m := fitModel(t)
	v := vectorFor(1)
	v[features.SpO2Mean] = math.NaN()
	_, err = m.Predict(v)
	assert.ErrorIs(t, err, ErrInference)

	m.Scaler = &Scaler{Mean: []float64{0}, Scale: []float64{1}}
	_, err = m.Predict(vectorFor(1))
	assert.ErrorIs(t, err, ErrInference)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	m := fitModel(t)

	require.NoError(t, store.Save(m))
	assert.NotEmpty(t, m.Meta.Fingerprint)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, m.Meta.Fingerprint, loaded.Meta.Fingerprint)
	for _, c := range []int{1, 2, 3} {
		want, err := m.Predict(vectorFor(c))
		require.NoError(t, err)
		got, err := loaded.Predict(vectorFor(c))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// 不留下临时文件
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrModelUnavailable)

	require.NoError(t, store.Save(fitModel(t)))
	require.NoError(t, os.Remove(filepath.Join(dir, ScalerFile)))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestStore_MismatchedPair(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	require.NoError(t, NewStore(dirA).Save(fitModel(t)))
	require.NoError(t, NewStore(dirB).Save(fitModel(t)))

	// 用另一次训练的 scaler 覆盖
	data, err := os.ReadFile(filepath.Join(dirB, ScalerFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dirA, ScalerFile), data, 0o644))

	_, err = NewStore(dirA).Load()
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModelFile), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScalerFile), []byte("{}"), 0o644))

	_, err := NewStore(dir).Load()
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}
