package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Params 随机森林超参数
type Params struct {
	NTrees          int   `json:"n_trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"` // 0 = sqrt(特征数)
	Seed            int64 `json:"seed"`
}

// DefaultParams 默认超参数
func DefaultParams() Params {
	return Params{
		NTrees:          200,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  3,
		Seed:            42,
	}
}

// Validate 检查超参数
func (p Params) Validate() error {
	switch {
	case p.NTrees < 1:
		return fmt.Errorf("n_trees must be >= 1, got %d", p.NTrees)
	case p.MaxDepth < 0:
		return fmt.Errorf("max_depth must be >= 0, got %d", p.MaxDepth)
	case p.MinSamplesSplit < 2:
		return fmt.Errorf("min_samples_split must be >= 2, got %d", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("min_samples_leaf must be >= 1, got %d", p.MinSamplesLeaf)
	case p.MaxFeatures < 0:
		return fmt.Errorf("max_features must be >= 0, got %d", p.MaxFeatures)
	}
	return nil
}

// Forest 随机森林（bootstrap + 随机特征子集 + 概率平均投票）
type Forest struct {
	Classes   []int   `json:"classes"`
	NFeatures int     `json:"n_features"`
	Params    Params  `json:"params"`
	Trees     []*Tree `json:"trees"`
}

// FitForest 训练随机森林
// classWeight 按类别标签给出样本权重，缺省为 1；相同输入与种子得到相同的森林
func FitForest(ctx context.Context, X [][]float64, y []int, classWeight map[int]float64, p Params) (*Forest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("invalid training set: %d rows, %d labels", len(X), len(y))
	}
	dim := len(X[0])
	if dim == 0 {
		return nil, errors.New("rows have no features")
	}
	for _, row := range X {
		if len(row) != dim {
			return nil, errors.New("inconsistent feature dimensions")
		}
	}

	classes := uniqueSorted(y)
	classIdx := make(map[int]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	yIdx := make([]int, len(y))
	for i, label := range y {
		yIdx[i] = classIdx[label]
	}
	weights := make([]float64, len(classes))
	for i, c := range classes {
		weights[i] = 1
		if w, ok := classWeight[c]; ok && w > 0 {
			weights[i] = w
		}
	}

	maxFeatures := p.MaxFeatures
	if maxFeatures == 0 {
		maxFeatures = int(math.Sqrt(float64(dim)))
	}
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	if maxFeatures > dim {
		maxFeatures = dim
	}

	// 每棵树的种子先顺序生成，保证并发训练结果确定
	master := rand.New(rand.NewSource(p.Seed))
	seeds := make([]int64, p.NTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*Tree, p.NTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			idx := make([]int, len(X))
			for j := range idx {
				idx[j] = rng.Intn(len(X))
			}
			b := &treeBuilder{
				X:           X,
				y:           yIdx,
				classWeight: weights,
				k:           len(classes),
				maxFeatures: maxFeatures,
				params:      p,
				rng:         rng,
			}
			trees[i] = b.build(idx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Forest{
		Classes:   classes,
		NFeatures: dim,
		Params:    p,
		Trees:     trees,
	}, nil
}

// PredictProba 各类别的平均概率（顺序与 Classes 一致）
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(f.Trees) == 0 || len(f.Classes) == 0 {
		return nil, ErrModelUnavailable
	}
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("%w: forest expects %d features, got %d", ErrInference, f.NFeatures, len(x))
	}

	proba := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		p := t.predictProba(x)
		if len(p) != len(proba) {
			return nil, fmt.Errorf("%w: malformed leaf", ErrInference)
		}
		for i, v := range p {
			proba[i] += v
		}
	}
	for i := range proba {
		proba[i] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict 概率最大的类别标签；并列时取较小的类别
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for i := 1; i < len(proba); i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return f.Classes[best], nil
}

func uniqueSorted(y []int) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0, 3)
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
