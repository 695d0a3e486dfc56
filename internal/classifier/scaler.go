package classifier

import (
	"errors"
	"fmt"
	"math"
)

// Scaler z-score 标准化器，只在训练集上拟合
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler 按列计算均值与总体标准差；常量列的标准差置 1
func FitScaler(X [][]float64) (*Scaler, error) {
	if len(X) == 0 {
		return nil, errors.New("no rows to fit scaler")
	}
	dim := len(X[0])
	if dim == 0 {
		return nil, errors.New("rows have no features")
	}

	mean := make([]float64, dim)
	for _, row := range X {
		if len(row) != dim {
			return nil, errors.New("inconsistent feature dimensions")
		}
		for i, v := range row {
			mean[i] += v
		}
	}
	n := float64(len(X))
	for i := range mean {
		mean[i] /= n
	}

	scale := make([]float64, dim)
	for _, row := range X {
		for i, v := range row {
			d := v - mean[i]
			scale[i] += d * d
		}
	}
	for i := range scale {
		scale[i] = math.Sqrt(scale[i] / n)
		if scale[i] < 1e-10 {
			scale[i] = 1.0
		}
	}

	return &Scaler{Mean: mean, Scale: scale}, nil
}

// Dim 特征维度
func (s *Scaler) Dim() int {
	return len(s.Mean)
}

// Transform 标准化单个向量
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(s.Scale) != len(s.Mean) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", ErrInference, len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// TransformAll 标准化整个矩阵
func (s *Scaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		r, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
