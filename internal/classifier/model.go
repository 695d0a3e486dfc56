package classifier

import (
	"fmt"
	"time"

	"github.com/hoanvar/LTN/internal/features"
)

// Meta 模型元数据（随模型文件一起保存）
type Meta struct {
	Fingerprint  string    `json:"fingerprint"`
	TrainedAt    time.Time `json:"trained_at"`
	FeatureNames []string  `json:"feature_names"`
	TrainSize    int       `json:"train_size"`
}

// Model 随机森林与标准化器必须成对使用
type Model struct {
	Forest *Forest
	Scaler *Scaler
	Meta   Meta
}

// Predict 对一个特征向量打分（返回类别标签 1..3 对应的分值）
func (m *Model) Predict(v features.Vector) (float64, error) {
	if m == nil || m.Forest == nil || m.Scaler == nil {
		return 0, ErrModelUnavailable
	}
	if err := v.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if m.Scaler.Dim() != m.Forest.NFeatures {
		return 0, fmt.Errorf("%w: scaler/forest dimension mismatch (%d vs %d)", ErrInference, m.Scaler.Dim(), m.Forest.NFeatures)
	}

	scaled, err := m.Scaler.Transform(v.Slice())
	if err != nil {
		return 0, err
	}
	label, err := m.Forest.Predict(scaled)
	if err != nil {
		return 0, err
	}
	return float64(label), nil
}
