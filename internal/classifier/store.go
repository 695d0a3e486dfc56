package classifier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	// ModelFile 森林文件名
	ModelFile = "sleep_model.json"
	// ScalerFile 标准化器文件名
	ScalerFile = "scaler.json"
)

type modelArtifact struct {
	Meta   Meta    `json:"meta"`
	Forest *Forest `json:"forest"`
}

type scalerArtifact struct {
	Fingerprint string  `json:"fingerprint"`
	Scaler      *Scaler `json:"scaler"`
}

// Store 模型文件存储（两份文件作为一对读写）
type Store struct {
	dir string
}

// NewStore 创建模型存储
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir 存储目录
func (s *Store) Dir() string {
	return s.dir
}

// Load 读取模型；任一文件缺失返回 ErrModelUnavailable
func (s *Store) Load() (*Model, error) {
	modelPath := filepath.Join(s.dir, ModelFile)
	scalerPath := filepath.Join(s.dir, ScalerFile)

	modelBytes, err := os.ReadFile(modelPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrModelUnavailable, ModelFile)
		}
		return nil, fmt.Errorf("failed to read %s: %w", modelPath, err)
	}
	scalerBytes, err := os.ReadFile(scalerPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrModelUnavailable, ScalerFile)
		}
		return nil, fmt.Errorf("failed to read %s: %w", scalerPath, err)
	}

	var ma modelArtifact
	if err := json.Unmarshal(modelBytes, &ma); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptArtifact, ModelFile, err)
	}
	var sa scalerArtifact
	if err := json.Unmarshal(scalerBytes, &sa); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptArtifact, ScalerFile, err)
	}
	if ma.Forest == nil || sa.Scaler == nil {
		return nil, fmt.Errorf("%w: empty artifact", ErrCorruptArtifact)
	}
	if ma.Meta.Fingerprint == "" || ma.Meta.Fingerprint != sa.Fingerprint {
		return nil, fmt.Errorf("%w: model and scaler come from different training runs", ErrCorruptArtifact)
	}
	if sa.Scaler.Dim() != ma.Forest.NFeatures {
		return nil, fmt.Errorf("%w: scaler has %d features, forest %d", ErrCorruptArtifact, sa.Scaler.Dim(), ma.Forest.NFeatures)
	}

	return &Model{Forest: ma.Forest, Scaler: sa.Scaler, Meta: ma.Meta}, nil
}

// Save 写入模型与标准化器；两份文件带同一指纹，先写临时文件再 rename
func (s *Store) Save(m *Model) error {
	if m == nil || m.Forest == nil || m.Scaler == nil {
		return ErrModelUnavailable
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}

	if m.Meta.Fingerprint == "" {
		m.Meta.Fingerprint = uuid.NewString()
	}

	modelBytes, err := json.Marshal(modelArtifact{Meta: m.Meta, Forest: m.Forest})
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	scalerBytes, err := json.Marshal(scalerArtifact{Fingerprint: m.Meta.Fingerprint, Scaler: m.Scaler})
	if err != nil {
		return fmt.Errorf("failed to encode scaler: %w", err)
	}

	modelTmp, err := writeTemp(s.dir, ModelFile, modelBytes)
	if err != nil {
		return err
	}
	scalerTmp, err := writeTemp(s.dir, ScalerFile, scalerBytes)
	if err != nil {
		os.Remove(modelTmp)
		return err
	}

	if err := os.Rename(scalerTmp, filepath.Join(s.dir, ScalerFile)); err != nil {
		os.Remove(modelTmp)
		os.Remove(scalerTmp)
		return fmt.Errorf("failed to install scaler: %w", err)
	}
	if err := os.Rename(modelTmp, filepath.Join(s.dir, ModelFile)); err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("failed to install model: %w", err)
	}
	return nil
}

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	return f.Name(), nil
}
