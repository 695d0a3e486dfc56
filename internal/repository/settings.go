package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// SettingsRepository 阈值设置（单行表，id = 1）
type SettingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *sql.DB, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetThresholds 读取阈值；不存在时返回 fallback
func (r *SettingsRepository) GetThresholds(ctx context.Context, fallback models.Thresholds) (models.Thresholds, error) {
	query := `
		SELECT heart_rate_min, heart_rate_max, spo2_min, spo2_max,
		       temperature_min, temperature_max, acceleration_min, acceleration_max
		FROM sleepwatch_settings
		WHERE id = 1
	`
	var t models.Thresholds
	err := r.db.QueryRowContext(ctx, query).Scan(
		&t.HeartRateMin, &t.HeartRateMax,
		&t.SpO2Min, &t.SpO2Max,
		&t.TemperatureMin, &t.TemperatureMax,
		&t.AccelerationMin, &t.AccelerationMax,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Info("No threshold settings stored, using configured defaults")
			return fallback, nil
		}
		return fallback, fmt.Errorf("failed to query settings: %w", err)
	}
	return t, nil
}

// SaveThresholds 写入阈值（upsert）
func (r *SettingsRepository) SaveThresholds(ctx context.Context, t models.Thresholds) error {
	query := `
		INSERT INTO sleepwatch_settings (id, heart_rate_min, heart_rate_max, spo2_min, spo2_max,
			temperature_min, temperature_max, acceleration_min, acceleration_max)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			heart_rate_min = EXCLUDED.heart_rate_min,
			heart_rate_max = EXCLUDED.heart_rate_max,
			spo2_min = EXCLUDED.spo2_min,
			spo2_max = EXCLUDED.spo2_max,
			temperature_min = EXCLUDED.temperature_min,
			temperature_max = EXCLUDED.temperature_max,
			acceleration_min = EXCLUDED.acceleration_min,
			acceleration_max = EXCLUDED.acceleration_max
	`
	_, err := r.db.ExecContext(ctx, query,
		t.HeartRateMin, t.HeartRateMax,
		t.SpO2Min, t.SpO2Max,
		t.TemperatureMin, t.TemperatureMax,
		t.AccelerationMin, t.AccelerationMax,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
