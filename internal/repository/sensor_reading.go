package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// SensorReadingRepository 遥测记录仓库
type SensorReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorReadingRepository 创建遥测记录仓库
func NewSensorReadingRepository(db *sql.DB, logger *zap.Logger) *SensorReadingRepository {
	return &SensorReadingRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入一条记录并回填 ID
func (r *SensorReadingRepository) Insert(ctx context.Context, reading *models.SensorReading) error {
	query := `
		INSERT INTO sensor_readings (ts, heart_rate, spo2, temperature, acceleration, is_fall, is_abnormal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		reading.Timestamp,
		reading.HeartRate,
		reading.SpO2,
		reading.Temperature,
		reading.Acceleration,
		reading.IsFall,
		reading.IsAbnormal,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

// ListRecent 最近 limit 条记录（时间倒序）
func (r *SensorReadingRepository) ListRecent(ctx context.Context, limit int) ([]models.SensorReading, error) {
	query := `
		SELECT id, ts, heart_rate, spo2, temperature, acceleration, is_fall, is_abnormal
		FROM sensor_readings
		ORDER BY ts DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	var out []models.SensorReading
	for rows.Next() {
		var sr models.SensorReading
		if err := rows.Scan(&sr.ID, &sr.Timestamp, &sr.HeartRate, &sr.SpO2, &sr.Temperature,
			&sr.Acceleration, &sr.IsFall, &sr.IsAbnormal); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}
