package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSensorReadingInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSensorReadingRepository(db, zap.NewNop())

	ts := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO sensor_readings`).
		WithArgs(ts, 70.0, 97.0, 36.6, 2.5, true, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	reading := &models.SensorReading{
		Timestamp: ts, HeartRate: 70, SpO2: 97, Temperature: 36.6, Acceleration: 2.5, IsFall: true,
	}
	require.NoError(t, repo.Insert(context.Background(), reading))
	assert.Equal(t, int64(42), reading.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSensorReadingListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSensorReadingRepository(db, zap.NewNop())

	ts := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "ts", "heart_rate", "spo2", "temperature", "acceleration", "is_fall", "is_abnormal"}).
		AddRow(int64(2), ts.Add(time.Second), 120.0, 97.0, 36.6, 1.0, false, true).
		AddRow(int64(1), ts, 70.0, 97.0, 36.6, 1.0, false, false)
	mock.ExpectQuery(`FROM sensor_readings`).WithArgs(10).WillReturnRows(rows)

	readings, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.True(t, readings[0].IsAbnormal)
	assert.Equal(t, int64(1), readings[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetThresholds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSettingsRepository(db, zap.NewNop())
	fallback := models.DefaultThresholds()

	mock.ExpectQuery(`FROM sleepwatch_settings`).WillReturnRows(sqlmock.NewRows(
		[]string{"heart_rate_min", "heart_rate_max", "spo2_min", "spo2_max", "temperature_min", "temperature_max", "acceleration_min", "acceleration_max"}).
		AddRow(55.0, 95.0, 94.0, 100.0, 35.0, 37.5, 0.4, 2.2))

	got, err := repo.GetThresholds(context.Background(), fallback)
	require.NoError(t, err)
	assert.Equal(t, 55.0, got.HeartRateMin)
	assert.Equal(t, 2.2, got.AccelerationMax)

	// 空表时使用默认值
	mock.ExpectQuery(`FROM sleepwatch_settings`).WillReturnRows(sqlmock.NewRows([]string{"heart_rate_min"}))
	got, err = repo.GetThresholds(context.Background(), fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsSaveThresholds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSettingsRepository(db, zap.NewNop())

	th := models.DefaultThresholds()
	mock.ExpectExec(`INSERT INTO sleepwatch_settings`).
		WithArgs(th.HeartRateMin, th.HeartRateMax, th.SpO2Min, th.SpO2Max,
			th.TemperatureMin, th.TemperatureMax, th.AccelerationMin, th.AccelerationMax).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveThresholds(context.Background(), th))
	assert.NoError(t, mock.ExpectationsWereMet())
}
