package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 睡眠会话与采样仓库
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// CreateSession 新建会话（结束时间与标签为空）
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sleep_sessions (session_id, start_time)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.StartTime); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// InsertSample 写入一条会话采样
func (r *SessionRepository) InsertSample(ctx context.Context, s models.Sample) error {
	query := `
		INSERT INTO sleep_samples (session_id, ts, heart_rate, spo2, temperature, acceleration)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.Timestamp, s.HeartRate, s.SpO2, s.Temperature, s.Acceleration)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// CloseSession 写入结束时间与质量标签
func (r *SessionRepository) CloseSession(ctx context.Context, id string, end time.Time, q models.Quality) error {
	query := `
		UPDATE sleep_sessions
		SET end_time = $2, quality = $3
		WHERE session_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, end, string(q))
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return expectOneRow(res, id)
}

// UpdateQuality 覆盖会话标签（重标注使用）
func (r *SessionRepository) UpdateQuality(ctx context.Context, id string, q models.Quality) error {
	query := `UPDATE sleep_sessions SET quality = $2 WHERE session_id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(q))
	if err != nil {
		return fmt.Errorf("failed to update quality: %w", err)
	}
	return expectOneRow(res, id)
}

// GetSession 按 ID 查询会话
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT session_id, start_time, end_time, quality
		FROM sleep_sessions
		WHERE session_id = $1
	`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// ListClosedSessions 所有已结束的会话（按开始时间升序）
func (r *SessionRepository) ListClosedSessions(ctx context.Context) ([]models.Session, error) {
	return r.listSessions(ctx, `
		SELECT session_id, start_time, end_time, quality
		FROM sleep_sessions
		WHERE end_time IS NOT NULL
		ORDER BY start_time ASC
	`)
}

// ListLabeledSessions 所有带标签的会话（训练数据）
func (r *SessionRepository) ListLabeledSessions(ctx context.Context) ([]models.Session, error) {
	return r.listSessions(ctx, `
		SELECT session_id, start_time, end_time, quality
		FROM sleep_sessions
		WHERE quality IS NOT NULL
		ORDER BY start_time ASC
	`)
}

// ListSamples 会话的全部采样（按时间升序）
func (r *SessionRepository) ListSamples(ctx context.Context, sessionID string) ([]models.Sample, error) {
	query := `
		SELECT session_id, ts, heart_rate, spo2, temperature, acceleration
		FROM sleep_samples
		WHERE session_id = $1
		ORDER BY ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.SessionID, &s.Timestamp, &s.HeartRate, &s.SpO2, &s.Temperature, &s.Acceleration); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return samples, nil
}

// QualityDistribution 各标签的会话数
func (r *SessionRepository) QualityDistribution(ctx context.Context) (map[models.Quality]int, error) {
	query := `
		SELECT quality, COUNT(*)
		FROM sleep_sessions
		WHERE quality IS NOT NULL
		GROUP BY quality
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[models.Quality]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		q, err := models.ParseQuality(label)
		if err != nil {
			r.logger.Warn("Unknown quality label in database", zap.String("quality", label))
			continue
		}
		dist[q] = count
	}
	return dist, rows.Err()
}

func (r *SessionRepository) listSessions(ctx context.Context, query string) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s       models.Session
		end     sql.NullTime
		quality sql.NullString
	)
	if err := row.Scan(&s.ID, &s.StartTime, &end, &quality); err != nil {
		return nil, err
	}
	if end.Valid {
		t := end.Time
		s.EndTime = &t
	}
	if quality.Valid {
		q, err := models.ParseQuality(quality.String)
		if err != nil {
			return nil, err
		}
		s.Quality = &q
	}
	return &s, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}
