package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"
)

//go:embed schema.sql
var schemaSQL string

// Tables sleepwatch 使用的全部表
var Tables = []string{"sleep_sessions", "sleep_samples", "sensor_readings", "sleepwatch_settings"}

// EnsureSchema 创建缺失的表与索引（可重复执行）
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TableCounts 各表行数；表不存在时返回错误
func TableCounts(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		// 表名来自固定列表
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// SessionSummary 会话概要（采样数与采样时间范围）
type SessionSummary struct {
	SessionID   string
	StartTime   time.Time
	EndTime     *time.Time
	Quality     string
	Samples     int
	FirstSample *time.Time
	LastSample  *time.Time
}

// ListSessionSummaries 最近 limit 个会话的概要（按开始时间倒序）
func (r *SessionRepository) ListSessionSummaries(ctx context.Context, limit int) ([]SessionSummary, error) {
	query := `
		SELECT s.session_id, s.start_time, s.end_time, COALESCE(s.quality, ''),
		       COUNT(p.id), MIN(p.ts), MAX(p.ts)
		FROM sleep_sessions s
		LEFT JOIN sleep_samples p ON p.session_id = s.session_id
		GROUP BY s.session_id, s.start_time, s.end_time, s.quality
		ORDER BY s.start_time DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s                SessionSummary
			end, first, last sql.NullTime
		)
		if err := rows.Scan(&s.SessionID, &s.StartTime, &end, &s.Quality, &s.Samples, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		s.EndTime = nullTime(end)
		s.FirstSample = nullTime(first)
		s.LastSample = nullTime(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
