// Package reconciler 用当前评分器重新标注历史会话
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/hoanvar/LTN/internal/analyzer"
	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// SessionStore 重标注所需的会话读写
type SessionStore interface {
	ListClosedSessions(ctx context.Context) ([]models.Session, error)
	ListSamples(ctx context.Context, sessionID string) ([]models.Sample, error)
	UpdateQuality(ctx context.Context, id string, q models.Quality) error
}

// Entry 单个会话的重标注结果
type Entry struct {
	SessionID string
	StartTime time.Time
	EndTime   *time.Time
	Samples   int
	Hours     int
	Before    *models.Quality
	After     models.Quality
	Score     float64
	Strategy  string
}

// Changed 标签是否变化（原标签为空也算变化）
func (e Entry) Changed() bool {
	return e.Before == nil || *e.Before != e.After
}

// Skipped 跳过的会话及原因
type Skipped struct {
	SessionID string
	Reason    string
}

// Report 重标注报告
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Strategy  string
	Entries   []Entry
	Counts    map[models.Quality]int
	Changed   int
	Skipped   []Skipped

	// Interrupted 为 true 表示 ctx 取消，报告只覆盖已处理的会话
	Interrupted bool
}

// Reconciler 历史会话重标注
type Reconciler struct {
	store  SessionStore
	scorer *analyzer.Scorer
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler 创建重标注器；scorer 与在线分析使用同一个
func NewReconciler(store SessionStore, scorer *analyzer.Scorer, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		scorer: scorer,
		logger: logger,
		now:    time.Now,
	}
}

// Run 对快照中的所有已结束会话重新评分并覆盖标签
// 只在会话之间检查 ctx，单个会话内部不中断
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	start := r.now()
	sessions, err := r.store.ListClosedSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	report := &Report{
		StartedAt: start,
		Strategy:  r.scorer.Strategy().String(),
		Counts:    make(map[models.Quality]int, len(models.AllQualities)),
	}
	for _, q := range models.AllQualities {
		report.Counts[q] = 0
	}

	r.logger.Info("Relabeling sessions",
		zap.Int("sessions", len(sessions)),
		zap.String("strategy", report.Strategy),
	)

	for i := range sessions {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Relabel interrupted",
				zap.Int("processed", i),
				zap.Int("total", len(sessions)),
			)
			report.Interrupted = true
			break
		}

		entry, reason := r.relabel(ctx, &sessions[i])
		if reason != "" {
			r.logger.Warn("Session skipped",
				zap.String("session_id", sessions[i].ID),
				zap.String("reason", reason),
			)
			report.Skipped = append(report.Skipped, Skipped{SessionID: sessions[i].ID, Reason: reason})
			continue
		}

		report.Entries = append(report.Entries, *entry)
		report.Counts[entry.After]++
		if entry.Changed() {
			report.Changed++
		}
	}

	report.Duration = r.now().Sub(start)
	r.logger.Info("Relabel finished",
		zap.Int("relabeled", len(report.Entries)),
		zap.Int("changed", report.Changed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("good", report.Counts[models.QualityGood]),
		zap.Int("medium", report.Counts[models.QualityMedium]),
		zap.Int("bad", report.Counts[models.QualityBad]),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Reconciler) relabel(ctx context.Context, s *models.Session) (*Entry, string) {
	samples, err := r.store.ListSamples(ctx, s.ID)
	if err != nil {
		return nil, fmt.Sprintf("failed to load samples: %v", err)
	}
	if len(samples) == 0 {
		return nil, "no samples"
	}

	analysis := r.scorer.ScoreSamples(samples)
	if err := r.store.UpdateQuality(ctx, s.ID, analysis.Quality); err != nil {
		return nil, fmt.Sprintf("failed to update quality: %v", err)
	}

	return &Entry{
		SessionID: s.ID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Samples:   len(samples),
		Hours:     len(analysis.Hours),
		Before:    s.Quality,
		After:     analysis.Quality,
		Score:     analysis.Score,
		Strategy:  analysis.Strategy.String(),
	}, ""
}
