// Package analyzer 在线睡眠会话分析：IDLE/RECORDING 状态机、采样缓冲与质量评分
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidStateTransition 当前状态不允许该操作
var ErrInvalidStateTransition = errors.New("invalid state transition")

// State 分析器状态
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "RECORDING"
	}
	return "IDLE"
}

// SessionStore 会话与采样持久化
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	InsertSample(ctx context.Context, s models.Sample) error
	CloseSession(ctx context.Context, id string, end time.Time, q models.Quality) error
}

// EventPublisher 会话事件下游通知（可为 nil）
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, ev models.SessionEvent) error
}

// Analyzer 单设备的在线会话分析器，所有状态由 mu 保护
type Analyzer struct {
	mu      sync.Mutex
	state   State
	session *models.Session
	buffer  []models.Sample
	dedup   *Deduper

	store    SessionStore
	events   EventPublisher
	scorer   *Scorer
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option Analyzer 可选项
type Option func(*Analyzer)

// WithEventPublisher 会话开始/结束时发布事件
func WithEventPublisher(p EventPublisher) Option {
	return func(a *Analyzer) { a.events = p }
}

// WithRecorder 指标上报
func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithDedupCapacity 去重集合容量
func WithDedupCapacity(n int) Option {
	return func(a *Analyzer) { a.dedup = NewDeduper(n) }
}

// NewAnalyzer 创建分析器（初始状态 IDLE）
func NewAnalyzer(store SessionStore, scorer *Scorer, logger *zap.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		state:    StateIdle,
		dedup:    NewDeduper(100),
		store:    store,
		scorer:   scorer,
		recorder: nopRecorder{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State 当前状态
func (a *Analyzer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CurrentSession 当前会话副本（IDLE 时为 nil）
func (a *Analyzer) CurrentSession() *models.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// BufferLen 当前缓冲采样数
func (a *Analyzer) BufferLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// SeenMessage 消息去重；key 为空时不去重
func (a *Analyzer) SeenMessage(key string) bool {
	if key == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dedup.Seen(key)
}

// StartSession IDLE -> RECORDING；RECORDING 状态下拒绝并保留当前会话
func (a *Analyzer) StartSession(ctx context.Context) (*models.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateRecording {
		a.logger.Warn("Start requested while recording, ignored",
			zap.String("session_id", a.session.ID),
			zap.Int("buffered_samples", len(a.buffer)),
		)
		return nil, fmt.Errorf("%w: start while %s", ErrInvalidStateTransition, a.state)
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		StartTime: a.now(),
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	a.session = session
	a.buffer = a.buffer[:0]
	a.state = StateRecording
	a.recorder.SessionStarted()

	a.logger.Info("Sleep session started",
		zap.String("session_id", session.ID),
		zap.Time("start_time", session.StartTime),
	)
	a.publish(ctx, models.SessionEvent{
		Type:      models.SessionEventStarted,
		SessionID: session.ID,
		StartTime: session.StartTime,
	})

	s := *session
	return &s, nil
}

// AddSample 仅在 RECORDING 状态下有效：持久化并加入缓冲
// 持久化失败时采样仍保留在缓冲中参与本次分析
func (a *Analyzer) AddSample(ctx context.Context, sample models.Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateRecording {
		a.logger.Debug("Sample received while idle, ignored")
		return fmt.Errorf("%w: sample while %s", ErrInvalidStateTransition, a.state)
	}

	sample.SessionID = a.session.ID
	if sample.Timestamp.IsZero() {
		sample.Timestamp = a.now()
	}
	a.buffer = append(a.buffer, sample)

	if err := a.store.InsertSample(ctx, sample); err != nil {
		a.logger.Error("Failed to persist sample",
			zap.String("session_id", sample.SessionID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist sample: %w", err)
	}

	if n := len(a.buffer); n%10 == 0 {
		a.logger.Debug("Samples buffered",
			zap.String("session_id", sample.SessionID),
			zap.Int("count", n),
			zap.Float64("heart_rate", sample.HeartRate),
			zap.Float64("spo2", sample.SpO2),
		)
	}
	return nil
}

// EndSession RECORDING -> IDLE：评分、持久化结束时间与标签、清空缓冲
// IDLE 状态下为空操作
func (a *Analyzer) EndSession(ctx context.Context) (*Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateRecording {
		a.logger.Info("End requested while idle, nothing to do")
		return nil, fmt.Errorf("%w: end while %s", ErrInvalidStateTransition, a.state)
	}

	session := a.session
	end := a.now()
	analysis := a.scorer.ScoreSamples(a.buffer)
	samples := len(a.buffer)

	// 无论持久化是否成功都回到 IDLE，避免卡在 RECORDING
	a.session = nil
	a.buffer = a.buffer[:0]
	a.state = StateIdle
	a.recorder.SessionEnded(analysis.Quality)

	q := analysis.Quality
	session.EndTime = &end
	session.Quality = &q

	a.logger.Info("Sleep session ended",
		zap.String("session_id", session.ID),
		zap.Time("end_time", end),
		zap.String("quality", string(q)),
		zap.Float64("score", analysis.Score),
		zap.String("strategy", analysis.Strategy.String()),
		zap.Int("hours", len(analysis.Hours)),
		zap.Int("samples", samples),
	)

	if err := a.store.CloseSession(ctx, session.ID, end, q); err != nil {
		a.logger.Error("Failed to persist session result",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return &analysis, fmt.Errorf("failed to close session: %w", err)
	}

	a.publish(ctx, models.SessionEvent{
		Type:      models.SessionEventEnded,
		SessionID: session.ID,
		StartTime: session.StartTime,
		EndTime:   &end,
		Quality:   q,
		Score:     analysis.Score,
		Samples:   samples,
	})

	return &analysis, nil
}

func (a *Analyzer) publish(ctx context.Context, ev models.SessionEvent) {
	if a.events == nil {
		return
	}
	if err := a.events.PublishSessionEvent(ctx, ev); err != nil {
		a.logger.Warn("Failed to publish session event",
			zap.String("session_id", ev.SessionID),
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
	}
}
