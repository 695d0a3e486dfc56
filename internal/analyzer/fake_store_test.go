package analyzer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hoanvar/LTN/internal/features"
	"github.com/hoanvar/LTN/internal/models"
)

// memStore 仅用于单元测试的内存会话存储
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	samples   map[string][]models.Sample
	failClose bool
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.Session),
		samples:  make(map[string][]models.Sample),
	}
}

func (m *memStore) CreateSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) InsertSample(ctx context.Context, s models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[s.SessionID] = append(m.samples[s.SessionID], s)
	return nil
}

func (m *memStore) CloseSession(ctx context.Context, id string, end time.Time, q models.Quality) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClose {
		return errors.New("db down")
	}
	s, ok := m.sessions[id]
	if !ok {
		return errors.New("no such session")
	}
	s.EndTime = &end
	s.Quality = &q
	return nil
}

// fixedPredictor 返回固定分值；心率均值超过 failAbove 时报错
type fixedPredictor struct {
	score     float64
	failAbove float64
	calls     int
}

func (p *fixedPredictor) Predict(v features.Vector) (float64, error) {
	p.calls++
	if p.failAbove > 0 && v[features.HRMean] > p.failAbove {
		return 0, errors.New("inference failed")
	}
	return p.score, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *recordedEvents) PublishSessionEvent(ctx context.Context, ev models.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
