package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hoanvar/LTN/internal/analyzer"
	"github.com/hoanvar/LTN/internal/cache"
	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// SessionStatus 在线分析器状态
type SessionStatus interface {
	State() analyzer.State
	CurrentSession() *models.Session
	BufferLen() int
}

// LatestReader 最新读数
type LatestReader interface {
	GetLatest(ctx context.Context) (*models.SensorReading, error)
}

// ReadingLister 最近读数
type ReadingLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.SensorReading, error)
}

// DistributionReader 标签分布
type DistributionReader interface {
	QualityDistribution(ctx context.Context) (map[models.Quality]int, error)
}

// SleepHandler 会话/遥测查询
type SleepHandler struct {
	Status   SessionStatus
	Latest   LatestReader
	Readings ReadingLister
	Sessions DistributionReader
	Limits   models.Thresholds
	Logger   *zap.Logger
}

const maxReadingsLimit = 500

// SessionView 当前会话
type SessionView struct {
	State     string     `json:"state"`
	SessionID string     `json:"session_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Samples   int        `json:"samples"`
}

func (h *SleepHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	view := SessionView{State: h.Status.State().String(), Samples: h.Status.BufferLen()}
	if s := h.Status.CurrentSession(); s != nil {
		view.SessionID = s.ID
		view.StartTime = &s.StartTime
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

func (h *SleepHandler) LatestReading(w http.ResponseWriter, r *http.Request) {
	reading, err := h.Latest.GetLatest(r.Context())
	if errors.Is(err, cache.ErrCacheMiss) {
		writeJSON(w, http.StatusNotFound, Fail("no recent reading"))
		return
	}
	if err != nil {
		h.Logger.Error("Failed to read latest reading", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to read latest reading"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(reading))
}

func (h *SleepHandler) RecentReadings(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	if limit <= 0 || limit > maxReadingsLimit {
		writeJSON(w, http.StatusBadRequest, Fail("limit must be between 1 and 500"))
		return
	}
	items, err := h.Readings.ListRecent(r.Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to list readings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list readings"))
		return
	}
	if items == nil {
		items = []models.SensorReading{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": len(items)}))
}

func (h *SleepHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.Sessions.QualityDistribution(r.Context())
	if err != nil {
		h.Logger.Error("Failed to load quality distribution", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load quality distribution"))
		return
	}
	out := make(map[string]int, len(models.AllQualities))
	for _, q := range models.AllQualities {
		out[string(q)] = dist[q]
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *SleepHandler) Thresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.Limits.DeviceSettings()))
}
