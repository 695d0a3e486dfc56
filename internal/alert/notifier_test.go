package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fallReading() *models.SensorReading {
	return &models.SensorReading{
		ID:           9,
		Timestamp:    time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
		HeartRate:    88,
		SpO2:         96,
		Temperature:  36.8,
		Acceleration: 2.6,
		IsFall:       true,
	}
}

func TestNotifyFall_PostsPayload(t *testing.T) {
	var got FallAlert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	loc := time.FixedZone("ICT", 7*3600)
	n := NewNotifier(Config{WebhookURL: srv.URL}, loc, zap.NewNop())

	require.NoError(t, n.NotifyFall(context.Background(), fallReading()))
	assert.Equal(t, "fall", got.Type)
	assert.Equal(t, "2026-03-02T03:00:00+07:00", got.Time)
	assert.Equal(t, 2.6, got.Acceleration)
	assert.Equal(t, int64(9), got.ReadingID)
}

func TestNotifyFall_Disabled(t *testing.T) {
	n := NewNotifier(Config{}, nil, zap.NewNop())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.NotifyFall(context.Background(), fallReading()))
}

func TestNotifyFall_ServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(Config{WebhookURL: srv.URL}, time.UTC, zap.NewNop())
	err := n.NotifyFall(context.Background(), fallReading())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
