package cache

import (
	"context"
	"testing"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestReadingCache_SetGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := NewReadingCache(client, "sleepwatch:device:latest", time.Minute)
	ctx := context.Background()

	_, err := c.GetLatest(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	reading := &models.SensorReading{
		ID:           7,
		Timestamp:    time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
		HeartRate:    70,
		SpO2:         97,
		Temperature:  36.6,
		Acceleration: 2.4,
		IsFall:       true,
	}
	require.NoError(t, c.SetLatest(ctx, reading))

	got, err := c.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, reading.ID, got.ID)
	assert.True(t, got.IsFall)
	assert.True(t, reading.Timestamp.Equal(got.Timestamp))

	// TTL 到期后缓存失效
	mr.FastForward(2 * time.Minute)
	_, err = c.GetLatest(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSessionStream_Publish(t *testing.T) {
	_, client := setupTestRedis(t)
	s := NewSessionStream(client, "sleepwatch:sessions:stream", 1000)
	ctx := context.Background()

	end := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	ev := models.SessionEvent{
		Type:      models.SessionEventEnded,
		SessionID: "s-1",
		StartTime: end.Add(-8 * time.Hour),
		EndTime:   &end,
		Quality:   models.QualityGood,
		Score:     2.75,
		Samples:   960,
	}
	require.NoError(t, s.PublishSessionEvent(ctx, ev))

	msgs, err := client.XRange(ctx, "sleepwatch:sessions:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	raw, ok := msgs[0].Values["data"].(string)
	require.True(t, ok)
	var decoded models.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, "s-1", decoded.SessionID)
	assert.Equal(t, models.QualityGood, decoded.Quality)
	assert.Equal(t, 960, decoded.Samples)
	assert.NotEmpty(t, msgs[0].Values["timestamp"])
}

func TestJobLocker_Exclusive(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewJobLocker(client, "sleepwatch:lock:batch", time.Minute)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "train")
	require.NoError(t, err)
	assert.Equal(t, "train", lock.Holder())

	_, err = locker.Acquire(ctx, "relabel")
	assert.ErrorIs(t, err, ErrJobLocked)

	require.NoError(t, lock.Release(ctx))

	second, err := locker.Acquire(ctx, "relabel")
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestJobLocker_ReleaseAfterExpiryKeepsNewHolder(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewJobLocker(client, "sleepwatch:lock:batch", time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "train")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	fresh, err := locker.Acquire(ctx, "relabel")
	require.NoError(t, err)

	// 过期锁的释放不能删除新持有者的锁
	require.NoError(t, stale.Release(ctx))
	_, err = locker.Acquire(ctx, "train")
	assert.ErrorIs(t, err, ErrJobLocked)

	require.NoError(t, fresh.Release(ctx))
}
