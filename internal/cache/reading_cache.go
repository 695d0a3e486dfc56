package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// ErrCacheMiss 表示缓存不存在
var ErrCacheMiss = errors.New("cache miss")

// ReadingCache 最近一条遥测的实时缓存（供看板读取）
type ReadingCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewReadingCache 创建实时缓存
func NewReadingCache(client *redis.Client, key string, ttl time.Duration) *ReadingCache {
	return &ReadingCache{client: client, key: key, ttl: ttl}
}

// SetLatest 覆盖最近一条记录
func (c *ReadingCache) SetLatest(ctx context.Context, reading *models.SensorReading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache reading: %w", err)
	}
	return nil
}

// GetLatest 读取最近一条记录
func (c *ReadingCache) GetLatest(ctx context.Context) (*models.SensorReading, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	var reading models.SensorReading
	if err := json.Unmarshal(val, &reading); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached reading: %w", err)
	}
	return &reading, nil
}
