package cache

import (
	"context"
	"fmt"

	"github.com/hoanvar/LTN/internal/models"
	rediscommon "github.com/hoanvar/LTN/internal/platform/redis"

	"github.com/go-redis/redis/v8"
)

// SessionStream 会话开始/结束事件发布到 Redis Streams
type SessionStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewSessionStream 创建会话事件流
func NewSessionStream(client *redis.Client, stream string, maxLen int64) *SessionStream {
	return &SessionStream{client: client, stream: stream, maxLen: maxLen}
}

// PublishSessionEvent 发布一条会话事件
func (s *SessionStream) PublishSessionEvent(ctx context.Context, ev models.SessionEvent) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, ev); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}
