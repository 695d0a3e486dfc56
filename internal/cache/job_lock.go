package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrJobLocked 已有批处理任务持有锁
var ErrJobLocked = errors.New("batch job already running")

// 仅当 token 匹配时才删除，防止误删他人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLocker 批处理任务互斥锁（训练与重标注共用同一个 key）
type JobLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewJobLocker 创建任务锁
func NewJobLocker(client *redis.Client, key string, ttl time.Duration) *JobLocker {
	return &JobLocker{client: client, key: key, ttl: ttl}
}

// Lock 已持有的锁
type Lock struct {
	locker *JobLocker
	token  string
	holder string
}

// Acquire 获取锁；已被占用时返回 ErrJobLocked
func (l *JobLocker) Acquire(ctx context.Context, holder string) (*Lock, error) {
	token := holder + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !ok {
		current, _ := l.client.Get(ctx, l.key).Result()
		return nil, fmt.Errorf("%w: held by %s", ErrJobLocked, current)
	}
	return &Lock{locker: l, token: token, holder: holder}, nil
}

// Holder 持有者名称
func (k *Lock) Holder() string {
	return k.holder
}

// Release 释放锁；锁已过期或被他人持有时不做任何事
func (k *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, k.locker.client, []string{k.locker.key}, k.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	return nil
}
