package catalog

import (
	"context"
	"time"

	"github.com/bsm/redislock"
)

// Locker 按键串行化创建操作，返回释放函数。
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// NoopLocker 不加锁，查-建竞态由调用方自行承担。
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// RedisLocker 基于 redislock 的建议锁实现。
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker 创建 RedisLocker，默认锁 10s 超时。
func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client, ttl: 10 * time.Second}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}
