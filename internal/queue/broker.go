package queue

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Broker 抽象队列传输：LPUSH 入队头、BRPOP 出队尾的列表语义。
type Broker interface {
	Push(ctx context.Context, queue string, payload []byte) error
	// Pop 阻塞等待至多 timeout，队列为空时返回 ok=false。
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error)
}

// RedisBroker 基于 Redis 列表实现 Broker，入队后发布唤醒通知。
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker 包装既有 Redis 客户端。
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	if err := b.rdb.LPush(ctx, queue, payload).Err(); err != nil {
		return err
	}
	// 唤醒通知尽力而为，消费方本身带 1s 轮询兜底。
	_ = b.rdb.Publish(ctx, queue+":wake", 1).Err()
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	vals, err := b.rdb.BRPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(vals) != 2 {
		return nil, false, nil
	}
	return []byte(vals[1]), true, nil
}

// MemoryBroker 是进程内实现，测试与无 Redis 环境使用，语义与 Redis 列表一致。
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
	wake   map[string]chan struct{}
}

// NewMemoryBroker 创建内存队列。
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string][][]byte),
		wake:   make(map[string]chan struct{}),
	}
}

func (b *MemoryBroker) wakeCh(queue string) chan struct{} {
	ch, ok := b.wake[queue]
	if !ok {
		ch = make(chan struct{}, 1)
		b.wake[queue] = ch
	}
	return ch
}

func (b *MemoryBroker) Push(_ context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	b.queues[queue] = append([][]byte{payload}, b.queues[queue]...)
	ch := b.wakeCh(queue)
	b.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		items := b.queues[queue]
		if len(items) > 0 {
			last := items[len(items)-1]
			b.queues[queue] = items[:len(items)-1]
			b.mu.Unlock()
			return last, true, nil
		}
		ch := b.wakeCh(queue)
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-deadline.C:
			return nil, false, nil
		case <-ch:
		}
	}
}
