// Package cache 提供 Redis 形态的键值缓存，仅作去重与加速，不作为事实来源。
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// 各命名空间的 TTL，与持久层写入配对使用，过期仅导致一次缓存未命中重算。
const (
	TTLProcessing = time.Hour
	TTLDone       = 24 * time.Hour
	TTLExtraction = 7 * 24 * time.Hour
	TTLIdentity   = 30 * 24 * time.Hour
	TTLPrices     = 6 * time.Hour
	TTLJobStatus  = 24 * time.Hour
)

// Store 抽象缓存访问，便于测试注入内存实现。
type Store interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// URLStateKey 返回 URL 处理状态键，值为 processing 或 done。
func URLStateKey(url string) string { return "url_hash:" + hashURL(url) }

// ExtractionKey 返回提取结果缓存键。
func ExtractionKey(url string) string { return "extraction:" + hashURL(url) }

// IdentityKey 返回标准商品缓存键。
func IdentityKey(productID string) string { return "product_identity:" + productID }

// PricesKey 返回商品价格列表缓存键。
func PricesKey(productID string) string { return "prices:" + productID }

// JobStatusKey 返回任务状态键。
func JobStatusKey(jobID string) string { return "job_status:" + jobID }

func hashURL(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// RedisStore 基于 go-redis 实现 Store，对象以 JSON 序列化存储。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore 包装既有 Redis 客户端。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisStore) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// MemoryStore 是带过期时间的内存实现，供测试与无 Redis 环境使用。
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	raw       []byte
	expiresAt time.Time
}

// NewMemoryStore 创建内存缓存。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !item.expiresAt.IsZero() && s.now().After(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false
	}
	return item.raw, true
}

func (s *MemoryStore) set(key string, raw []byte, ttl time.Duration) {
	item := memoryItem{raw: raw}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
}

func (s *MemoryStore) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := s.get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.set(key, raw, ttl)
	return nil
}

func (s *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	raw, ok := s.get(key)
	if !ok {
		return "", false, nil
	}
	return string(raw), true, nil
}

func (s *MemoryStore) SetString(_ context.Context, key, value string, ttl time.Duration) error {
	s.set(key, []byte(value), ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.items, key)
	}
	s.mu.Unlock()
	return nil
}
