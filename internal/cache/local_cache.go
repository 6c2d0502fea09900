package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFull 缓存已达容量上限
var ErrFull = errors.New("cache is full")

// EvictReason 条目被移除的原因
type EvictReason int

const (
	EvictExpired EvictReason = iota
	EvictDeleted
	EvictCleared
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictDeleted:
		return "deleted"
	default:
		return "cleared"
	}
}

// LocalCache 进程内 TTL 缓存
//
// 特点：
// - 使用 sync.Map 实现无锁读取
// - 条目在 Get/Touch 时可续期（空闲超时语义）
// - 容量上限，满时拒绝新键
// - 条目移除时回调 onEvict
type LocalCache[V any] struct {
	data    sync.Map
	mu      sync.Mutex
	size    int
	maxSize int
	ttl     time.Duration
	onEvict func(key string, value V, reason EvictReason)
}

type cacheEntry[V any] struct {
	value     V
	mu        sync.Mutex
	expiresAt time.Time
}

func (e *cacheEntry[V]) expired(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.After(e.expiresAt)
}

func (e *cacheEntry[V]) extend(ttl time.Duration) {
	e.mu.Lock()
	e.expiresAt = time.Now().Add(ttl)
	e.mu.Unlock()
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大条目数，<=0 表示不限
//   - ttl: 默认过期时间
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	return &LocalCache[V]{
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// OnEvict 注册移除回调，需在使用前设置
func (c *LocalCache[V]) OnEvict(fn func(key string, value V, reason EvictReason)) {
	c.onEvict = fn
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	var zero V
	val, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}

	entry := val.(*cacheEntry[V])
	if entry.expired(time.Now()) {
		c.remove(key, entry, EvictExpired)
		return zero, false
	}

	return entry.value, true
}

// Touch 获取缓存值并把过期时间顺延一个默认 TTL
func (c *LocalCache[V]) Touch(key string) (V, bool) {
	v, ok := c.Get(key)
	if !ok {
		return v, false
	}
	if val, ok := c.data.Load(key); ok {
		val.(*cacheEntry[V]).extend(c.ttl)
	}
	return v, true
}

// Set 设置缓存值；新键在容量已满时返回 ErrFull
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	entry := &cacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data.Load(key); !exists {
		if c.maxSize > 0 && c.size >= c.maxSize {
			return ErrFull
		}
		c.size++
	}
	c.data.Store(key, entry)
	return nil
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	if val, ok := c.data.Load(key); ok {
		c.remove(key, val.(*cacheEntry[V]), EvictDeleted)
	}
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Range 遍历未过期的条目，fn 返回 false 时停止
func (c *LocalCache[V]) Range(fn func(key string, value V) bool) {
	now := time.Now()
	c.data.Range(func(k, v any) bool {
		entry := v.(*cacheEntry[V])
		if entry.expired(now) {
			return true
		}
		return fn(k.(string), entry.value)
	})
}

// Clear 清空所有缓存
func (c *LocalCache[V]) Clear() {
	c.data.Range(func(k, v any) bool {
		c.remove(k.(string), v.(*cacheEntry[V]), EvictCleared)
		return true
	})
}

// Cleanup 清理一次过期条目，返回清理数量
func (c *LocalCache[V]) Cleanup() int {
	now := time.Now()
	removed := 0
	c.data.Range(func(k, v any) bool {
		entry := v.(*cacheEntry[V])
		if entry.expired(now) && c.remove(k.(string), entry, EvictExpired) {
			removed++
		}
		return true
	})
	return removed
}

// Run 按 interval 定期清理过期条目，直到 ctx 结束
func (c *LocalCache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// remove 只删除仍指向 entry 的键，避免误删并发写入的新值
func (c *LocalCache[V]) remove(key string, entry *cacheEntry[V], reason EvictReason) bool {
	c.mu.Lock()
	deleted := c.data.CompareAndDelete(key, entry)
	if deleted {
		c.size--
	}
	c.mu.Unlock()

	if deleted && c.onEvict != nil {
		c.onEvict(key, entry.value, reason)
	}
	return deleted
}
