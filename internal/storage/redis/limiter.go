package redis

import (
	"context"
	"fmt"
	"time"

	"kieru/backend/internal/storage"
)

// RateLimiter 基于 Redis 的固定窗口限流，多实例部署时共享计数
type RateLimiter struct {
	client   *Client
	prefix   string
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter 创建限流器，window 内每个键最多 requests 次
func NewRateLimiter(client *Client, prefix string, requests int, window time.Duration) *RateLimiter {
	if prefix == "" {
		prefix = "kieru:ratelimit"
	}
	return &RateLimiter{
		client:   client,
		prefix:   prefix,
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// Allow 计数一次请求并判定是否放行
func (l *RateLimiter) Allow(ctx context.Context, key string) (storage.Decision, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return storage.Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	windowEnd := time.Unix(0, (slot+1)*int64(l.window))
	decision := storage.Decision{
		Allowed:   count <= l.requests,
		Limit:     l.requests,
		Remaining: max(l.requests-count, 0),
	}
	if !decision.Allowed {
		decision.RetryAfter = windowEnd.Sub(now)
	}
	return decision, nil
}

var _ storage.RateLimiter = (*RateLimiter)(nil)
