package memory

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"kieru/backend/internal/cache"
	"kieru/backend/internal/storage"
)

// RateLimiter 进程内令牌桶限流，未配置 Redis 时使用
type RateLimiter struct {
	buckets  *cache.LocalCache[*rate.Limiter]
	limit    rate.Limit
	requests int
}

// NewRateLimiter 创建限流器：window 内平均 requests 次，允许 requests 次突发
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	return &RateLimiter{
		// 空闲超过两个窗口的桶已回满，可以丢弃
		buckets:  cache.NewLocalCache[*rate.Limiter](0, 2*window),
		limit:    rate.Every(window / time.Duration(requests)),
		requests: requests,
	}
}

// Run 定期清理空闲的令牌桶
func (l *RateLimiter) Run(ctx context.Context) {
	l.buckets.Run(ctx, time.Minute)
}

// Allow 消耗一个令牌并判定是否放行
func (l *RateLimiter) Allow(_ context.Context, key string) (storage.Decision, error) {
	bucket, ok := l.buckets.Touch(key)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.requests)
		_ = l.buckets.Set(key, bucket, 0)
	}

	now := time.Now()
	r := bucket.ReserveN(now, 1)
	decision := storage.Decision{Limit: l.requests}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		decision.RetryAfter = delay
	} else {
		decision.Allowed = true
	}
	decision.Remaining = max(int(bucket.TokensAt(now)), 0)
	return decision, nil
}

var _ storage.RateLimiter = (*RateLimiter)(nil)
