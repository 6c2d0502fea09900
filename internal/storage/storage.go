package storage

import (
	"context"
	"time"
)

// 邮箱内容从不落盘：邮件与地址只存在于提供方与标签页会话的内存中。
// 这里唯一的共享状态是入站请求的限流计数。

// Decision 一次限流判定的结果
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter 按键（通常为客户端 IP）计数的限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Pinger 可探活的后端
type Pinger interface {
	Ping(ctx context.Context) error
}
