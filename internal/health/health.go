package health

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"kieru/backend/internal/logger"
	"kieru/backend/internal/storage"
)

const (
	defaultMaxGoroutines = 100000
	checkTimeout         = 3 * time.Second
)

// Options 健康检查参数
type Options struct {
	ProviderURL   string         // 提供方地址，就绪检查解析其主机名
	Redis         storage.Pinger // 可选
	MaxGoroutines int
	Logger        *zap.Logger
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(opts Options) *HealthChecker {
	opts.Logger = logger.OrNop(opts.Logger)
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = defaultMaxGoroutines
	}

	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: opts.Logger.Named("health"),
	}
	hc.addChecks(opts)
	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks(opts Options) {
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))

	if host := providerHost(opts.ProviderURL); host != "" {
		hc.health.AddReadinessCheck("provider_dns",
			healthcheck.Async(healthcheck.DNSResolveCheck(host, checkTimeout), 30*time.Second))
	}

	if opts.Redis != nil {
		hc.health.AddReadinessCheck("redis", healthcheck.Timeout(RedisHealthCheck(opts.Redis), checkTimeout))
	}

	hc.logger.Info("health checks registered",
		zap.String("provider_host", providerHost(opts.ProviderURL)),
		zap.Bool("redis", opts.Redis != nil),
	)
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// RedisHealthCheck Redis 健康检查
func RedisHealthCheck(p storage.Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return p.Ping(ctx)
	}
}

func providerHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
