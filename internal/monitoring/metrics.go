package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kieru/backend/internal/provider"
)

const namespace = "kieru"

// Metrics 监控指标
//
// 同时实现 provider.Recorder 与 service.Observer。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 提供方调用指标
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec

	// 刷新指标
	TicksTotal          *prometheus.CounterVec
	NewMessagesTotal    prometheus.Counter
	SessionsActive      prometheus.Gauge
	WebsocketConnection prometheus.Gauge

	// 系统指标
	SystemUptime prometheus.Gauge
	MemoryUsage  prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	providerFailures atomic.Int64
	activeSessions   atomic.Int64
}

// NewMetrics 在独立注册表上创建监控指标，并附带 Go 运行时与进程采集器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWith(reg)
}

// NewMetricsWith 在给定注册表上创建监控指标
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls by function and outcome",
			},
			[]string{"function", "outcome"},
		),

		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"function"},
		),

		TicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_ticks_total",
				Help:      "Total number of refresh ticks by outcome",
			},
			[]string{"outcome"},
		),

		NewMessagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "new_messages_total",
				Help:      "Total number of new messages discovered by refresh ticks",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live tab sessions",
			},
		),

		WebsocketConnection: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of open websocket connections",
			},
		),

		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_uptime_seconds",
				Help:      "System uptime in seconds",
			},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Memory usage in bytes",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_blocks_total",
				Help:      "Total number of rate limit blocks",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// ObserveProviderCall 记录一次提供方调用，并维护连续失败计数
func (m *Metrics) ObserveProviderCall(function, outcome string, elapsed time.Duration) {
	m.ProviderCallsTotal.WithLabelValues(function, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(function).Observe(elapsed.Seconds())
	if outcome == provider.OutcomeOK {
		m.providerFailures.Store(0)
	} else {
		m.providerFailures.Add(1)
	}
}

// ConsecutiveProviderFailures 自上次成功调用以来的失败次数
func (m *Metrics) ConsecutiveProviderFailures() int64 {
	return m.providerFailures.Load()
}

// ObserveTick 记录一次刷新结果
func (m *Metrics) ObserveTick(outcome string) {
	m.TicksTotal.WithLabelValues(outcome).Inc()
}

// ObserveNewMessages 记录刷新带回的新邮件数
func (m *Metrics) ObserveNewMessages(n int) {
	if n > 0 {
		m.NewMessagesTotal.Add(float64(n))
	}
}

// SetActiveSessions 更新活跃会话数
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Store(int64(n))
	m.SessionsActive.Set(float64(n))
}

// ActiveSessions 当前活跃会话数
func (m *Metrics) ActiveSessions() int {
	return int(m.activeSessions.Load())
}

// SetWebsocketConnections 更新 WebSocket 连接数
func (m *Metrics) SetWebsocketConnections(n int) {
	m.WebsocketConnection.Set(float64(n))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateMemoryUsage 更新内存使用量
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// CollectRuntime 定期刷新运行时间与内存指标，直到 ctx 结束
func (m *Metrics) CollectRuntime(ctx context.Context, started time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		m.UpdateMemoryUsage(ms.Alloc)
		m.UpdateSystemUptime(time.Since(started))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
