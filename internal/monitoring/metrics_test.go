package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kieru/backend/internal/provider"
	"kieru/backend/internal/service"
)

var (
	_ provider.Recorder = (*Metrics)(nil)
	_ service.Observer  = (*Metrics)(nil)
)

func TestMetrics(t *testing.T) {
	t.Run("提供方调用按函数与结果计数", func(t *testing.T) {
		m := NewMetricsWith(prometheus.NewRegistry())

		m.ObserveProviderCall("check_email", provider.OutcomeOK, 20*time.Millisecond)
		m.ObserveProviderCall("check_email", provider.OutcomeTimeout, 10*time.Second)
		m.ObserveProviderCall("check_email", provider.OutcomeTimeout, 10*time.Second)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("check_email", "ok")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("check_email", "timeout")))
	})

	t.Run("连续失败在成功后清零", func(t *testing.T) {
		m := NewMetricsWith(prometheus.NewRegistry())

		m.ObserveProviderCall("get_email_list", provider.OutcomeError, time.Millisecond)
		m.ObserveProviderCall("get_email_list", provider.OutcomeMalformed, time.Millisecond)
		assert.Equal(t, int64(2), m.ConsecutiveProviderFailures())

		m.ObserveProviderCall("get_email_list", provider.OutcomeOK, time.Millisecond)
		assert.Equal(t, int64(0), m.ConsecutiveProviderFailures())
	})

	t.Run("刷新结果与新邮件", func(t *testing.T) {
		m := NewMetricsWith(prometheus.NewRegistry())

		m.ObserveTick(string(service.TickApplied))
		m.ObserveTick(string(service.TickSkipped))
		m.ObserveTick(string(service.TickSkipped))
		m.ObserveNewMessages(3)
		m.ObserveNewMessages(0)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("applied")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("skipped")))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.NewMessagesTotal))
	})

	t.Run("活跃会话数", func(t *testing.T) {
		m := NewMetricsWith(prometheus.NewRegistry())
		m.SetActiveSessions(7)
		assert.Equal(t, 7, m.ActiveSessions())
		assert.Equal(t, 7.0, testutil.ToFloat64(m.SessionsActive))
	})

	t.Run("HTTP处理器输出指标", func(t *testing.T) {
		m := NewMetricsWith(prometheus.NewRegistry())
		m.RecordHTTPRequest("GET", "/api/email", "200", 5*time.Millisecond, 0, 120)
		m.RecordRateLimitBlock("http")

		rec := httptest.NewRecorder()
		m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.True(t, strings.Contains(body, `kieru_http_requests_total{endpoint="/api/email",method="GET",status_code="200"} 1`))
		assert.True(t, strings.Contains(body, `kieru_rate_limit_blocks_total{type="http"} 1`))
	})
}
