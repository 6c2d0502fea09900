package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kieru/backend/internal/monitoring"
	"kieru/backend/internal/service"
	"kieru/backend/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	sessions  map[string]*service.Session
	created   int
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*service.Session{}}
}

func (f *fakeStore) Create() (*service.Session, string, error) {
	if f.createErr != nil {
		return nil, "", f.createErr
	}
	f.created++
	sess := &service.Session{ID: "new"}
	f.sessions["handle-new"] = sess
	return sess, "handle-new", nil
}

func (f *fakeStore) Resolve(token string) (*service.Session, error) {
	if sess, ok := f.sessions[token]; ok {
		return sess, nil
	}
	return nil, service.ErrSessionNotFound
}

func (f *fakeStore) Renew(sess *service.Session) (string, time.Time, error) {
	return "renewed-" + sess.ID, time.Now().Add(time.Hour), nil
}

func sessionRouter(store SessionStore, autoCreate bool) *gin.Engine {
	r := gin.New()
	r.GET("/", Session(store, SessionOptions{AutoCreate: autoCreate}), func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.String(http.StatusOK, "none")
			return
		}
		c.String(http.StatusOK, sess.ID)
	})
	return r
}

func TestSession(t *testing.T) {
	t.Run("请求头句柄有效时续期", func(t *testing.T) {
		store := newFakeStore()
		store.sessions["h1"] = &service.Session{ID: "s1"}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(service.HandleHeader, "h1")
		rec := httptest.NewRecorder()
		sessionRouter(store, true).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "s1", rec.Body.String())
		assert.Equal(t, "renewed-s1", rec.Header().Get(service.HandleHeader))
		assert.Contains(t, rec.Header().Get("Set-Cookie"), service.HandleCookie+"=renewed-s1")
		assert.Equal(t, 0, store.created)
	})

	t.Run("Cookie句柄同样有效", func(t *testing.T) {
		store := newFakeStore()
		store.sessions["h2"] = &service.Session{ID: "s2"}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: service.HandleCookie, Value: "h2"})
		rec := httptest.NewRecorder()
		sessionRouter(store, false).ServeHTTP(rec, req)

		assert.Equal(t, "s2", rec.Body.String())
	})

	t.Run("缺少句柄时自动创建", func(t *testing.T) {
		store := newFakeStore()
		rec := httptest.NewRecorder()
		sessionRouter(store, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "new", rec.Body.String())
		assert.Equal(t, "handle-new", rec.Header().Get(service.HandleHeader))
		assert.Equal(t, 1, store.created)
	})

	t.Run("不自动创建时返回401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sessionRouter(newFakeStore(), false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":false`)
	})

	t.Run("会话数已满时返回503", func(t *testing.T) {
		store := newFakeStore()
		store.createErr = service.ErrTooManySessions
		rec := httptest.NewRecorder()
		sessionRouter(store, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

type fakeLimiter struct {
	decision storage.Decision
	err      error
}

func (f fakeLimiter) Allow(context.Context, string) (storage.Decision, error) {
	return f.decision, f.err
}

func limitedRouter(limiter storage.RateLimiter, recorder BlockRecorder) *gin.Engine {
	r := gin.New()
	r.GET("/", RateLimitByIP(limiter, recorder, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitByIP(t *testing.T) {
	t.Run("放行并设置剩余额度", func(t *testing.T) {
		rec := httptest.NewRecorder()
		limitedRouter(fakeLimiter{decision: storage.Decision{Allowed: true, Limit: 10, Remaining: 9}}, nil).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("超限返回429与Retry-After", func(t *testing.T) {
		metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
		rec := httptest.NewRecorder()
		limitedRouter(fakeLimiter{decision: storage.Decision{Limit: 10, RetryAfter: 1500 * time.Millisecond}}, metrics).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitBlocks.WithLabelValues("http")))
	})

	t.Run("限流后端出错时放行", func(t *testing.T) {
		rec := httptest.NewRecorder()
		limitedRouter(fakeLimiter{err: errors.New("redis down")}, nil).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMonitoringMiddleware(t *testing.T) {
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	mm := NewMonitoringMiddleware(metrics, nil)

	r := gin.New()
	r.Use(mm.PanicRecovery(), mm.HTTPMetrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/ok", "200")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PanicsTotal))
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.POST("/", BodySizeLimit(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateContentType(t *testing.T) {
	r := gin.New()
	r.Use(ValidateContentType("application/json"))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(body, contentType string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(`{"action":"create_new"}`, "application/json; charset=utf-8"))
	assert.Equal(t, http.StatusUnsupportedMediaType, send(`action=create_new`, "application/x-www-form-urlencoded"))
	assert.Equal(t, http.StatusOK, send("", ""))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/api/email", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/swagger/index.html", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/email", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}
