package service

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kieru/backend/internal/auth/jwt"
	"kieru/backend/internal/provider"
)

func newTestSessions(t *testing.T, mutate func(*SessionOptions)) *SessionService {
	t.Helper()
	opts := SessionOptions{
		Client:      provider.NewClient(provider.Options{BaseURL: "http://127.0.0.1:1/ajax.php"}),
		Handles:     jwt.NewManager("0123456789abcdef0123456789abcdef", "kieru", time.Minute),
		Notifier:    &recordingNotifier{},
		Unit:        testUnit,
		AutoRefresh: true,
		IdleTTL:     time.Minute,
		MaxSessions: 10,
	}
	if mutate != nil {
		mutate(&opts)
	}
	svc := NewSessionService(opts)
	t.Cleanup(svc.Close)
	return svc
}

func TestSessionService_CreateAndResolve(t *testing.T) {
	svc := newTestSessions(t, nil)

	sess, token, err := svc.Create()
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, 1, svc.Count())

	t.Run("句柄解析到同一会话", func(t *testing.T) {
		got, err := svc.Resolve(token)
		require.NoError(t, err)
		assert.Same(t, sess, got)
	})

	t.Run("新会话的默认设置", func(t *testing.T) {
		view := sess.View()
		assert.Equal(t, sess.ID, view.ID)
		assert.True(t, view.AutoRefresh)
		assert.Equal(t, 5, view.RefreshInterval)
		assert.Equal(t, PhaseUninitialized, view.Mailbox.Phase)
		assert.Equal(t, "grr.la", view.Mailbox.Domain)
		assert.Equal(t, "Never", view.Mailbox.LastRefresh)
	})

	t.Run("无效句柄", func(t *testing.T) {
		_, err := svc.Resolve("garbage")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = svc.Resolve("")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("续签的句柄仍然有效", func(t *testing.T) {
		renewed, _, err := svc.Renew(sess)
		require.NoError(t, err)
		got, err := svc.Resolve(renewed)
		require.NoError(t, err)
		assert.Same(t, sess, got)
	})

	t.Run("移除后无法解析", func(t *testing.T) {
		svc.Remove(sess.ID)
		_, err := svc.Resolve(token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.Equal(t, 0, svc.Count())
	})
}

func TestSessionService_Capacity(t *testing.T) {
	var lastCount atomic.Int32
	svc := newTestSessions(t, func(o *SessionOptions) {
		o.MaxSessions = 2
		o.OnCountChange = func(n int) { lastCount.Store(int32(n)) }
	})

	_, _, err := svc.Create()
	require.NoError(t, err)
	_, _, err = svc.Create()
	require.NoError(t, err)
	assert.Equal(t, int32(2), lastCount.Load())

	_, _, err = svc.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, svc.Count())
}

func TestSessionService_IdleEviction(t *testing.T) {
	svc := newTestSessions(t, func(o *SessionOptions) {
		o.IdleTTL = 30 * time.Millisecond
	})

	sess, _, err := svc.Create()
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, err = svc.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 回收时调度器已停止，重新开启不会创建定时器
	sess.Scheduler.SetEnabled(false)
	sess.Scheduler.SetEnabled(true)
	assert.Equal(t, 1, sess.Scheduler.scheduleCount())
}

func TestSession_UpdateAutoRefresh(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestSessions(t, func(o *SessionOptions) { o.Notifier = notifier })
	sess, _, err := svc.Create()
	require.NoError(t, err)

	interval := 10
	disabled := false
	require.NoError(t, sess.UpdateAutoRefresh(AutoRefreshInput{Interval: &interval, Enabled: &disabled}))

	view := sess.View()
	assert.Equal(t, 10, view.RefreshInterval)
	assert.False(t, view.AutoRefresh)
	assert.Equal(t, []string{"Refresh interval set to 10 seconds", "Auto-refresh disabled"}, notifier.Notifications())

	t.Run("非法间隔", func(t *testing.T) {
		bad := 7
		err := sess.UpdateAutoRefresh(AutoRefreshInput{Interval: &bad})
		require.Error(t, err)
		assert.Equal(t, 10, sess.View().RefreshInterval)
	})

	t.Run("无变化时不提示", func(t *testing.T) {
		require.NoError(t, sess.UpdateAutoRefresh(AutoRefreshInput{Interval: &interval, Enabled: &disabled}))
		assert.Len(t, notifier.Notifications(), 2)
	})
}
