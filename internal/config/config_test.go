package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kieru/backend/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		cfg, err := Load()

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "https://api.guerrillamail.com/ajax.php", cfg.Provider.BaseURL)
		assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
		assert.Equal(t, "en", cfg.Provider.DefaultLang)
		assert.Equal(t, domain.DomainValues(), cfg.Mailbox.Domains)
		assert.Equal(t, "grr.la", cfg.DefaultDomain())
		assert.Equal(t, 5, cfg.Poll.DefaultInterval)
		assert.Equal(t, time.Second, cfg.Poll.Unit)
		assert.True(t, cfg.Poll.AutoRefresh)
		assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
		assert.Equal(t, 10000, cfg.Session.MaxSessions)
		assert.Empty(t, cfg.Session.Secret)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Empty(t, cfg.Redis.Address)
		assert.Equal(t, 120, cfg.RateLimit.Requests)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("KIERU_SERVER_PORT", "9090")
		t.Setenv("KIERU_PROVIDER_TIMEOUT", "3s")
		t.Setenv("KIERU_MAILBOX_DOMAINS", "SharkLasers.com, spam4.me")
		t.Setenv("KIERU_POLL_DEFAULT_INTERVAL", "15")
		t.Setenv("KIERU_SESSION_SECRET", "custom-session-secret-32-chars-long-minimum")
		t.Setenv("KIERU_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("KIERU_REDIS_ADDRESS", "localhost:6379")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)
		assert.Equal(t, []string{"sharklasers.com", "spam4.me"}, cfg.Mailbox.Domains)
		assert.Equal(t, "sharklasers.com", cfg.DefaultDomain())
		assert.Equal(t, 15, cfg.Poll.DefaultInterval)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	})

	t.Run("不支持的刷新间隔被拒绝", func(t *testing.T) {
		t.Setenv("KIERU_POLL_DEFAULT_INTERVAL", "7")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("未知域名被拒绝", func(t *testing.T) {
		t.Setenv("KIERU_MAILBOX_DOMAINS", "example.com")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("过短的会话密钥被拒绝", func(t *testing.T) {
		t.Setenv("KIERU_SESSION_SECRET", "short")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("非法超时被拒绝", func(t *testing.T) {
		t.Setenv("KIERU_PROVIDER_TIMEOUT", "soon")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a , ,b,"))
	assert.Empty(t, parseList(""))
}
