package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kieru/backend/internal/domain"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// ProviderConfig 定义一次性邮箱提供方（上游 HTTP API）的访问参数
type ProviderConfig struct {
	BaseURL     string        // 提供方接口地址
	Timeout     time.Duration // 单次请求超时，默认 10 秒
	RateLimit   float64       // 全局每秒请求上限，0 表示不限
	Burst       int           // 令牌桶容量
	DefaultLang string        // 默认语言代码
	UserAgent   string        // 发往提供方的 User-Agent
}

// MailboxConfig 定义可选的邮件域名
type MailboxConfig struct {
	Domains []string // 提供方域名列表的子集，第一项为默认域名
}

// PollConfig 定义自动刷新与轮询调度参数
type PollConfig struct {
	DefaultInterval int           // 默认刷新间隔（单位数），必须在允许集合内
	Unit            time.Duration // 间隔单位，默认 1 秒
	AutoRefresh     bool          // 新会话是否默认开启自动刷新
	Workers         int           // 轮询协程池大小
	QueueSize       int           // 轮询任务队列长度
}

// SessionConfig 定义标签页会话的生命周期
type SessionConfig struct {
	IdleTTL     time.Duration // 会话空闲多久后被回收
	MaxSessions int           // 同时存在的会话上限
	Secret      string        // 会话句柄签名密钥，留空时进程启动时随机生成
	Issuer      string        // 会话句柄签发者

	// SecureCookie 会话 Cookie 是否只经 HTTPS 发送
	SecureCookie bool
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// RedisConfig 定义 Redis 配置；Address 为空时限流退化为进程内实现
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RateLimitConfig 定义入站请求的按 IP 限流
type RateLimitConfig struct {
	Requests int           // 窗口内允许的请求数，0 表示关闭
	Window   time.Duration // 统计窗口
}

// AlertConfig 定义告警投递
type AlertConfig struct {
	WebhookURL string // 告警 Webhook 地址，可选
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Mailbox   MailboxConfig
	Poll      PollConfig
	Session   SessionConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Alert     AlertConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: KIERU_，例如 KIERU_PROVIDER_TIMEOUT、KIERU_POLL_DEFAULT_INTERVAL
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("kieru")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

// setDefaults 注册所有配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.base_url", "https://api.guerrillamail.com/ajax.php")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.rate_limit", 20)
	v.SetDefault("provider.burst", 40)
	v.SetDefault("provider.default_lang", domain.DefaultLang)
	v.SetDefault("provider.user_agent", "kieru/1.0")
	v.SetDefault("mailbox.domains", strings.Join(domain.DomainValues(), ","))
	v.SetDefault("poll.default_interval", domain.DefaultRefreshInterval)
	v.SetDefault("poll.unit", "1s")
	v.SetDefault("poll.auto_refresh", true)
	v.SetDefault("poll.workers", 32)
	v.SetDefault("poll.queue_size", 1024)
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "kieru")
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.requests", 120)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("alert.webhook_url", "")
}

// fromViper 读取并校验配置
func fromViper(v *viper.Viper) (*Config, error) {
	baseURL := v.GetString("provider.base_url")
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid provider.base_url: %q", baseURL)
	}

	timeout, err := time.ParseDuration(v.GetString("provider.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.timeout: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("provider.timeout must be positive")
	}

	domains, err := parseDomains(v.GetString("mailbox.domains"))
	if err != nil {
		return nil, err
	}

	interval := v.GetInt("poll.default_interval")
	if !domain.IsValidInterval(interval) {
		return nil, fmt.Errorf("poll.default_interval must be one of %v", domain.RefreshIntervals)
	}

	unit, err := time.ParseDuration(v.GetString("poll.unit"))
	if err != nil || unit <= 0 {
		return nil, fmt.Errorf("invalid poll.unit: %q", v.GetString("poll.unit"))
	}

	idleTTL, err := time.ParseDuration(v.GetString("session.idle_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid session.idle_ttl: %w", err)
	}

	window, err := time.ParseDuration(v.GetString("ratelimit.window"))
	if err != nil {
		window = time.Minute
	}

	secret := v.GetString("session.secret")
	// 显式配置的密钥必须至少 32 字符
	if secret != "" && len(secret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: session secret must be at least 32 characters long")
	}

	workers := v.GetInt("poll.workers")
	if workers <= 0 {
		workers = 32
	}
	queueSize := v.GetInt("poll.queue_size")
	if queueSize <= 0 {
		queueSize = 1024
	}
	maxSessions := v.GetInt("session.max_sessions")
	if maxSessions <= 0 {
		maxSessions = 10000
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Provider: ProviderConfig{
			BaseURL:     baseURL,
			Timeout:     timeout,
			RateLimit:   v.GetFloat64("provider.rate_limit"),
			Burst:       v.GetInt("provider.burst"),
			DefaultLang: v.GetString("provider.default_lang"),
			UserAgent:   v.GetString("provider.user_agent"),
		},
		Mailbox: MailboxConfig{
			Domains: domains,
		},
		Poll: PollConfig{
			DefaultInterval: interval,
			Unit:            unit,
			AutoRefresh:     v.GetBool("poll.auto_refresh"),
			Workers:         workers,
			QueueSize:       queueSize,
		},
		Session: SessionConfig{
			IdleTTL:      idleTTL,
			MaxSessions:  maxSessions,
			Secret:       secret,
			Issuer:       v.GetString("session.issuer"),
			SecureCookie: v.GetBool("session.secure_cookie"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("ratelimit.requests"),
			Window:   window,
		},
		Alert: AlertConfig{
			WebhookURL: v.GetString("alert.webhook_url"),
		},
	}

	if cfg.Provider.DefaultLang == "" {
		cfg.Provider.DefaultLang = domain.DefaultLang
	}

	return cfg, nil
}

// DefaultDomain 返回配置中的默认域名
func (c *Config) DefaultDomain() string {
	return c.Mailbox.Domains[0]
}

// parseDomains 解析域名列表，只接受提供方支持的域名
func parseDomains(value string) ([]string, error) {
	items := parseList(value)
	if len(items) == 0 {
		return nil, fmt.Errorf("mailbox.domains must not be empty")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		d, ok := domain.FindDomain(item)
		if !ok {
			return nil, fmt.Errorf("mailbox.domains: %q is not a provider domain", item)
		}
		out = append(out, d.Value)
	}
	return out, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
