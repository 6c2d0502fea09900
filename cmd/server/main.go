package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "kieru/backend/internal/auth/jwt"
	"kieru/backend/internal/config"
	"kieru/backend/internal/health"
	"kieru/backend/internal/logger"
	"kieru/backend/internal/monitoring"
	"kieru/backend/internal/pool"
	"kieru/backend/internal/provider"
	"kieru/backend/internal/service"
	"kieru/backend/internal/storage"
	"kieru/backend/internal/storage/memory"
	redisstore "kieru/backend/internal/storage/redis"
	httptransport "kieru/backend/internal/transport/http"
	"kieru/backend/internal/websocket"
)

const version = "1.0.0"

// main 启动一次性邮箱后端：同源转发接口、会话接口与 WebSocket 推送。
func main() {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.DefaultRotation(cfg.Log.Level, cfg.Log.Development, cfg.Log.File))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting kieru server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("provider", cfg.Provider.BaseURL),
		zap.Strings("domains", cfg.Mailbox.Domains),
	)

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 会话句柄签名密钥
	secret := cfg.Session.Secret
	if secret == "" {
		secret, err = jwtpkg.RandomSecret()
		if err != nil {
			panic(fmt.Sprintf("failed to generate session secret: %v", err))
		}
		log.Warn("session secret not configured, using a random per-process secret")
	}
	handles := jwtpkg.NewManager(secret, cfg.Session.Issuer, cfg.Session.IdleTTL)

	// 提供方客户端，所有标签页共享
	client := provider.NewClient(provider.Options{
		BaseURL:   cfg.Provider.BaseURL,
		Timeout:   cfg.Provider.Timeout,
		RateLimit: cfg.Provider.RateLimit,
		Burst:     cfg.Provider.Burst,
		UserAgent: cfg.Provider.UserAgent,
		Recorder:  metrics,
		Logger:    log,
	})

	// 轮询协程池
	workers := pool.NewWorkerPool(cfg.Poll.Workers, cfg.Poll.QueueSize, log)
	workers.OnPanic(func(any) { metrics.RecordPanic() })

	// 会话注册表与 WebSocket Hub 互相引用：Hub 通过 sessions 鉴权，sessions 通过 Hub 推送
	var sessions *service.SessionService
	wsHub := websocket.NewHub(websocket.HubOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Authenticate: func(token string) (string, error) {
			sess, err := sessions.Resolve(token)
			if err != nil {
				return "", err
			}
			return sess.ID, nil
		},
		Snapshot: func(sessionID string) (service.Snapshot, bool) {
			sess, err := sessions.Get(sessionID)
			if err != nil {
				return service.Snapshot{}, false
			}
			return sess.Mailbox.Snapshot(), true
		},
		Logger:        log,
		OnConnections: metrics.SetWebsocketConnections,
	})

	sessions = service.NewSessionService(service.SessionOptions{
		Client:          client,
		Handles:         handles,
		Dispatcher:      workers,
		Notifier:        wsHub,
		Observer:        metrics,
		DefaultDomain:   cfg.DefaultDomain(),
		DefaultLang:     cfg.Provider.DefaultLang,
		Domains:         cfg.Mailbox.Domains,
		DefaultInterval: cfg.Poll.DefaultInterval,
		Unit:            cfg.Poll.Unit,
		AutoRefresh:     cfg.Poll.AutoRefresh,
		IdleTTL:         cfg.Session.IdleTTL,
		MaxSessions:     cfg.Session.MaxSessions,
		Logger:          log,
		OnCountChange:   metrics.SetActiveSessions,
	})

	// 入站限流：配置了 Redis 时跨实例共享计数，否则进程内令牌桶
	var (
		limiter     storage.RateLimiter
		memLimiter  *memory.RateLimiter
		redisClient *redisstore.Client
	)
	if cfg.RateLimit.Requests > 0 {
		if cfg.Redis.Address != "" {
			redisClient, err = redisstore.New(&cfg.Redis, log)
			if err != nil {
				log.Warn("redis unavailable, falling back to in-memory rate limiting", zap.Error(err))
			} else {
				limiter = redisstore.NewRateLimiter(redisClient, "kieru:ratelimit", cfg.RateLimit.Requests, cfg.RateLimit.Window)
				log.Info("using redis rate limiting", zap.String("address", cfg.Redis.Address))
			}
		}
		if limiter == nil {
			memLimiter = memory.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
			limiter = memLimiter
		}
	}

	// 初始化健康检查
	healthOpts := health.Options{ProviderURL: cfg.Provider.BaseURL, Logger: log}
	if redisClient != nil {
		healthOpts.Redis = redisClient
	}
	healthChecker := health.NewHealthChecker(healthOpts)

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	if cfg.Alert.WebhookURL != "" {
		alertManager.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.Alert.WebhookURL, log))
	}
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0)) // 512MB
	alertManager.AddRule(monitoring.ProviderFailureRule(metrics, 5))
	alertManager.AddRule(monitoring.SessionCapacityRule(sessions.Count, sessions.Capacity(), 0.9))

	log.Info("monitoring system initialized")

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:      cfg,
		Sessions:    sessions,
		Hub:         wsHub,
		Metrics:     metrics,
		Health:      healthChecker,
		RateLimiter: limiter,
		Logger:      log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 空闲会话回收 goroutine
	group.Go(func() error {
		log.Info("starting idle session sweeper", zap.Duration("idle_ttl", cfg.Session.IdleTTL))
		sessions.Run(groupCtx, time.Minute)
		return nil
	})

	if memLimiter != nil {
		group.Go(func() error {
			memLimiter.Run(groupCtx)
			return nil
		})
	}

	// 监控服务 goroutine
	group.Go(func() error {
		metrics.CollectRuntime(groupCtx, started, 15*time.Second)
		return nil
	})
	group.Go(func() error {
		log.Info("starting alert monitoring")
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关闭 HTTP 服务器
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 停止所有调度器后再关闭协程池
		sessions.Close()
		workers.Stop()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
