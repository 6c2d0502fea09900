package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"kieru/backend/internal/config"
	"kieru/backend/internal/health"
	"kieru/backend/internal/middleware"
	"kieru/backend/internal/monitoring"
	"kieru/backend/internal/service"
	"kieru/backend/internal/storage"
	"kieru/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config      *config.Config
	Sessions    *service.SessionService
	Hub         *websocket.Hub
	Metrics     *monitoring.Metrics // 必填
	Health      *health.HealthChecker
	RateLimiter storage.RateLimiter // 为 nil 时不限流
	Logger      *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, logger)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	router.Use(monitor.HTTPMetrics())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", service.HandleHeader},
		ExposeHeaders: []string{
			"Content-Length",
			service.HandleHeader,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	secureCookie := deps.Config.Session.SecureCookie
	emailHandler := NewEmailHandler(deps.Config.Mailbox.Domains, deps.Config.Provider.DefaultLang, logger)
	sessionHandler := NewSessionHandler(deps.Sessions, deps.Config.Session.IdleTTL, secureCookie, logger)
	publicHandler := NewPublicHandler(deps.Config)

	attachSession := middleware.Session(deps.Sessions, middleware.SessionOptions{
		AutoCreate:   true,
		SecureCookie: secureCookie,
		Logger:       logger,
	})
	requireSession := middleware.Session(deps.Sessions, middleware.SessionOptions{
		SecureCookie: secureCookie,
		Logger:       logger,
	})
	jsonOnly := middleware.ValidateContentType("application/json")
	smallBody := middleware.BodySizeLimit(middleware.SmallBodyLimit)

	var limited []gin.HandlerFunc
	if deps.RateLimiter != nil {
		limited = append(limited, middleware.RateLimitByIP(deps.RateLimiter, deps.Metrics, logger))
	}

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": deps.Sessions.Count(),
		})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 同源转发接口
	api := router.Group("/api", limited...)
	{
		api.GET("/email", attachSession, emailHandler.Get)
		api.POST("/email", smallBody, jsonOnly, attachSession, emailHandler.Post)
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Public Routes（无需会话的公开API） ==========
		publicRoutes := v1.Group("/public")
		{
			publicRoutes.GET("/domains", publicHandler.GetAvailableDomains)
			publicRoutes.GET("/config", publicHandler.GetSystemConfig)
		}

		// ========== Session Routes ==========
		sessionRoutes := v1.Group("/session", limited...)
		{
			// 创建接口不要求已有会话，必须先于 Use 注册
			sessionRoutes.POST("", sessionHandler.CreateSession)

			sessionRoutes.Use(smallBody, jsonOnly, requireSession)
			sessionRoutes.GET("", sessionHandler.GetSession)
			sessionRoutes.DELETE("", sessionHandler.DeleteSession)
			sessionRoutes.POST("/init", sessionHandler.Initialize)
			sessionRoutes.POST("/refresh", sessionHandler.Refresh)
			sessionRoutes.POST("/address", sessionHandler.SetAddress)
			sessionRoutes.POST("/forget", sessionHandler.Forget)
			sessionRoutes.GET("/messages/:id", sessionHandler.GetMessage)
			sessionRoutes.DELETE("/messages/selected", sessionHandler.CloseMessage)
			sessionRoutes.POST("/messages/delete", sessionHandler.DeleteMessages)
			sessionRoutes.PUT("/auto-refresh", sessionHandler.UpdateAutoRefresh)
			sessionRoutes.DELETE("/error", sessionHandler.DismissError)
		}

		// ========== WebSocket ==========
		if deps.Hub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.Hub))
		}
	}

	return router
}
