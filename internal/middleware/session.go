package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kieru/backend/internal/service"
)

const sessionContextKey = "session"

// SessionStore 标签页会话的查找与签发，由 *service.SessionService 实现
type SessionStore interface {
	Create() (*service.Session, string, error)
	Resolve(token string) (*service.Session, error)
	Renew(sess *service.Session) (string, time.Time, error)
}

// SessionOptions 会话中间件参数
type SessionOptions struct {
	AutoCreate   bool // 句柄缺失或失效时新建会话
	SecureCookie bool
	Logger       *zap.Logger
}

// Session 解析请求携带的会话句柄，并在响应中下发续期后的句柄
func Session(store SessionStore, opts SessionOptions) gin.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		token := extractHandle(c)

		sess, err := store.Resolve(token)
		if err != nil {
			if !opts.AutoCreate {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "session required",
				})
				return
			}

			var created string
			sess, created, err = store.Create()
			if err != nil {
				if errors.Is(err, service.ErrTooManySessions) {
					c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
						"success": false,
						"error":   "too many active sessions, try again later",
					})
					return
				}
				log.Error("failed to create session", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   "failed to create session",
				})
				return
			}
			SetHandle(c, created, 0, opts.SecureCookie)
		} else if renewed, expires, err := store.Renew(sess); err == nil {
			SetHandle(c, renewed, time.Until(expires), opts.SecureCookie)
		} else {
			log.Warn("failed to renew session handle", zap.String("session_id", sess.ID), zap.Error(err))
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// CurrentSession 取出当前请求绑定的会话
func CurrentSession(c *gin.Context) (*service.Session, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*service.Session)
	return sess, ok
}

// SetHandle 通过响应头与 Cookie 下发会话句柄；ttl 为 0 时使用会话 Cookie
func SetHandle(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.Header(service.HandleHeader, token)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(service.HandleCookie, token, int(ttl/time.Second), "/", "", secure, true)
}

// ClearHandle 使浏览器丢弃会话 Cookie
func ClearHandle(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(service.HandleCookie, "", -1, "/", "", secure, true)
}

// extractHandle 依次从请求头与 Cookie 读取句柄
func extractHandle(c *gin.Context) string {
	if token := c.GetHeader(service.HandleHeader); token != "" {
		return token
	}
	if token, err := c.Cookie(service.HandleCookie); err == nil {
		return token
	}
	return ""
}
