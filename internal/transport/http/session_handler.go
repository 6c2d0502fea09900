package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kieru/backend/internal/middleware"
	"kieru/backend/internal/service"
)

// SessionHandler 标签页会话与邮箱同步控制器的 HTTP 接口
type SessionHandler struct {
	sessions     *service.SessionService
	handleTTL    time.Duration
	secureCookie bool
	logger       *zap.Logger
}

// NewSessionHandler 创建会话处理器；handleTTL 为 Cookie 有效期
func NewSessionHandler(sessions *service.SessionService, handleTTL time.Duration, secureCookie bool, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions:     sessions,
		handleTTL:    handleTTL,
		secureCookie: secureCookie,
		logger:       logger.Named("session_api"),
	}
}

type createSessionResponse struct {
	Token   string              `json:"token"`
	Session service.SessionView `json:"session"`
}

type initRequest struct {
	ForceNew bool   `json:"forceNew"`
	Domain   string `json:"domain"`
	Lang     string `json:"lang"`
}

type customAddressRequest struct {
	Username string `json:"username"`
	Domain   string `json:"domain"`
	Lang     string `json:"lang"`
}

type deleteMessagesRequest struct {
	IDs []string `json:"ids"`
}

type autoRefreshRequest struct {
	Enabled  *bool `json:"enabled"`
	Interval *int  `json:"interval"`
}

type refreshResponse struct {
	Outcome service.TickOutcome `json:"outcome"`
	Mailbox service.Snapshot    `json:"mailbox"`
}

type deleteMessagesResponse struct {
	DeletedIDs []string         `json:"deletedIds"`
	Mailbox    service.Snapshot `json:"mailbox"`
}

// current 取出会话中间件绑定的会话
func (h *SessionHandler) current(c *gin.Context) (*service.Session, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		abortController(c, service.ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}

// bindOptional 允许空请求体
func bindOptional(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return false
	}
	return true
}

// CreateSession godoc
// @Summary 创建标签页会话
// @Description 新建会话并下发会话句柄（响应头 X-Session-Token 与 Cookie）
// @Tags Session
// @Produce json
// @Success 201 {object} Response{data=createSessionResponse}
// @Failure 503 {object} Response
// @Router /v1/session [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	sess, token, err := h.sessions.Create()
	if err != nil {
		h.logger.Warn("failed to create session", zap.Error(err))
		abortController(c, err)
		return
	}
	middleware.SetHandle(c, token, h.handleTTL, h.secureCookie)
	Created(c, createSessionResponse{Token: token, Session: sess.View()})
}

// GetSession godoc
// @Summary 获取会话状态
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Success 200 {object} Response{data=service.SessionView}
// @Failure 401 {object} Response
// @Router /v1/session [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	Success(c, sess.View())
}

// DeleteSession godoc
// @Summary 关闭会话
// @Description 停止自动刷新并回收会话，提供方地址不受影响
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Success 200 {object} Response
// @Router /v1/session [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	h.sessions.Remove(sess.ID)
	middleware.ClearHandle(c, h.secureCookie)
	c.Header(service.HandleHeader, "")
	Success(c, gin.H{"closed": true})
}

// Initialize godoc
// @Summary 初始化邮箱
// @Description 获取或新建地址并加载邮件列表；forceNew 时总是生成随机新地址
// @Tags Session
// @Accept json
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Param request body initRequest false "初始化参数"
// @Success 200 {object} Response{data=service.Snapshot}
// @Failure 400 {object} Response
// @Failure 502 {object} Response
// @Router /v1/session/init [post]
func (h *SessionHandler) Initialize(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	var req initRequest
	if !bindOptional(c, &req) {
		return
	}

	err := sess.Mailbox.Initialize(c.Request.Context(), service.InitOptions{
		ForceNew: req.ForceNew,
		Domain:   req.Domain,
		Lang:     req.Lang,
	})
	if err != nil {
		abortController(c, err)
		return
	}
	Success(c, sess.Mailbox.Snapshot())
}

// Refresh godoc
// @Summary 手动刷新
// @Description 立即执行一次增量刷新；已有刷新在进行时返回 skipped
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Success 200 {object} Response{data=refreshResponse}
// @Failure 502 {object} Response
// @Router /v1/session/refresh [post]
func (h *SessionHandler) Refresh(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	outcome, err := sess.Mailbox.Tick(c.Request.Context())
	if err != nil {
		abortController(c, err)
		return
	}
	Success(c, refreshResponse{Outcome: outcome, Mailbox: sess.Mailbox.Snapshot()})
}

// SetAddress godoc
// @Summary 设置自定义地址
// @Tags Session
// @Accept json
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Param request body customAddressRequest true "自定义前缀与域名"
// @Success 200 {object} Response{data=service.Snapshot}
// @Failure 400 {object} Response
// @Failure 502 {object} Response
// @Router /v1/session/address [post]
func (h *SessionHandler) SetAddress(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	var req customAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if err := sess.Mailbox.SetCustomAddress(c.Request.Context(), req.Username, req.Domain, req.Lang); err != nil {
		abortController(c, err)
		return
	}
	Success(c, sess.Mailbox.Snapshot())
}

// Forget godoc
// @Summary 忘记当前地址
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Success 200 {object} Response{data=service.Snapshot}
// @Failure 409 {object} Response
// @Router /v1/session/forget [post]
func (h *SessionHandler) Forget(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	if err := sess.Mailbox.Forget(c.Request.Context()); err != nil {
		abortController(c, err)
		return
	}
	Success(c, sess.Mailbox.Snapshot())
}

// GetMessage godoc
// @Summary 打开邮件
// @Description 获取邮件详情并标记为已读
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Param id path string true "邮件 ID"
// @Success 200 {object} Response{data=domain.MessageDetail}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/session/messages/{id} [get]
func (h *SessionHandler) GetMessage(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	detail, err := sess.Mailbox.SelectMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortController(c, err)
		return
	}
	Success(c, detail)
}

// CloseMessage godoc
// @Summary 关闭已打开的邮件
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Success 200 {object} Response{data=service.Snapshot}
// @Router /v1/session/messages/selected [delete]
func (h *SessionHandler) CloseMessage(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	sess.Mailbox.CloseMessage()
	Success(c, sess.Mailbox.Snapshot())
}

// DeleteMessages godoc
// @Summary 删除邮件
// @Description 只有提供方确认删除的邮件会从列表移除
// @Tags Session
// @Accept json
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Param request body deleteMessagesRequest true "邮件 ID 列表"
// @Success 200 {object} Response{data=deleteMessagesResponse}
// @Failure 400 {object} Response
// @Router /v1/session/messages/delete [post]
func (h *SessionHandler) DeleteMessages(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	var req deleteMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	deleted, err := sess.Mailbox.DeleteMessages(c.Request.Context(), req.IDs)
	if err != nil {
		abortController(c, err)
		return
	}
	Success(c, deleteMessagesResponse{DeletedIDs: deleted, Mailbox: sess.Mailbox.Snapshot()})
}

// UpdateAutoRefresh godoc
// @Summary 修改自动刷新设置
// @Tags Session
// @Accept json
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Param request body autoRefreshRequest true "开关与间隔"
// @Success 200 {object} Response{data=service.SessionView}
// @Failure 400 {object} Response
// @Router /v1/session/auto-refresh [put]
func (h *SessionHandler) UpdateAutoRefresh(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	var req autoRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	err := sess.UpdateAutoRefresh(service.AutoRefreshInput{Enabled: req.Enabled, Interval: req.Interval})
	if err != nil {
		abortController(c, err)
		return
	}
	Success(c, sess.View())
}

// DismissError godoc
// @Summary 关闭错误横幅
// @Tags Session
// @Produce json
// @Param X-Session-Token header string false "会话句柄"
// @Success 200 {object} Response{data=service.Snapshot}
// @Router /v1/session/error [delete]
func (h *SessionHandler) DismissError(c *gin.Context) {
	sess, ok := h.current(c)
	if !ok {
		return
	}
	sess.Mailbox.DismissError()
	Success(c, sess.Mailbox.Snapshot())
}
