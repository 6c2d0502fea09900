package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kieru/backend/internal/cache"
	"kieru/backend/internal/domain"
	"kieru/backend/internal/logger"
	"kieru/backend/internal/provider"
)

// 会话句柄的传递方式
const (
	HandleHeader = "X-Session-Token"
	HandleCookie = "kieru_session"
)

var (
	// ErrSessionNotFound 句柄无效或会话已被回收
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions 会话数已达上限
	ErrTooManySessions = errors.New("too many active sessions")
)

// HandleIssuer 会话句柄的签发与校验，由 *jwt.Manager 实现
type HandleIssuer interface {
	Issue(sessionID string) (string, time.Time, error)
	Parse(token string) (string, error)
}

// Session 一个浏览器标签页对应的会话：提供方会话、同步控制器与刷新调度器
type Session struct {
	ID        string
	CreatedAt time.Time
	Gateway   *provider.Gateway
	Mailbox   *MailboxService
	Scheduler *RefreshScheduler

	cancel context.CancelFunc
}

// SessionView 会话对外展示的状态
type SessionView struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	AutoRefresh     bool      `json:"autoRefresh"`
	RefreshInterval int       `json:"refreshInterval"`
	Mailbox         Snapshot  `json:"mailbox"`
}

// View 汇总会话状态
func (s *Session) View() SessionView {
	interval, enabled := s.Scheduler.Settings()
	return SessionView{
		ID:              s.ID,
		CreatedAt:       s.CreatedAt,
		AutoRefresh:     enabled,
		RefreshInterval: interval,
		Mailbox:         s.Mailbox.Snapshot(),
	}
}

// AutoRefreshInput 自动刷新设置，nil 字段保持不变
type AutoRefreshInput struct {
	Enabled  *bool
	Interval *int
}

// UpdateAutoRefresh 修改自动刷新设置并推送提示
func (s *Session) UpdateAutoRefresh(input AutoRefreshInput) error {
	if input.Interval != nil {
		prev, _ := s.Scheduler.Settings()
		if err := s.Scheduler.SetInterval(*input.Interval); err != nil {
			return err
		}
		if prev != *input.Interval {
			s.Mailbox.Notify(fmt.Sprintf("Refresh interval set to %d seconds", *input.Interval))
		}
	}
	if input.Enabled != nil {
		_, prev := s.Scheduler.Settings()
		s.Scheduler.SetEnabled(*input.Enabled)
		if prev != *input.Enabled {
			if *input.Enabled {
				s.Mailbox.Notify("Auto-refresh enabled")
			} else {
				s.Mailbox.Notify("Auto-refresh disabled")
			}
		}
	}
	return nil
}

func (s *Session) close() {
	s.Scheduler.Stop()
	s.cancel()
}

// SessionOptions SessionService 的依赖与参数
type SessionOptions struct {
	Client          *provider.Client
	Handles         HandleIssuer
	Dispatcher      Dispatcher
	Notifier        Notifier
	Observer        Observer
	DefaultDomain   string
	DefaultLang     string
	Domains         []string
	DefaultInterval int
	Unit            time.Duration
	AutoRefresh     bool
	IdleTTL         time.Duration
	MaxSessions     int
	Logger          *zap.Logger
	// OnCountChange 会话数变化时回调（用于指标）
	OnCountChange func(n int)
}

// SessionService 进程内的标签页会话注册表。
//
// 会话空闲超过 IdleTTL 后被回收，回收时停止调度器并取消其上下文。
type SessionService struct {
	opts     SessionOptions
	sessions *cache.LocalCache[*Session]
	logger   *zap.Logger
	baseCtx  context.Context
	stop     context.CancelFunc
}

// NewSessionService 创建会话注册表
func NewSessionService(opts SessionOptions) *SessionService {
	opts.Logger = logger.OrNop(opts.Logger)
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.DefaultDomain == "" {
		opts.DefaultDomain = domain.DefaultDomain()
	}
	if opts.DefaultInterval == 0 {
		opts.DefaultInterval = domain.DefaultRefreshInterval
	}

	baseCtx, stop := context.WithCancel(context.Background())
	svc := &SessionService{
		opts:     opts,
		sessions: cache.NewLocalCache[*Session](opts.MaxSessions, opts.IdleTTL),
		logger:   opts.Logger.Named("session"),
		baseCtx:  baseCtx,
		stop:     stop,
	}
	svc.sessions.OnEvict(svc.onEvict)
	return svc
}

// Create 新建一个标签页会话，返回会话与其句柄
func (s *SessionService) Create() (*Session, string, error) {
	id := uuid.NewString()
	log := logger.WithSession(s.opts.Logger, id)

	ctx, cancel := context.WithCancel(s.baseCtx)
	gateway := provider.NewGateway(s.opts.Client, provider.NewSession(s.opts.DefaultDomain), s.opts.DefaultLang)
	mailbox := NewMailboxService(gateway, MailboxOptions{
		SessionID:     id,
		DefaultDomain: s.opts.DefaultDomain,
		DefaultLang:   s.opts.DefaultLang,
		Domains:       s.opts.Domains,
		Notifier:      s.opts.Notifier,
		Observer:      s.opts.Observer,
		Logger:        s.opts.Logger,
	})
	scheduler, err := NewRefreshScheduler(mailbox, SchedulerOptions{
		Interval:   s.opts.DefaultInterval,
		Unit:       s.opts.Unit,
		Enabled:    s.opts.AutoRefresh,
		Dispatcher: s.opts.Dispatcher,
		Observer:   s.opts.Observer,
		Logger:     log,
	})
	if err != nil {
		cancel()
		return nil, "", err
	}

	sess := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Gateway:   gateway,
		Mailbox:   mailbox,
		Scheduler: scheduler,
		cancel:    cancel,
	}

	if err := s.sessions.Set(id, sess, 0); err != nil {
		cancel()
		if errors.Is(err, cache.ErrFull) {
			return nil, "", ErrTooManySessions
		}
		return nil, "", err
	}

	token, _, err := s.opts.Handles.Issue(id)
	if err != nil {
		s.sessions.Delete(id)
		return nil, "", err
	}

	scheduler.Start(ctx)
	s.countChanged()
	s.logger.Info("session created", zap.String("session_id", id))
	return sess, token, nil
}

// Resolve 按句柄查找会话并顺延其空闲超时
func (s *SessionService) Resolve(token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	id, err := s.opts.Handles.Parse(token)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return s.Get(id)
}

// Get 按会话 ID 查找会话并顺延其空闲超时
func (s *SessionService) Get(id string) (*Session, error) {
	sess, ok := s.sessions.Touch(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Renew 为会话重新签发句柄
func (s *SessionService) Renew(sess *Session) (string, time.Time, error) {
	return s.opts.Handles.Issue(sess.ID)
}

// Remove 立即回收会话
func (s *SessionService) Remove(id string) {
	s.sessions.Delete(id)
}

// Count 当前会话数
func (s *SessionService) Count() int {
	return s.sessions.Len()
}

// Capacity 会话上限，0 表示不限
func (s *SessionService) Capacity() int {
	return s.opts.MaxSessions
}

// Run 定期回收空闲会话，直到 ctx 结束
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	s.sessions.Run(ctx, interval)
}

// Close 回收全部会话
func (s *SessionService) Close() {
	s.sessions.Clear()
	s.stop()
}

func (s *SessionService) onEvict(id string, sess *Session, reason cache.EvictReason) {
	sess.close()
	s.countChanged()
	s.logger.Info("session closed", zap.String("session_id", id), zap.Stringer("reason", reason))
}

func (s *SessionService) countChanged() {
	if s.opts.OnCountChange != nil {
		s.opts.OnCountChange(s.sessions.Len())
	}
}
