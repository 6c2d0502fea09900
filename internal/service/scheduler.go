package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"kieru/backend/internal/domain"
)

// Dispatcher 执行刷新任务的协程池，由 *pool.WorkerPool 实现
type Dispatcher interface {
	TrySubmit(task func()) bool
}

// Ticker 被调度的刷新目标，由 *MailboxService 实现
type Ticker interface {
	Tick(ctx context.Context) (TickOutcome, error)
}

// SchedulerOptions 调度器参数
type SchedulerOptions struct {
	Interval   int           // 间隔单位数，必须在 domain.RefreshIntervals 内
	Unit       time.Duration // 默认 1 秒
	Enabled    bool
	Dispatcher Dispatcher // 为空时直接起协程
	Observer   Observer
	Logger     *zap.Logger
}

// RefreshScheduler 单个标签页的自动刷新定时器。
//
// 任一时刻最多存在一个定时器；间隔或开关变化时取消旧定时器并恰好重建一次。
type RefreshScheduler struct {
	target     Ticker
	dispatcher Dispatcher
	observer   Observer
	logger     *zap.Logger
	unit       time.Duration

	mu        sync.Mutex
	ctx       context.Context
	interval  int
	enabled   bool
	started   bool
	stopped   bool
	cancel    chan struct{}
	schedules int
}

// NewRefreshScheduler 创建调度器，Start 之前不会触发任何刷新
func NewRefreshScheduler(target Ticker, opts SchedulerOptions) (*RefreshScheduler, error) {
	if opts.Interval == 0 {
		opts.Interval = domain.DefaultRefreshInterval
	}
	if !domain.IsValidInterval(opts.Interval) {
		return nil, domain.NewValidationError("interval", fmt.Sprintf("must be one of %v", domain.RefreshIntervals))
	}
	if opts.Unit <= 0 {
		opts.Unit = time.Second
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RefreshScheduler{
		target:     target,
		dispatcher: opts.Dispatcher,
		observer:   opts.Observer,
		logger:     opts.Logger.Named("scheduler"),
		unit:       opts.Unit,
		interval:   opts.Interval,
		enabled:    opts.Enabled,
	}, nil
}

// Start 以 ctx 作为刷新任务的上下文启动调度
func (s *RefreshScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.ctx = ctx
	s.rescheduleLocked()
}

// SetInterval 修改刷新间隔；与当前值相同时不做任何事
func (s *RefreshScheduler) SetInterval(interval int) error {
	if !domain.IsValidInterval(interval) {
		return domain.NewValidationError("interval", fmt.Sprintf("must be one of %v", domain.RefreshIntervals))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval == interval {
		return nil
	}
	s.interval = interval
	s.rescheduleLocked()
	return nil
}

// SetEnabled 开关自动刷新，不产生任何网络请求
func (s *RefreshScheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	s.rescheduleLocked()
}

// Settings 返回当前间隔与开关
func (s *RefreshScheduler) Settings() (interval int, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval, s.enabled
}

// Stop 停止调度，可重复调用
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.cancelLocked()
}

func (s *RefreshScheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// rescheduleLocked 取消当前定时器，并在需要时重建一个
func (s *RefreshScheduler) rescheduleLocked() {
	s.cancelLocked()
	if !s.started || s.stopped || !s.enabled {
		return
	}

	cancel := make(chan struct{})
	s.cancel = cancel
	s.schedules++
	go s.loop(s.ctx, time.Duration(s.interval)*s.unit, cancel)

	s.logger.Debug("refresh scheduled",
		zap.Int("interval", s.interval),
		zap.Duration("period", time.Duration(s.interval)*s.unit),
	)
}

func (s *RefreshScheduler) cancelLocked() {
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
}

func (s *RefreshScheduler) loop(ctx context.Context, period time.Duration, cancel <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cancel:
			return
		case <-ticker.C:
			// 取消与触发同时就绪时以取消为准
			select {
			case <-cancel:
				return
			default:
			}
			s.fire(ctx)
		}
	}
}

func (s *RefreshScheduler) fire(ctx context.Context) {
	task := func() {
		// 排队期间会话已关闭
		if ctx.Err() != nil || s.isStopped() {
			return
		}
		if _, err := s.target.Tick(ctx); err != nil {
			s.logger.Debug("scheduled refresh failed", zap.Error(err))
		}
	}
	if s.dispatcher == nil {
		go task()
		return
	}
	if !s.dispatcher.TrySubmit(task) {
		s.observer.ObserveTick(string(TickDropped))
	}
}
