package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrStopped 协程池已停止
var ErrStopped = errors.New("worker pool stopped")

// WorkerPool 协程池
//
// 用于限制并发轮询数量：所有标签页的刷新任务共享同一个池，
// 队列满时任务被丢弃并计数，而不是无限堆积。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	logger     *zap.Logger

	mu      sync.RWMutex
	stopped bool

	dropped atomic.Int64
	panics  atomic.Int64
	onPanic func(recovered any)
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		logger:     logger.Named("pool"),
	}
}

// OnPanic 注册任务 panic 回调（用于指标）
func (p *WorkerPool) OnPanic(fn func(recovered any)) {
	p.onPanic = fn
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.maxWorkers), zap.Int("queue", cap(p.taskQueue)))
}

// Submit 提交任务，队列满时阻塞直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满或池已停止，立即返回 false 并计入丢弃数
func (p *WorkerPool) TrySubmit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Stop 停止协程池并等待正在执行的任务结束，可重复调用
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped",
		zap.Int64("dropped", p.dropped.Load()),
		zap.Int64("panics", p.panics.Load()),
	)
}

// Dropped 返回被丢弃的任务数
func (p *WorkerPool) Dropped() int64 {
	return p.dropped.Load()
}

// Pending 返回排队中的任务数
func (p *WorkerPool) Pending() int {
	return len(p.taskQueue)
}

// worker 工作协程
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行任务（捕获 panic）
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()
	task()
}
