package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kieru/backend/internal/domain"
)

const testUnit = 10 * time.Millisecond

type countingTicker struct {
	n atomic.Int32
}

func (c *countingTicker) Tick(context.Context) (TickOutcome, error) {
	c.n.Add(1)
	return TickFallback, nil
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) TrySubmit(func()) bool { return false }

type tickObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *tickObserver) ObserveTick(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *tickObserver) ObserveNewMessages(int) {}

func (o *tickObserver) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, v := range o.outcomes {
		if v == outcome {
			n++
		}
	}
	return n
}

func (s *RefreshScheduler) scheduleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules
}

func newTestScheduler(t *testing.T, target Ticker, opts SchedulerOptions) *RefreshScheduler {
	t.Helper()
	opts.Unit = testUnit
	s, err := NewRefreshScheduler(target, opts)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

// stable 断言 d 时间内计数不再变化
func stable(t *testing.T, c *countingTicker, d time.Duration) {
	t.Helper()
	before := c.n.Load()
	time.Sleep(d)
	assert.Equal(t, before, c.n.Load())
}

func TestRefreshScheduler_Defaults(t *testing.T) {
	s, err := NewRefreshScheduler(&countingTicker{}, SchedulerOptions{})
	require.NoError(t, err)
	interval, enabled := s.Settings()
	assert.Equal(t, domain.DefaultRefreshInterval, interval)
	assert.False(t, enabled)

	_, err = NewRefreshScheduler(&countingTicker{}, SchedulerOptions{Interval: 7})
	assert.True(t, domain.IsValidation(err))
}

func TestRefreshScheduler_Ticks(t *testing.T) {
	c := &countingTicker{}
	s := newTestScheduler(t, c, SchedulerOptions{Interval: 3, Enabled: true})

	t.Run("Start 之前不触发", func(t *testing.T) {
		stable(t, c, 80*time.Millisecond)
		assert.Equal(t, int32(0), c.n.Load())
	})

	s.Start(context.Background())

	t.Run("按间隔触发", func(t *testing.T) {
		assert.Eventually(t, func() bool { return c.n.Load() >= 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("关闭后不再触发", func(t *testing.T) {
		s.SetEnabled(false)
		time.Sleep(20 * time.Millisecond)
		stable(t, c, 100*time.Millisecond)
	})

	t.Run("重新开启后恢复", func(t *testing.T) {
		before := c.n.Load()
		s.SetEnabled(true)
		assert.Eventually(t, func() bool { return c.n.Load() > before }, time.Second, 5*time.Millisecond)
	})
}

func TestRefreshScheduler_RescheduleExactlyOnce(t *testing.T) {
	s := newTestScheduler(t, &countingTicker{}, SchedulerOptions{Interval: 5, Enabled: true})
	s.Start(context.Background())
	require.Equal(t, 1, s.scheduleCount())

	require.NoError(t, s.SetInterval(10))
	assert.Equal(t, 2, s.scheduleCount())

	t.Run("相同间隔不重建", func(t *testing.T) {
		require.NoError(t, s.SetInterval(10))
		assert.Equal(t, 2, s.scheduleCount())
	})

	t.Run("非法间隔被拒绝", func(t *testing.T) {
		assert.True(t, domain.IsValidation(s.SetInterval(4)))
		interval, _ := s.Settings()
		assert.Equal(t, 10, interval)
		assert.Equal(t, 2, s.scheduleCount())
	})

	t.Run("关闭不创建定时器，重新开启创建一个", func(t *testing.T) {
		s.SetEnabled(false)
		assert.Equal(t, 2, s.scheduleCount())
		s.SetEnabled(false)
		s.SetEnabled(true)
		assert.Equal(t, 3, s.scheduleCount())
	})

	t.Run("关闭期间修改间隔不创建定时器", func(t *testing.T) {
		s.SetEnabled(false)
		require.NoError(t, s.SetInterval(30))
		assert.Equal(t, 3, s.scheduleCount())
	})
}

func TestRefreshScheduler_Stop(t *testing.T) {
	c := &countingTicker{}
	s := newTestScheduler(t, c, SchedulerOptions{Interval: 3, Enabled: true})
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return c.n.Load() >= 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	s.SetEnabled(false)
	s.SetEnabled(true)
	time.Sleep(20 * time.Millisecond)
	stable(t, c, 100*time.Millisecond)
}

func TestRefreshScheduler_ContextCancel(t *testing.T) {
	c := &countingTicker{}
	s := newTestScheduler(t, c, SchedulerOptions{Interval: 3, Enabled: true})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return c.n.Load() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	stable(t, c, 100*time.Millisecond)
}

func TestRefreshScheduler_DroppedWhenPoolFull(t *testing.T) {
	c := &countingTicker{}
	obs := &tickObserver{}
	s := newTestScheduler(t, c, SchedulerOptions{
		Interval:   3,
		Enabled:    true,
		Dispatcher: rejectingDispatcher{},
		Observer:   obs,
	})
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return obs.count(string(TickDropped)) >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), c.n.Load())
}

type queueingDispatcher struct {
	mu    sync.Mutex
	tasks []func()
}

func (d *queueingDispatcher) TrySubmit(task func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return true
}

func (d *queueingDispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

func (d *queueingDispatcher) drain() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func TestRefreshScheduler_QueuedTickAfterStop(t *testing.T) {
	t.Run("停止后排队中的刷新不再执行", func(t *testing.T) {
		c := &countingTicker{}
		d := &queueingDispatcher{}
		s := newTestScheduler(t, c, SchedulerOptions{Interval: 3, Enabled: true, Dispatcher: d})
		s.Start(context.Background())

		assert.Eventually(t, func() bool { return d.len() >= 1 }, time.Second, 5*time.Millisecond)
		s.Stop()
		d.drain()
		assert.Equal(t, int32(0), c.n.Load())
	})

	t.Run("上下文取消后排队中的刷新不再执行", func(t *testing.T) {
		c := &countingTicker{}
		d := &queueingDispatcher{}
		s := newTestScheduler(t, c, SchedulerOptions{Interval: 3, Enabled: true, Dispatcher: d})
		ctx, cancel := context.WithCancel(context.Background())
		s.Start(ctx)

		assert.Eventually(t, func() bool { return d.len() >= 1 }, time.Second, 5*time.Millisecond)
		cancel()
		d.drain()
		assert.Equal(t, int32(0), c.n.Load())
	})
}
