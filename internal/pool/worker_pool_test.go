package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewWorkerPool(4, 16, zap.NewNop())
	p.Start(context.Background())

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), func() { count.Add(1) }))
	}
	p.Stop()

	assert.Equal(t, int32(10), count.Load())
}

func TestWorkerPool_TrySubmitDropsWhenFull(t *testing.T) {
	p := NewWorkerPool(1, 1, nil)
	block := make(chan struct{})
	started := make(chan struct{})
	p.Start(context.Background())

	require.True(t, p.TrySubmit(func() {
		close(started)
		<-block
	}))
	<-started
	require.True(t, p.TrySubmit(func() {}))

	t.Run("队列满时丢弃", func(t *testing.T) {
		assert.False(t, p.TrySubmit(func() {}))
		assert.Equal(t, int64(1), p.Dropped())
	})

	close(block)
	p.Stop()

	t.Run("停止后拒绝任务", func(t *testing.T) {
		assert.False(t, p.TrySubmit(func() {}))
		assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrStopped)
		p.Stop()
	})
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	p := NewWorkerPool(1, 4, zap.NewNop())
	var recovered atomic.Value
	p.OnPanic(func(r any) { recovered.Store(r) })
	p.Start(context.Background())

	var ran atomic.Bool
	require.True(t, p.TrySubmit(func() { panic("boom") }))
	require.True(t, p.TrySubmit(func() { ran.Store(true) }))

	assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, "boom", recovered.Load())
	p.Stop()
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	p := NewWorkerPool(1, 0, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 未启动 worker，无缓冲队列无法接收
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
