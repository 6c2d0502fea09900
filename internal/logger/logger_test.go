package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Run("写入轮转文件", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "logs", "kieru.log")
		log, err := NewLogger(DefaultRotation("debug", false, file))
		require.NoError(t, err)

		WithSession(log, "s-1").Info("session created")
		_ = log.Sync()

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"session_id":"s-1"`)
		assert.Contains(t, string(data), `"message":"session created"`)
	})

	t.Run("非法级别回落到 info", func(t *testing.T) {
		log, err := NewLogger(Config{Level: "loud"})
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zap.DebugLevel))
		assert.True(t, log.Core().Enabled(zap.InfoLevel))
	})
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	assert.NotNil(t, WithSession(nil, "x"))

	log := zap.NewExample()
	assert.Same(t, log, OrNop(log))
}
