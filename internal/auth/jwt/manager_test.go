package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestManager_IssueAndParse(t *testing.T) {
	m := NewManager(testSecret, "kieru", time.Minute)

	token, expiresAt, err := m.Issue("session-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

	id, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager(testSecret, "kieru", time.Minute)

	t.Run("错误的密钥", func(t *testing.T) {
		other := NewManager("ffffffffffffffffffffffffffffffff", "kieru", time.Minute)
		token, _, err := other.Issue("s")
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("错误的签发者", func(t *testing.T) {
		other := NewManager(testSecret, "someone-else", time.Minute)
		token, _, err := other.Issue("s")
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("已过期", func(t *testing.T) {
		expired := NewManager(testSecret, "kieru", -time.Minute)
		token, _, err := expired.Issue("s")
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := m.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRandomSecret(t *testing.T) {
	a, err := RandomSecret()
	require.NoError(t, err)
	b, err := RandomSecret()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
