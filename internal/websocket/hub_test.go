package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kieru/backend/internal/service"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(HubOptions{
		Authenticate: func(token string) (string, error) {
			if strings.HasPrefix(token, "valid-") {
				return strings.TrimPrefix(token, "valid-"), nil
			}
			return "", service.ErrSessionNotFound
		},
		Snapshot: func(sessionID string) (service.Snapshot, bool) {
			return service.Snapshot{Address: sessionID + "@grr.la"}, true
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", HandleWebSocket(hub))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub(t *testing.T) {
	t.Run("连接后先收到当前状态", func(t *testing.T) {
		_, srv := newTestHub(t)
		conn := dial(t, srv, "valid-s1")

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeState, msg.Type)
		require.NotNil(t, msg.State)
		assert.Equal(t, "s1@grr.la", msg.State.Address)
	})

	t.Run("事件只推送给所属会话", func(t *testing.T) {
		hub, srv := newTestHub(t)
		a := dial(t, srv, "valid-a")
		b := dial(t, srv, "valid-b")
		readMessage(t, a)
		readMessage(t, b)

		hub.Publish("a", service.Event{Type: service.EventNotification, Message: "1 new message received!"})
		hub.Publish("b", service.Event{Type: service.EventError, Message: "Failed to refresh emails"})

		got := readMessage(t, a)
		assert.Equal(t, MessageTypeNotification, got.Type)
		assert.Equal(t, "1 new message received!", got.Message)

		got = readMessage(t, b)
		assert.Equal(t, MessageTypeError, got.Type)
		assert.Equal(t, "Failed to refresh emails", got.Error)
	})

	t.Run("同一会话的多个连接都收到", func(t *testing.T) {
		hub, srv := newTestHub(t)
		first := dial(t, srv, "valid-s")
		second := dial(t, srv, "valid-s")
		readMessage(t, first)
		readMessage(t, second)
		assert.Equal(t, 2, hub.SessionConnections("s"))

		hub.Publish("s", service.Event{Type: service.EventNotification, Message: "Auto-refresh enabled"})
		assert.Equal(t, "Auto-refresh enabled", readMessage(t, first).Message)
		assert.Equal(t, "Auto-refresh enabled", readMessage(t, second).Message)
	})

	t.Run("客户端ping得到pong", func(t *testing.T) {
		_, srv := newTestHub(t)
		conn := dial(t, srv, "valid-p")
		readMessage(t, conn)

		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
		assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
	})

	t.Run("无效句柄被拒绝", func(t *testing.T) {
		_, srv := newTestHub(t)
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
		_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("缺少句柄被拒绝", func(t *testing.T) {
		_, srv := newTestHub(t)
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("队列满时Publish不阻塞", func(t *testing.T) {
		hub := NewHub(HubOptions{})
		done := make(chan struct{})
		go func() {
			for i := 0; i < broadcastBuf*2; i++ {
				hub.Publish("x", service.Event{Type: service.EventNotification})
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked")
		}
	})

	t.Run("断开后连接数归零", func(t *testing.T) {
		hub, srv := newTestHub(t)
		conn := dial(t, srv, "valid-d")
		readMessage(t, conn)
		require.Equal(t, 1, hub.Connections())

		conn.Close()
		assert.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestUpgraderOrigin(t *testing.T) {
	check := func(allowed []string, origin string) bool {
		up := upgraderFactory(allowed)
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return up.CheckOrigin(req)
	}

	assert.True(t, check([]string{"*"}, "https://evil.example"))
	assert.True(t, check([]string{"https://app.example"}, "https://app.example"))
	assert.False(t, check([]string{"https://app.example"}, "https://evil.example"))
	assert.True(t, check([]string{"https://app.example"}, ""))
	assert.False(t, errors.Is(errMissingToken, service.ErrSessionNotFound))
}
