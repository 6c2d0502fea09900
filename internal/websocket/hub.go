package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kieru/backend/internal/service"
)

const (
	pingPeriod   = 54 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
	broadcastBuf = 256
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
	MessageTypeState        MessageType = "state"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType       `json:"type"`
	Message   string            `json:"message,omitempty"`
	State     *service.Snapshot `json:"state,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Authenticator 将会话句柄解析为会话 ID
type Authenticator func(token string) (string, error)

// SnapshotFunc 返回会话当前状态，用于连接建立后的首条消息
type SnapshotFunc func(sessionID string) (service.Snapshot, bool)

// HubOptions Hub 的依赖
type HubOptions struct {
	AllowedOrigins []string
	Authenticate   Authenticator
	Snapshot       SnapshotFunc
	Logger         *zap.Logger
	// OnConnections 连接数变化时回调
	OnConnections func(n int)
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID        string
	SessionID string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	log       *zap.Logger
}

type broadcastMessage struct {
	sessionID string
	message   *Message
}

// Hub 按标签页会话管理 WebSocket 连接，并实现 service.Notifier
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	sessions       map[string]map[string]*Client // sessionID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *broadcastMessage
	done           chan struct{}
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	authenticate   Authenticator
	snapshot       SnapshotFunc
	onConnections  func(n int)
}

var errMissingToken = errors.New("missing session token")

// NewHub 创建WebSocket Hub
func NewHub(opts HubOptions) *Hub {
	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		sessions:       make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *broadcastMessage, broadcastBuf),
		done:           make(chan struct{}),
		log:            log.Named("websocket"),
		allowedOrigins: allowed,
		authenticate:   opts.Authenticate,
		snapshot:       opts.Snapshot,
		onConnections:  opts.OnConnections,
	}
}

// Run 启动Hub，ctx 结束时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.addClient(client)
			h.sendInitialState(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg.sessionID, msg.message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// Publish 推送会话事件，队列已满时丢弃
func (h *Hub) Publish(sessionID string, event service.Event) {
	msg := &Message{
		Type:      MessageType(event.Type),
		Message:   event.Message,
		State:     event.State,
		Timestamp: time.Now(),
	}
	if event.Type == service.EventError {
		msg.Error = event.Message
	}

	select {
	case h.broadcast <- &broadcastMessage{sessionID: sessionID, message: msg}:
	default:
		h.log.Warn("broadcast queue full, dropping event",
			zap.String("session_id", sessionID),
			zap.String("type", string(event.Type)))
	}
}

// Connections 当前连接数
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionConnections 指定会话的连接数
func (h *Hub) SessionConnections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[string]*Client)
	}
	h.sessions[client.SessionID][client.ID] = client
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("client registered",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID))
	h.connectionsChanged(n)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if clients, exists := h.sessions[client.SessionID]; exists {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.sessions, client.SessionID)
		}
	}
	delete(h.clients, client.ID)
	close(client.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("client unregistered",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID))
	h.connectionsChanged(n)
}

func (h *Hub) connectionsChanged(n int) {
	if h.onConnections != nil {
		h.onConnections(n)
	}
}

func (h *Hub) sendInitialState(client *Client) {
	if h.snapshot == nil {
		return
	}
	snap, ok := h.snapshot(client.SessionID)
	if !ok {
		return
	}
	client.sendMessage(&Message{Type: MessageTypeState, State: &snap, Timestamp: time.Now()})
}

// broadcastToSession 向同一会话的全部连接推送消息
func (h *Hub) broadcastToSession(sessionID string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.sessions[sessionID] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.sessions = make(map[string]map[string]*Client)
	h.mu.Unlock()
	h.connectionsChanged(0)
}

// authenticateClient 依次从查询参数、请求头与 Cookie 读取会话句柄
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader(service.HandleHeader)
	}
	if token == "" {
		if cookie, err := c.Cookie(service.HandleCookie); err == nil {
			token = cookie
		}
	}
	if token == "" {
		return nil, errMissingToken
	}
	if h.authenticate == nil {
		return nil, service.ErrSessionNotFound
	}

	sessionID, err := h.authenticate(token)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return &Client{
		ID:        id,
		SessionID: sessionID,
		log:       h.log.With(zap.String("client_id", id), zap.String("session_id", sessionID)),
	}, nil
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "session required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, sendBuffer)

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
		c.sendMessage(&Message{Type: MessageTypeError, Error: "unknown message type", Timestamp: time.Now()})
	}
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked")
	}
}
