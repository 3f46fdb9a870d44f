package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EasyTier/EasyLink/internal/core/metrics"
	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

// 消息类型
const (
	MessageInstanceInfo = "network_instance_info"
	MessageEvent        = "event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// DefaultClientBuffer 每个客户端的默认发送队列长度
	DefaultClientBuffer = 32
)

// Message websocket 消息
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ════════════════════════════════════════════════════════════════════════════
//                              Hub
// ════════════════════════════════════════════════════════════════════════════

// Hub websocket 通知扇出
//
// 每个客户端有独立的有界发送队列，队列满时丢弃该客户端的这一条消息，
// Publish / PublishEvent 从不阻塞。
type Hub struct {
	buffer   int
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Int64
}

var (
	_ pkgif.Sink      = (*Hub)(nil)
	_ pkgif.EventSink = (*Hub)(nil)
)

// NewHub 创建 Hub
//
// origins 为空时接受任意来源的 websocket 握手。
func NewHub(buffer int, origins []string) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	h := &Hub{
		buffer:  buffer,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Publish 实现 pkgif.Sink
func (h *Hub) Publish(batch []types.InstanceSnapshot) {
	h.broadcast(Message{Type: MessageInstanceInfo, Payload: batch})
}

// PublishEvent 实现 pkgif.EventSink
func (h *Hub) PublishEvent(evt types.InstanceEvent) {
	h.broadcast(Message{Type: MessageEvent, Payload: evt})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("编码通知失败", "type", msg.Type, "err", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			metrics.RecordSinkDrop("ws")
		}
	}
}

// Clients 当前连接的客户端数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped 因客户端队列满被丢弃的消息数
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// ServeWS 升级为 websocket 连接并注册客户端
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket 握手失败", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, h.buffer)}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetWSClients(n)
	logger.Debug("websocket 客户端已连接", "remote", c.conn.RemoteAddr(), "clients", n)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetWSClients(n)
}

// Close 断开所有客户端，之后的消息被忽略
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.SetWSClients(0)
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              client
// ════════════════════════════════════════════════════════════════════════════

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump 只处理控制帧，用于发现断开
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
