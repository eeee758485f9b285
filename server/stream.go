package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Hub 实时事件推送
// 功能：作为事件接收方，将通道与租约的状态变化以JSON文本帧广播给所有websocket客户端
// 说明：
// 1. 每个客户端一个带缓冲的发送队列与一个写协程，Publish从不阻塞
// 2. 队列已满的慢客户端直接丢弃该事件
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

var _ entity.IEventSink = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish 广播事件
func (h *Hub) Publish(e entity.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("failed to marshal event %s: %v", e.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warnf("event %s dropped for slow client %s", e.Type, c.conn.RemoteAddr())
		}
	}
}

// ServeHTTP 升级为websocket连接并阻塞直到客户端断开
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Infof("websocket client connected, total clients: %d", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// readLoop 丢弃客户端消息，只用于感知断开
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		close(c.send)
		n := len(h.clients)
		h.mu.Unlock()
		log.Infof("websocket client disconnected, remaining clients: %d", n)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warnf("websocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
