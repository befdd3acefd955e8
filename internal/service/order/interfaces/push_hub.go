// internal/service/order/interfaces/push_hub.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kamishop/internal/service/order/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 管理端跨域访问，放开
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// PushHub 维护管理端的 WebSocket 连接，发货事件实时推给所有在线客户端。
// 实现 port.DeliveryNotifier。
type PushHub struct {
	clients    map[*pushClient]struct{}
	register   chan *pushClient
	unregister chan *pushClient
	broadcast  chan []byte
	done       chan struct{}
	lock       sync.RWMutex
}

func NewPushHub() *PushHub {
	return &PushHub{
		clients:    make(map[*pushClient]struct{}),
		register:   make(chan *pushClient),
		unregister: make(chan *pushClient),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run 是 Hub 的事件循环，注册/注销/广播都在这里串行处理。
func (h *PushHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			log.Printf("Push client registered, %d online.", h.count())
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
		case payload := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// 慢客户端不拖垮广播，直接丢
				}
			}
			h.lock.RUnlock()
		case <-h.done:
			return
		}
	}
}

func (h *PushHub) Stop() {
	close(h.done)
}

func (h *PushHub) count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// NotifyDelivered 实现 port.DeliveryNotifier。
func (h *PushHub) NotifyDelivered(_ context.Context, event domain.DeliveredEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: failed to marshal push event: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		log.Printf("WARN: push broadcast queue full, delivery event dropped.")
	}
}

// ServeWS 把 HTTP 连接升级为 WebSocket 并挂到 Hub 上。
func (h *PushHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: websocket upgrade failed: %v", err)
		return
	}

	client := &pushClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// pushClient 是一个WebSocket连接的代表
type pushClient struct {
	hub  *PushHub
	conn *websocket.Conn
	send chan []byte
}

// writePump 将 send channel 中的消息写入 websocket，并维持心跳。
func (c *pushClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// readPump 只消费心跳响应，读到错误即注销连接。
func (c *pushClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
