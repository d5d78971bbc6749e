package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// HubMessage 推送给浏览器的消息
type HubMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	UserID    uint        `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

type HubClient struct {
	ID     string
	UserID uint
	Conn   *websocket.Conn
	Send   chan HubMessage
	Hub    *NotificationHub
}

// NotificationHub 按用户分发实时通知
type NotificationHub struct {
	clients    map[string]*HubClient
	broadcast  chan HubMessage
	register   chan *HubClient
	unregister chan *HubClient
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS 由中间件处理
	},
}

func NewNotificationHub(logger *logrus.Logger) *NotificationHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationHub{
		clients:    make(map[string]*HubClient),
		broadcast:  make(chan HubMessage, 256),
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 事件循环，ctx 取消时关闭所有连接
func (h *NotificationHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Infof("Client %s connected (user %d)", client.ID, client.UserID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Infof("Client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if message.UserID != 0 && client.UserID != message.UserID {
					continue
				}
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish 非阻塞投递；队列满时丢弃并告警
func (h *NotificationHub) Publish(userID uint, msgType string, data interface{}) {
	msg := HubMessage{Type: msgType, Data: data, UserID: userID, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warnf("notification hub full, dropping %s for user %d", msgType, userID)
	}
}

// HandleWebSocket 升级连接；user_id 由认证中间件写入
func (h *NotificationHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	var userID uint
	if v, ok := c.Get("user_id"); ok {
		userID, _ = v.(uint)
	}
	client := &HubClient{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan HubMessage, 64),
		Hub:    h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *NotificationHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump 只维持心跳；客户端不通过 ws 写入
func (c *HubClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	_ = c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (c *HubClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.Errorf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
