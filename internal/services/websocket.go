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

// WebSocketMessage is the envelope for everything pushed on the status feed.
type WebSocketMessage struct {
	Type      string      `json:"type"` // status, run_result
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type WebSocketClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan WebSocketMessage
	Hub  *WebSocketHub
}

// WebSocketHub fans engine status snapshots and run results out to connected
// clients. It is a pure observer: it only reads the engine surface.
type WebSocketHub struct {
	clients    map[string]*WebSocketClient
	broadcast  chan WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	mutex      sync.RWMutex

	service        *AutomationService
	statusInterval time.Duration
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewWebSocketHub(service *AutomationService, statusInterval time.Duration) *WebSocketHub {
	if statusInterval <= 0 {
		statusInterval = 5 * time.Second
	}
	return &WebSocketHub{
		clients:        make(map[string]*WebSocketClient),
		broadcast:      make(chan WebSocketMessage),
		register:       make(chan *WebSocketClient),
		unregister:     make(chan *WebSocketClient),
		service:        service,
		statusInterval: statusInterval,
	}
}

// Run pumps registrations and broadcasts, and pushes a periodic status
// snapshot to every client. It returns when ctx is cancelled.
func (h *WebSocketHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			logrus.Infof("Status client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				logrus.Infof("Status client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case <-ticker.C:
			if h.service != nil && h.GetClientCount() > 0 {
				h.send(WebSocketMessage{
					Type:      "status",
					Data:      h.service.Status(ctx),
					Timestamp: time.Now(),
				})
			}

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *WebSocketHub) send(message WebSocketMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id, client := range h.clients {
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(h.clients, id)
		}
	}
}

// BroadcastRunResult pushes one execution outcome to all clients. Wired as
// the scheduler's run-result handler; it must never block the caller.
func (h *WebSocketHub) BroadcastRunResult(result RunResult) {
	msg := WebSocketMessage{Type: "run_result", Data: result, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		logrus.Warn("Status feed backlogged, dropping run result broadcast")
	}
}

// HandleWebSocket upgrades the request and registers the client.
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Error("WebSocket upgrade failed:", err)
		return
	}

	clientID := c.Param("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := &WebSocketClient{
		ID:   clientID,
		Conn: conn,
		Send: make(chan WebSocketMessage, 256),
		Hub:  h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump drains client frames. The feed is one-way; inbound payloads are
// only read to keep pong handling alive.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				logrus.Error("WriteJSON error:", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
