package websocket

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 32
)

// Message is the envelope written to the browser
type Message struct {
	Type      string      `json:"type"` // "snapshot", "published", "dismissed"
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// clientMessage is what the browser may send back
type clientMessage struct {
	Type string `json:"type"` // "dismiss"
	ID   string `json:"id"`
}

// Client is one browser tab streaming a session's notifications
type Client struct {
	SessionID string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	bus       *notify.Bus
	hub       *NotificationHub
}

// NotificationHub streams notification bus events to websocket clients
type NotificationHub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewNotificationHub creates a hub accepting connections from allowedOrigins.
// An empty list or "*" allows any origin.
func NewNotificationHub(allowedOrigins []string, logger *logrus.Logger) *NotificationHub {
	return &NotificationHub{
		clients: make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// Serve upgrades the request and streams bus events until the browser leaves
func (h *NotificationHub) Serve(c *gin.Context, sessionID string, bus *notify.Bus) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to upgrade notification websocket")
		return
	}

	client := &Client{
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		bus:       bus,
		hub:       h,
	}
	h.register(client)

	// queue the snapshot before subscribing so it is always the first frame
	client.enqueue(Message{Type: "snapshot", Data: bus.Active(), Timestamp: time.Now()})
	subID := bus.Subscribe(func(e notify.Event) {
		client.enqueue(Message{Type: string(e.Kind), Data: e.Notification, Timestamp: time.Now()})
	})

	go client.writePump()
	client.readPump()

	bus.Unsubscribe(subID)
	close(client.done)
	h.unregister(client)
}

func (h *NotificationHub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"session_id":    client.SessionID,
		"total_clients": total,
	}).Debug("Notification websocket connected")
}

func (h *NotificationHub) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"session_id":    client.SessionID,
		"total_clients": total,
	}).Debug("Notification websocket disconnected")
}

// ConnectionCount returns the number of open connections
func (h *NotificationHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue never blocks the bus; a slow browser loses frames instead
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.WithError(err).Error("Failed to marshal notification message")
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.hub.logger.WithField("session_id", c.SessionID).Warn("Notification websocket buffer full, dropping frame")
	}
}

func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("Notification websocket error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.WithError(err).Debug("Ignoring malformed client message")
			continue
		}
		if msg.Type == "dismiss" && msg.ID != "" {
			c.bus.Dismiss(msg.ID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.WithError(err).Debug("Failed to write notification websocket message")
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
