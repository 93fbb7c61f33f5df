package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go-bridge/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Connection one websocket subscriber
type Connection struct {
	ID       string          `json:"id"`
	Types    []EventType     `json:"types,omitempty"` // empty means every event
	Conn     *websocket.Conn `json:"-"`
	Send     chan []byte     `json:"-"`
	LastPing time.Time       `json:"last_ping"`
}

func (c *Connection) wants(t EventType) bool {
	if len(c.Types) == 0 {
		return true
	}
	for _, want := range c.Types {
		if want == t {
			return true
		}
	}
	return false
}

// PushMessage frame written to subscribers
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Actor     string      `json:"actor,omitempty"`
	Data      interface{} `json:"data"`
}

// WebSocketPushService fans committed bridge events out to websocket clients
type WebSocketPushService struct {
	connections map[string]*Connection
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	done        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *logrus.Logger
}

// NewWebSocketPushService starts the hub. allowedOrigins empty or "*" accepts any origin.
func NewWebSocketPushService(logger *logrus.Logger, allowedOrigins []string) *WebSocketPushService {
	s := &WebSocketPushService{
		connections: make(map[string]*Connection),
		hub:         make(chan PushMessage, sendBuffer),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	go s.run()
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Attach subscribes the push service to bus
func (s *WebSocketPushService) Attach(bus *EventBus) {
	bus.Subscribe("websocket", s.PushEvent)
}

// PushEvent queues evt for every interested connection. Drops the event when the hub is full.
func (s *WebSocketPushService) PushEvent(evt *Event) {
	message := PushMessage{
		Type:      string(evt.Type),
		Timestamp: evt.Timestamp.Format(time.RFC3339),
		MessageID: evt.ID,
		Actor:     evt.Actor,
		Data:      evt.Data,
	}
	select {
	case s.hub <- message:
	case <-s.done:
	default:
		s.logger.WithField("type", evt.Type).Warn("⚠️ WebSocket hub full, event dropped")
	}
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case message := <-s.hub:
			s.handleBroadcast(message)
		case <-s.done:
			s.closeAll()
			return
		}
	}
}

// Stop closes every connection and stops the hub
func (s *WebSocketPushService) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	s.connections[conn.ID] = conn
	count := len(s.connections)
	s.mutex.Unlock()
	metrics.WebSocketClients.Set(float64(count))

	s.logger.WithFields(logrus.Fields{
		"conn_id": conn.ID,
		"types":   conn.Types,
	}).Info("📱 WebSocket connection registered")

	s.sendToConnection(conn, PushMessage{
		Type:      "connection_established",
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: uuid.NewString(),
		Data: map[string]interface{}{
			"connection_id": conn.ID,
			"types":         conn.Types,
		},
	})
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	_, ok := s.connections[conn.ID]
	delete(s.connections, conn.ID)
	count := len(s.connections)
	s.mutex.Unlock()
	if !ok {
		return
	}
	metrics.WebSocketClients.Set(float64(count))

	close(conn.Send)
	s.logger.WithField("conn_id", conn.ID).Info("📱 WebSocket connection unregistered")
}

func (s *WebSocketPushService) closeAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, conn := range s.connections {
		close(conn.Send)
		delete(s.connections, id)
	}
	metrics.WebSocketClients.Set(0)
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).WithField("type", message.Type).Error("❌ Failed to marshal push message")
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	sent, dropped := 0, 0
	for _, conn := range s.connections {
		if !conn.wants(EventType(message.Type)) {
			continue
		}
		select {
		case conn.Send <- data:
			sent++
		default:
			dropped++
			s.logger.WithField("conn_id", conn.ID).Warn("⚠️ WebSocket send buffer full")
		}
	}
	s.logger.WithFields(logrus.Fields{
		"type":    message.Type,
		"sent":    sent,
		"dropped": dropped,
	}).Debug("📤 WebSocket push delivered")
}

func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).Error("❌ Failed to marshal push message")
		return
	}
	select {
	case conn.Send <- data:
	default:
		s.logger.WithField("conn_id", conn.ID).Warn("⚠️ Failed to send to connection")
	}
}

// HandleWebSocket upgrades the request and streams events of the given types (all when empty)
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, types []EventType) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}

	connection := &Connection{
		ID:       uuid.NewString(),
		Types:    types,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		LastPing: time.Now(),
	}

	select {
	case s.register <- connection:
	case <-s.done:
		conn.Close()
		return
	}

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.WithError(err).WithField("conn_id", conn.ID).Debug("write failed")
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleConnectionRead drains client frames; the stream is push only
func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		select {
		case s.unregister <- conn:
		case <-s.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).WithField("conn_id", conn.ID).Warn("❌ WebSocket read error")
			}
			return
		}
	}
}

// GetActiveConnections number of live subscribers
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}
