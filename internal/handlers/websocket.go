package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/models"
)

const (
	wsWriteTimeout = 5 * time.Second
	// wsMaxMessageBytes bounds inbound UI messages
	wsMaxMessageBytes = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The UI may run as an extension page with its own origin
	},
}

// WSMessage is an outbound broadcast
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// helloPayload is sent to each client on connect
type helloPayload struct {
	ServerInstanceID string                `json:"server_instance_id"` // Changes on restart so clients can resync
	Status           *models.ManagerStatus `json:"status"`
}

// WebSocketHandler is the UI message channel: inbound messages are handed to
// the session manager and acknowledged on the same connection, and manager
// notifications are broadcast to every client.
type WebSocketHandler struct {
	manager          SessionManager
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	serverInstanceID string
}

func NewWebSocketHandler(manager SessionManager, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		manager:          manager,
		logger:           logger,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}
	logger.Debug().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(wsMaxMessageBytes)

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	h.send(conn, mutex, WSMessage{
		Type: "hello",
		Payload: helloPayload{
			ServerInstanceID: h.serverInstanceID,
			Status:           h.manager.Status(r.Context()),
		},
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(conn, mutex, models.MessageResponse{Success: false, Error: "invalid message: " + err.Error()})
			continue
		}

		resp := h.manager.HandleMessage(r.Context(), msg)
		h.send(conn, mutex, resp)
	}
}

// Broadcast sends one message to every connected client
func (h *WebSocketHandler) Broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		if err := h.write(conn, mutexes[i], data); err != nil {
			// NOTE: no log here for operation_log broadcasts, it would feed itself
			if msgType != "operation_log" {
				h.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to send broadcast to client")
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, mutex := range h.clients {
		mutex.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket reply")
		return
	}
	if err := h.write(conn, mutex, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send WebSocket reply")
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, mutex *sync.Mutex, data []byte) error {
	mutex.Lock()
	defer mutex.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
