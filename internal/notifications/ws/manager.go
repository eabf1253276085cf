package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is an in-app push frame for a connected organization
type Message struct {
	Type      string         `json:"type"`
	DealID    string         `json:"deal_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Connection represents one WebSocket client connection. Send is never
// closed; unregister signals shutdown through done so a concurrent push
// can never hit a closed channel.
type Connection struct {
	ID           string
	OrgID        uuid.UUID
	Conn         *websocket.Conn
	Send         chan Message
	done         chan struct{}
	LastActivity time.Time
	mu           sync.Mutex
}

// Hub routes push messages to the connections of each organization
type Hub struct {
	mu       sync.RWMutex
	byOrg    map[uuid.UUID]map[*Connection]bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a new push hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		byOrg:  make(map[uuid.UUID]map[*Connection]bool),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by the fronting proxy.
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and starts the pumps for an
// already-authenticated organization.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, orgID uuid.UUID) (*Connection, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		Conn:         conn,
		Send:         make(chan Message, 256),
		done:         make(chan struct{}),
		LastActivity: time.Now(),
	}
	h.register(connection)

	go h.readPump(connection)
	go h.writePump(connection)

	return connection, nil
}

// PushToOrg queues a message for every connection of the organization.
// Slow consumers are dropped rather than blocking the caller.
func (h *Hub) PushToOrg(orgID uuid.UUID, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.byOrg[orgID]))
	for c := range h.byOrg[orgID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.done:
			// unregistered between the snapshot and the send
		case c.Send <- msg:
		default:
			h.logger.Warn("dropping slow websocket consumer",
				zap.String("connection_id", c.ID),
				zap.String("org_id", orgID.String()))
			h.unregister(c)
		}
	}
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	if h.byOrg[conn.OrgID] == nil {
		h.byOrg[conn.OrgID] = make(map[*Connection]bool)
	}
	h.byOrg[conn.OrgID][conn] = true
	h.mu.Unlock()
}

// unregister removes the connection and signals its writePump. The Send
// channel is deliberately left open: a push that raced the removal lands
// in the buffer and is collected with the connection.
func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	if set, ok := h.byOrg[conn.OrgID]; ok {
		if set[conn] {
			delete(set, conn)
			close(conn.done)
		}
		if len(set) == 0 {
			delete(h.byOrg, conn.OrgID)
		}
	}
	h.mu.Unlock()
	conn.Conn.Close()
}

// readPump keeps the read side alive for ping/pong; incoming frames are
// ignored, this hub is push-only.
func (h *Hub) readPump(conn *Connection) {
	defer h.unregister(conn)

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (h *Hub) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case <-conn.done:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
