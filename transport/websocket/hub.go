package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/couchplay/server/auth"
	"github.com/couchplay/server/game/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Phones join from the LAN; origin is not a useful signal here.
		return true
	},
}

// Hub tracks live connections grouped by room and fans room events out to
// them. It is the registry's broadcast collaborator: state snapshots
// published by the simulation clock arrive through BroadcastState.
type Hub struct {
	rooms  *session.Manager
	tokens *auth.Service

	rateLimit  int
	rateWindow time.Duration

	mu      sync.RWMutex
	byRoom  map[string]map[*Client]bool
	clients map[string]*Client
}

// NewHub creates a hub publishing into the given room registry. rateLimit
// and rateWindow bound controller input per connection.
func NewHub(rooms *session.Manager, tokens *auth.Service, rateLimit int, rateWindow time.Duration) *Hub {
	return &Hub{
		rooms:      rooms,
		tokens:     tokens,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		byRoom:     make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
	}
}

// ServeHTTP upgrades the connection. The client authenticates with a token
// in the query string; the first joinRoom message binds it to a room.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, 256),
		done:         make(chan struct{}),
		connID:       uuid.NewString(),
		userID:       claims.UserID,
		isController: claims.Kind == auth.KindController,
		boundRoomID:  claims.RoomID,
		gate:         session.NewInputGate(h.rateLimit, h.rateWindow),
	}

	h.mu.Lock()
	h.clients[client.connID] = client
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

// BroadcastState publishes a simulation snapshot to every connection in
// the room. Implements the registry's Broadcaster hook.
func (h *Hub) BroadcastState(roomID string, snap session.Snapshot) {
	h.BroadcastEvent(roomID, "stateUpdate", snap)
}

// BroadcastEvent sends one envelope to every connection in the room.
func (h *Hub) BroadcastEvent(roomID, event string, data interface{}) {
	h.broadcastEvent(roomID, event, data, nil)
}

// broadcastEvent fans an envelope out to the room, skipping exclude so an
// originator does not hear its own event echoed back.
func (h *Hub) broadcastEvent(roomID, event string, data interface{}, exclude *Client) {
	payload, err := encodeEnvelope(event, data)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byRoom[roomID]))
	for client := range h.byRoom[roomID] {
		if client != exclude {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.enqueue(payload)
	}
}

// RoomConnections reports how many connections are bound to a room.
func (h *Hub) RoomConnections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byRoom[roomID])
}

// resolveRoom finds a room by id or, failing that, by join code.
func (h *Hub) resolveRoom(roomID, joinCode string) (*session.Room, bool) {
	if roomID != "" {
		return h.rooms.Get(roomID)
	}
	if joinCode != "" {
		return h.rooms.GetByCode(joinCode)
	}
	return nil, false
}

// bindRoom records the client's room membership. The client's room field
// is only written under the hub lock.
func (h *Hub) bindRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[*Client]bool)
	}
	h.byRoom[roomID][client] = true
	client.roomID = roomID
}

// unbindRoom detaches the client from its room and returns the room id it
// was in.
func (h *Hub) unbindRoom(client *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID := client.roomID
	if roomID == "" {
		return ""
	}
	if clients, ok := h.byRoom[roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byRoom, roomID)
		}
	}
	client.roomID = ""
	return roomID
}

// clientRoom reads the client's current room under the hub lock.
func (h *Hub) clientRoom(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.roomID
}

// removeClient drops a connection from the hub and returns the room it was
// bound to, if any. The send channel is never closed: a broadcast that
// snapshotted the room before removal may still be enqueueing, and a send
// on a closed channel would panic the clock goroutine. The write pump is
// told to exit through the done channel instead.
func (h *Hub) removeClient(client *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.connID]; !ok {
		return ""
	}
	delete(h.clients, client.connID)
	close(client.done)

	roomID := client.roomID
	if roomID != "" {
		if clients, ok := h.byRoom[roomID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byRoom, roomID)
			}
		}
		client.roomID = ""
	}
	return roomID
}

// disconnect tears a client down and propagates the departure into the
// room registry.
func (h *Hub) disconnect(client *Client) {
	roomID := h.removeClient(client)
	if roomID == "" {
		return
	}

	h.rooms.Leave(roomID, client.userID)
	h.BroadcastEvent(roomID, "playerLeft", map[string]string{
		"userId": client.userID,
	})
}

func encodeEnvelope(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: event, Data: data})
}
