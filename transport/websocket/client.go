package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchplay/server/game/engine"
	"github.com/couchplay/server/game/session"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inbound is the client-to-server frame before the payload is decoded.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is one websocket connection: a display, a lobby screen or a phone
// controller. A connection binds to at most one room.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// done is closed by the hub when the client is removed; it tells the
	// write pump to shut the connection down.
	done chan struct{}

	connID       string
	userID       string
	controllerID string
	isController bool

	// boundRoomID restricts controller tokens to the room they were
	// issued for. Empty for user tokens.
	boundRoomID string

	// roomID is guarded by the hub lock; see bindRoom and unbindRoom.
	roomID string

	gate *session.InputGate
}

// enqueue hands a payload to the write pump without blocking. A client
// that cannot keep up is torn down.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		go c.hub.disconnect(c)
	}
}

func (c *Client) sendEvent(event string, data interface{}) {
	payload, err := encodeEnvelope(event, data)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) sendError(code, message string) {
	c.sendEvent("error", map[string]string{
		"code":    code,
		"message": message,
	})
}

// readPump pumps messages from the WebSocket connection into the room
// registry.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("badFrame", "frames must be JSON envelopes")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg inbound) {
	switch msg.Type {
	case "joinRoom":
		c.handleJoinRoom(msg.Data)
	case "controllerInput":
		c.handleControllerInput(msg.Data)
	case "chat":
		c.handleChat(msg.Data)
	case "leaveRoom":
		c.handleLeaveRoom()
	default:
		c.sendError("unknownType", "unknown message type: "+msg.Type)
	}
}

func (c *Client) handleJoinRoom(data json.RawMessage) {
	var req struct {
		RoomID       string `json:"roomId"`
		JoinCode     string `json:"joinCode"`
		ControllerID string `json:"controllerId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("badPayload", "invalid joinRoom payload")
		return
	}

	if c.hub.clientRoom(c) != "" {
		c.sendError("alreadyJoined", "connection is already in a room")
		return
	}

	room, ok := c.hub.resolveRoom(req.RoomID, req.JoinCode)
	if !ok {
		c.sendError("roomNotFound", "no such room")
		return
	}
	if c.boundRoomID != "" && c.boundRoomID != room.ID {
		c.sendError("wrongRoom", "token is bound to another room")
		return
	}

	controllerID := req.ControllerID
	if controllerID == "" {
		controllerID = c.connID
	}

	joined, err := c.hub.rooms.Join(room.ID, c.userID, c.connID, controllerID)
	if err != nil {
		c.sendError("joinFailed", joinErrorMessage(err))
		return
	}

	c.controllerID = controllerID
	c.hub.bindRoom(c, joined.ID)

	c.sendEvent("roomJoined", joined.Info())
	c.hub.broadcastEvent(joined.ID, "playerJoined", map[string]string{
		"userId":       c.userID,
		"controllerId": controllerID,
	}, c)
}

func (c *Client) handleControllerInput(data json.RawMessage) {
	roomID := c.hub.clientRoom(c)
	if roomID == "" {
		c.sendError("notInRoom", session.ErrNotInRoom.Error())
		return
	}

	var in engine.Input
	if err := json.Unmarshal(data, &in); err != nil {
		c.sendError("badPayload", "invalid input payload")
		return
	}

	// Identity comes from the connection, never from the payload.
	in.ControllerID = c.controllerID
	in.UserID = c.userID

	// Only admissible events count against the window; malformed frames
	// are rejected before the gate is charged.
	if in.Malformed() {
		c.sendError("malformedInput", "input frame is missing required fields")
		return
	}

	if !c.gate.Allow(time.Now()) {
		c.sendError("rateLimited", session.ErrRateLimited.Error())
		return
	}

	if err := c.hub.rooms.PushInput(roomID, in); err != nil {
		switch {
		case errors.Is(err, session.ErrMalformedInput):
			c.sendError("malformedInput", "input frame is missing required fields")
		case errors.Is(err, session.ErrRoomNotFound):
			c.sendError("roomNotFound", "room is gone")
		default:
			c.sendError("inputRejected", err.Error())
		}
	}
}

func (c *Client) handleChat(data json.RawMessage) {
	roomID := c.hub.clientRoom(c)
	if roomID == "" {
		c.sendError("notInRoom", "join a room before chatting")
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Message == "" {
		c.sendError("badPayload", "invalid chat payload")
		return
	}
	if len(req.Message) > 500 {
		req.Message = req.Message[:500]
	}

	c.hub.broadcastEvent(roomID, "chat", map[string]interface{}{
		"userId":    c.userID,
		"message":   req.Message,
		"timestamp": time.Now().UnixMilli(),
	}, c)
}

func (c *Client) handleLeaveRoom() {
	roomID := c.hub.unbindRoom(c)
	if roomID == "" {
		return
	}

	c.hub.rooms.Leave(roomID, c.userID)
	c.hub.BroadcastEvent(roomID, "playerLeft", map[string]string{
		"userId": c.userID,
	})
}

// writePump pumps messages from the hub to the WebSocket connection.
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrRoomNotJoinable):
		return "room is not accepting players"
	case errors.Is(err, session.ErrRoomFull):
		return "room is full"
	case errors.Is(err, session.ErrRoomNotFound):
		return "no such room"
	default:
		return err.Error()
	}
}
