package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchplay/server/auth"
	"github.com/couchplay/server/game/engine"
	"github.com/couchplay/server/game/service"
	"github.com/couchplay/server/game/session"
)

func testHub(t *testing.T) (*Hub, *session.Manager, *service.InMemoryUserStore, *auth.Service) {
	t.Helper()

	users := service.NewInMemoryUserStore()
	rooms := session.NewManager(session.Options{Identity: users})
	t.Cleanup(rooms.Shutdown)

	tokens := auth.NewService("test-secret", time.Hour)
	hub := NewHub(rooms, tokens, 10, 100*time.Millisecond)
	return hub, rooms, users, tokens
}

func fakeClient(hub *Hub, userID string) *Client {
	c := &Client{
		hub:    hub,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		connID: "conn-" + userID,
		userID: userID,
		gate:   session.NewInputGate(hub.rateLimit, hub.rateWindow),
	}
	hub.mu.Lock()
	hub.clients[c.connID] = c
	hub.mu.Unlock()
	return c
}

func TestBindAndUnbindRoom(t *testing.T) {
	hub, _, _, _ := testHub(t)

	client := fakeClient(hub, "user-1")
	hub.bindRoom(client, "room-1")

	if hub.RoomConnections("room-1") != 1 {
		t.Errorf("Expected 1 connection, got %d", hub.RoomConnections("room-1"))
	}
	if hub.clientRoom(client) != "room-1" {
		t.Errorf("Client room not recorded: %q", hub.clientRoom(client))
	}

	if got := hub.unbindRoom(client); got != "room-1" {
		t.Errorf("unbindRoom returned %q", got)
	}
	if hub.RoomConnections("room-1") != 0 {
		t.Error("Room still has connections after unbind")
	}
	if got := hub.unbindRoom(client); got != "" {
		t.Errorf("Second unbind returned %q", got)
	}
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	hub, _, _, _ := testHub(t)

	inRoom := fakeClient(hub, "user-1")
	alsoIn := fakeClient(hub, "user-2")
	outside := fakeClient(hub, "user-3")
	hub.bindRoom(inRoom, "room-1")
	hub.bindRoom(alsoIn, "room-1")
	hub.bindRoom(outside, "room-2")

	hub.BroadcastState("room-1", session.Snapshot{Tick: 7})

	for _, c := range []*Client{inRoom, alsoIn} {
		select {
		case payload := <-c.send:
			var env struct {
				Type string `json:"type"`
				Data struct {
					Tick uint64 `json:"tick"`
				} `json:"data"`
			}
			if err := json.Unmarshal(payload, &env); err != nil {
				t.Fatalf("Bad payload: %v", err)
			}
			if env.Type != "stateUpdate" || env.Data.Tick != 7 {
				t.Errorf("Wrong envelope: %s", payload)
			}
		default:
			t.Fatalf("Client %s got nothing", c.userID)
		}
	}

	select {
	case payload := <-outside.send:
		t.Errorf("Client outside the room received %s", payload)
	default:
	}
}

func TestBroadcastSkipsExcludedClient(t *testing.T) {
	hub, _, _, _ := testHub(t)

	sender := fakeClient(hub, "user-1")
	listener := fakeClient(hub, "user-2")
	hub.bindRoom(sender, "room-1")
	hub.bindRoom(listener, "room-1")

	hub.broadcastEvent("room-1", "chat", map[string]string{"message": "hi"}, sender)

	select {
	case <-listener.send:
	default:
		t.Error("Listener did not receive the event")
	}
	select {
	case payload := <-sender.send:
		t.Errorf("Originator received its own event: %s", payload)
	default:
	}
}

func TestChatNotEchoedToSender(t *testing.T) {
	hub, _, _, _ := testHub(t)

	sender := fakeClient(hub, "user-1")
	listener := fakeClient(hub, "user-2")
	hub.bindRoom(sender, "room-1")
	hub.bindRoom(listener, "room-1")

	sender.handleChat(json.RawMessage(`{"message":"hello"}`))

	select {
	case payload := <-listener.send:
		var env struct {
			Type string `json:"type"`
			Data struct {
				UserID  string `json:"userId"`
				Message string `json:"message"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatal(err)
		}
		if env.Type != "chat" || env.Data.UserID != "user-1" || env.Data.Message != "hello" {
			t.Errorf("Bad chat relay: %s", payload)
		}
	default:
		t.Fatal("Listener got no chat event")
	}

	select {
	case payload := <-sender.send:
		t.Errorf("Sender heard its own chat: %s", payload)
	default:
	}
}

func TestBroadcastDuringDisconnectDoesNotPanic(t *testing.T) {
	hub, _, _, _ := testHub(t)

	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-stop:
				return
			default:
				hub.BroadcastEvent("room-1", "stateUpdate", session.Snapshot{Tick: 1})
			}
		}
	}()

	// A broadcast may snapshot the room members just before one of them is
	// removed; enqueueing into that client must still be safe.
	for i := 0; i < 500; i++ {
		client := fakeClient(hub, "user-1")
		hub.bindRoom(client, "room-1")
		hub.disconnect(client)
	}

	close(stop)
	<-finished
}

func TestRemovedClientSignalsDone(t *testing.T) {
	hub, _, _, _ := testHub(t)

	client := fakeClient(hub, "user-1")
	hub.disconnect(client)

	select {
	case <-client.done:
	default:
		t.Error("Done channel not closed after disconnect")
	}

	// The send channel stays open so late broadcasts cannot panic.
	client.enqueue([]byte(`{"type":"stateUpdate"}`))
}

func TestDisconnectPropagatesLeave(t *testing.T) {
	hub, rooms, users, _ := testHub(t)

	owner, _ := users.CreateGuest("Ada")
	room, err := rooms.CreateRoom(owner.ID, engine.GamePong, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rooms.Join(room.ID, owner.ID, "conn-"+owner.ID, "ctrl-0"); err != nil {
		t.Fatal(err)
	}

	client := fakeClient(hub, owner.ID)
	hub.bindRoom(client, room.ID)

	hub.disconnect(client)

	// Last player out destroys the room.
	if _, ok := rooms.Get(room.ID); ok {
		t.Error("Room survived its last connection")
	}
	if hub.RoomConnections(room.ID) != 0 {
		t.Error("Hub still tracks the dropped connection")
	}

	// A second disconnect of the same client is a no-op.
	hub.disconnect(client)
}

func TestMalformedInputDoesNotChargeGate(t *testing.T) {
	hub, rooms, users, _ := testHub(t)

	owner, _ := users.CreateGuest("Ada")
	room, err := rooms.CreateRoom(owner.ID, engine.GamePong, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rooms.Join(room.ID, owner.ID, "conn-"+owner.ID, "ctrl-0"); err != nil {
		t.Fatal(err)
	}

	client := fakeClient(hub, owner.ID)
	client.controllerID = "ctrl-0"
	hub.bindRoom(client, room.ID)

	// A burst of frames missing the client timestamp fills nothing: each is
	// rejected before the rate window is charged.
	for i := 0; i < hub.rateLimit; i++ {
		client.handleControllerInput(json.RawMessage(`{"e":"press"}`))
	}
	for i := 0; i < hub.rateLimit; i++ {
		select {
		case payload := <-client.send:
			var env struct {
				Type string `json:"type"`
				Data struct {
					Code string `json:"code"`
				} `json:"data"`
			}
			if err := json.Unmarshal(payload, &env); err != nil {
				t.Fatal(err)
			}
			if env.Type != "error" || env.Data.Code != "malformedInput" {
				t.Errorf("Expected malformedInput error, got %s", payload)
			}
		default:
			t.Fatal("Missing rejection for a malformed frame")
		}
	}

	// A full window of well-formed events is still admitted afterwards.
	for i := 0; i < hub.rateLimit; i++ {
		client.handleControllerInput(json.RawMessage(`{"t":1693000000000,"e":"press"}`))
	}
	select {
	case payload := <-client.send:
		t.Errorf("Valid input rejected after malformed burst: %s", payload)
	default:
	}
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatal(err)
	}
}

// recv reads frames until one of the wanted type arrives. Frames may be
// batched newline-separated by the write pump.
func recv(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read failed waiting for %s: %v", wantType, err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			if line == "" {
				continue
			}
			var env struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(line), &env); err != nil {
				t.Fatalf("Bad frame %q: %v", line, err)
			}
			if env.Type == wantType {
				return env.Data
			}
			if env.Type == "error" {
				t.Fatalf("Got error frame while waiting for %s: %s", wantType, env.Data)
			}
		}
	}
}

func TestJoinFlowOverWire(t *testing.T) {
	hub, rooms, users, tokens := testHub(t)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	owner, _ := users.CreateGuest("Ada")
	guest, _ := users.CreateGuest("Ben")
	room, err := rooms.CreateRoom(owner.ID, engine.GamePong, 2, nil)
	if err != nil {
		t.Fatal(err)
	}

	ownerToken, _ := tokens.GenerateUserToken(owner.ID)
	guestToken, _ := tokens.GenerateUserToken(guest.ID)

	ownerConn := dial(t, wsURL, ownerToken)
	send(t, ownerConn, "joinRoom", map[string]string{"roomId": room.ID})

	var info session.Info
	if err := json.Unmarshal(recv(t, ownerConn, "roomJoined"), &info); err != nil {
		t.Fatal(err)
	}
	if info.RoomID != room.ID || len(info.Players) != 1 {
		t.Errorf("Bad roomJoined payload: %+v", info)
	}

	// Second player joins by code; the first connection sees playerJoined.
	guestConn := dial(t, wsURL, guestToken)
	send(t, guestConn, "joinRoom", map[string]string{"joinCode": room.JoinCode})
	recv(t, guestConn, "roomJoined")

	var joined struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(recv(t, ownerConn, "playerJoined"), &joined); err != nil {
		t.Fatal(err)
	}
	if joined.UserID != guest.ID {
		t.Errorf("Expected playerJoined for %s, got %s", guest.ID, joined.UserID)
	}

	// Chat relays to everyone in the room.
	send(t, guestConn, "chat", map[string]string{"message": "hello"})
	var chat struct {
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(recv(t, ownerConn, "chat"), &chat); err != nil {
		t.Fatal(err)
	}
	if chat.UserID != guest.ID || chat.Message != "hello" {
		t.Errorf("Bad chat relay: %+v", chat)
	}
}

func TestStateUpdatesOverWire(t *testing.T) {
	users := service.NewInMemoryUserStore()
	tokens := auth.NewService("test-secret", time.Hour)

	var hub *Hub
	rooms := session.NewManager(session.Options{
		Identity: users,
		Broadcaster: broadcasterFunc(func(roomID string, snap session.Snapshot) {
			hub.BroadcastState(roomID, snap)
		}),
		TickInterval: 5 * time.Millisecond,
	})
	t.Cleanup(rooms.Shutdown)
	hub = NewHub(rooms, tokens, 10, 100*time.Millisecond)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	owner, _ := users.CreateGuest("Ada")
	room, err := rooms.CreateRoom(owner.ID, engine.GameReactionBlitz, 2, nil)
	if err != nil {
		t.Fatal(err)
	}

	token, _ := tokens.GenerateUserToken(owner.ID)
	conn := dial(t, wsURL, token)
	send(t, conn, "joinRoom", map[string]string{"roomId": room.ID})
	recv(t, conn, "roomJoined")

	if _, err := rooms.Start(room.ID, owner.ID); err != nil {
		t.Fatal(err)
	}

	var snap struct {
		Tick uint64 `json:"tick"`
	}
	if err := json.Unmarshal(recv(t, conn, "stateUpdate"), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Tick == 0 || snap.Tick%3 != 0 {
		t.Errorf("Expected a snapshot on a third tick, got %d", snap.Tick)
	}
}

func TestRejectsBadToken(t *testing.T) {
	hub, _, _, _ := testHub(t)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?token=garbage")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestControllerTokenBoundToRoom(t *testing.T) {
	hub, rooms, users, tokens := testHub(t)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	owner, _ := users.CreateGuest("Ada")
	roomA, _ := rooms.CreateRoom(owner.ID, engine.GamePong, 2, nil)
	roomB, _ := rooms.CreateRoom(owner.ID, engine.GamePong, 2, nil)

	token, _ := tokens.GenerateControllerToken(owner.ID, roomA.ID)
	conn := dial(t, wsURL, token)

	send(t, conn, "joinRoom", map[string]string{"roomId": roomB.ID})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var env struct {
		Type string `json:"type"`
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "error" || env.Data.Code != "wrongRoom" {
		t.Errorf("Expected wrongRoom error, got %s", raw)
	}
}

// broadcasterFunc adapts a function to the registry's Broadcaster hook.
type broadcasterFunc func(roomID string, snap session.Snapshot)

func (f broadcasterFunc) BroadcastState(roomID string, snap session.Snapshot) {
	f(roomID, snap)
}
