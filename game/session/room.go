package session

import (
	"sync"
	"time"

	"github.com/couchplay/server/game/engine"
)

// Status is a room's lifecycle state. Transitions are monotonic:
// waiting -> running -> finished, never backward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// Player is one roster entry. Re-joining with the same user identity
// updates ConnectionID/ControllerID in place rather than duplicating.
type Player struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"-"`
	ControllerID string `json:"controllerId"`
	IsOwner      bool   `json:"isOwner"`
	Name         string `json:"name,omitempty"`
}

// Settings is the room's resolved configuration.
type Settings struct {
	MaxPlayers int                    `json:"maxPlayers"`
	Options    map[string]interface{} `json:"options,omitempty"`
}

// Room is one ephemeral multiplayer session. It is owned exclusively by the
// Manager for its lifetime; all mutation goes through Manager methods under
// the room lock.
type Room struct {
	ID        string
	JoinCode  string
	OwnerID   string
	GameID    string
	CreatedAt time.Time

	mu         sync.Mutex
	players    []Player
	status     Status
	settings   Settings
	tick       uint64
	engine     engine.Engine
	state      engine.State
	pending    []engine.Input
	emitIn     int
	clock      Handle
	startedAt  time.Time
	finishedAt time.Time
	finishing  bool
}

// Snapshot is the broadcast payload for one throttled state emission.
type Snapshot struct {
	Tick      uint64       `json:"tick"`
	State     engine.State `json:"state"`
	Timestamp int64        `json:"timestamp"`
}

// Info is a lock-free copy of a room's externally visible fields, safe to
// marshal and hand to transports.
type Info struct {
	RoomID    string    `json:"roomId"`
	JoinCode  string    `json:"joinCode"`
	OwnerID   string    `json:"ownerId"`
	GameID    string    `json:"gameId"`
	Players   []Player  `json:"players"`
	Status    Status    `json:"status"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
	Tick      uint64    `json:"tick"`
}

// Info snapshots the room under its lock.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Info{
		RoomID:    r.ID,
		JoinCode:  r.JoinCode,
		OwnerID:   r.OwnerID,
		GameID:    r.GameID,
		Players:   append([]Player(nil), r.players...),
		Status:    r.status,
		Settings:  r.settings,
		CreatedAt: r.CreatedAt,
		Tick:      r.tick,
	}
}

// Status returns the room's current lifecycle state.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PlayerCount returns the current roster size.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// playerIndex returns the roster position for a user, or -1. Caller holds
// the room lock.
func (r *Room) playerIndex(userID string) int {
	for i, p := range r.players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}
