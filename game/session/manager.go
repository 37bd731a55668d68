package session

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchplay/server/game/engine"
)

// Identity resolves user identities for room ownership and display names.
// Backed by the user store in-process; a real deployment can substitute a
// remote service.
type Identity interface {
	ResolveOwner(userID string) (name string, ok bool)
	ResolvePlayerName(userID string) (name string, ok bool)
}

// Broadcaster fans a room's snapshot out to every connection subscribed to
// that room. Implemented by the websocket hub.
type Broadcaster interface {
	BroadcastState(roomID string, snap Snapshot)
}

// PlayerResult is one player's final line in a match record.
type PlayerResult struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Score  int    `json:"score"`
}

// MatchRecord is handed to the persistence collaborator when a room
// finishes.
type MatchRecord struct {
	RoomID       string         `json:"roomId"`
	GameID       string         `json:"gameId"`
	Players      []PlayerResult `json:"players"`
	WinnerUserID string         `json:"winner,omitempty"`
	DurationMs   int64          `json:"durationMs"`
	FinishedAt   time.Time      `json:"finishedAt"`
	EventsLog    string         `json:"eventsLog,omitempty"`
}

// MatchRecorder persists finished matches. Failures must not affect the
// room lifecycle; the manager only logs them.
type MatchRecorder interface {
	RecordMatch(rec MatchRecord) error
}

const (
	// DefaultTickInterval is the 20 Hz simulation rate.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultSnapshotEvery broadcasts state on every 3rd tick.
	DefaultSnapshotEvery = 3

	defaultMaxPlayers = 2
	joinCodeAttempts  = 100
)

// Options configures a Manager. Identity is required; the zero value of
// everything else gets a sensible default.
type Options struct {
	TickInterval  time.Duration
	SnapshotEvery int
	Scheduler     Scheduler
	Identity      Identity
	Broadcaster   Broadcaster
	Recorder      MatchRecorder

	// Now is a clock hook for tests.
	Now func() time.Time
}

// Manager is the process-wide registry of active rooms. It owns every Room
// for its lifetime and serializes lifecycle operations per room: the
// registry map is guarded by mu, each room by its own lock.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	tickInterval  time.Duration
	snapshotEvery int
	scheduler     Scheduler
	identity      Identity
	broadcaster   Broadcaster
	recorder      MatchRecorder
	now           func() time.Time
}

// NewManager creates a room manager.
func NewManager(opts Options) *Manager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = DefaultSnapshotEvery
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTickerScheduler()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		rooms:         make(map[string]*Room),
		tickInterval:  opts.TickInterval,
		snapshotEvery: opts.SnapshotEvery,
		scheduler:     opts.Scheduler,
		identity:      opts.Identity,
		broadcaster:   opts.Broadcaster,
		recorder:      opts.Recorder,
		now:           opts.Now,
	}
}

// CreateRoom registers a new waiting room owned by ownerID. The join code
// is regenerated until it is unique among the currently registered rooms.
func (m *Manager) CreateRoom(ownerID, gameID string, maxPlayers int, options map[string]interface{}) (*Room, error) {
	if m.identity != nil {
		if _, ok := m.identity.ResolveOwner(ownerID); !ok {
			return nil, ErrOwnerNotFound
		}
	}
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := m.uniqueJoinCode()
	if err != nil {
		return nil, err
	}

	room := &Room{
		ID:        uuid.NewString(),
		JoinCode:  code,
		OwnerID:   ownerID,
		GameID:    gameID,
		CreatedAt: m.now(),
		status:    StatusWaiting,
		settings: Settings{
			MaxPlayers: maxPlayers,
			Options:    options,
		},
	}
	m.rooms[room.ID] = room

	return room, nil
}

// Get returns the room for an id.
func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

// GetByCode returns the active room holding a join code.
func (m *Manager) GetByCode(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, room := range m.rooms {
		if room.JoinCode == code {
			return room, true
		}
	}
	return nil, false
}

// List returns all registered rooms.
func (m *Manager) List() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room)
	}
	return out
}

// Count returns the number of registered rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Join adds a player to a waiting room, or refreshes the connection and
// controller ids of a player who is re-joining.
func (m *Manager) Join(roomID, userID, connectionID, controllerID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.status != StatusWaiting {
		return nil, ErrRoomNotJoinable
	}

	if i := room.playerIndex(userID); i >= 0 {
		room.players[i].ConnectionID = connectionID
		room.players[i].ControllerID = controllerID
		return room, nil
	}

	if len(room.players) >= room.settings.MaxPlayers {
		return nil, ErrRoomFull
	}

	var name string
	if m.identity != nil {
		name, _ = m.identity.ResolvePlayerName(userID)
	}

	room.players = append(room.players, Player{
		UserID:       userID,
		ConnectionID: connectionID,
		ControllerID: controllerID,
		IsOwner:      userID == room.OwnerID,
		Name:         name,
	})

	return room, nil
}

// Leave removes a player from a room. When the roster empties the room is
// destroyed and its clock released. Leaving a room that no longer exists is
// a no-op: a disconnect may race another removal path.
func (m *Manager) Leave(roomID, userID string) {
	m.mu.Lock()

	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}

	room.mu.Lock()
	if i := room.playerIndex(userID); i >= 0 {
		room.players = append(room.players[:i], room.players[i+1:]...)
	}

	var clock Handle
	if len(room.players) == 0 {
		delete(m.rooms, roomID)
		// Mark the room dead so a racing tick that already holds a
		// reference backs off.
		room.status = StatusFinished
		clock = room.clock
		room.clock = nil
	}
	room.mu.Unlock()
	m.mu.Unlock()

	if clock != nil {
		clock.Stop()
	}
}

// Start transitions a waiting room to running: it freezes the roster,
// instantiates the game engine, and schedules the room's clock.
func (m *Manager) Start(roomID, requesterID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.OwnerID != requesterID {
		return nil, ErrNotOwner
	}
	if room.status != StatusWaiting {
		return nil, ErrInvalidTransition
	}

	slots := make([]engine.PlayerSlot, len(room.players))
	for i, p := range room.players {
		slots[i] = engine.PlayerSlot{
			UserID:       p.UserID,
			ControllerID: p.ControllerID,
			Name:         p.Name,
		}
	}

	rng := mrand.New(mrand.NewSource(m.now().UnixNano()))
	eng, err := engine.New(room.GameID, slots, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", room.GameID, err)
	}

	room.status = StatusRunning
	room.engine = eng
	room.state = eng.State()
	room.tick = 0
	room.emitIn = 0
	room.startedAt = m.now()
	room.clock = m.scheduler.Schedule(m.tickInterval, func() {
		m.tick(roomID)
	})

	return room, nil
}

// tick is one clock fire for a room: drain the input buffer, advance the
// engine, bump the tick counter, and emit a snapshot on every Nth fire. A
// fire that races teardown finds the room gone or no longer running and
// does nothing.
func (m *Manager) tick(roomID string) {
	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	room.mu.Lock()
	if room.status != StatusRunning || room.engine == nil {
		room.mu.Unlock()
		return
	}

	inputs := room.pending
	room.pending = nil

	st := room.engine.Update(m.now(), inputs)
	room.state = st
	room.tick++

	var snap *Snapshot
	room.emitIn++
	if room.emitIn >= m.snapshotEvery {
		room.emitIn = 0
		snap = &Snapshot{
			Tick:      room.tick,
			State:     st,
			Timestamp: m.now().UnixMilli(),
		}
	}

	finish := room.engine.GameOver() && !room.finishing
	if finish {
		room.finishing = true
	}
	room.mu.Unlock()

	if snap != nil && m.broadcaster != nil {
		m.broadcaster.BroadcastState(roomID, *snap)
	}

	if finish {
		// Finish stops the clock synchronously; from inside a fire that
		// must happen on a fresh goroutine.
		go m.Finish(roomID)
	}
}

// PushInput appends an admitted controller event to the room's pending
// buffer. Events arriving while the room is not running are dropped: there
// is no simulation to consume them.
func (m *Manager) PushInput(roomID string, in engine.Input) error {
	if in.Malformed() {
		return ErrMalformedInput
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.status == StatusRunning {
		room.pending = append(room.pending, in)
	}
	return nil
}

// RoomState returns the room's latest snapshot on demand, e.g. for a
// display that just reconnected.
func (m *Manager) RoomState(roomID string) (Snapshot, error) {
	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return Snapshot{
		Tick:      room.tick,
		State:     room.state,
		Timestamp: m.now().UnixMilli(),
	}, nil
}

// Finish transitions a room to finished, stops its clock, and records the
// match. Finishing an already-finished or unknown room is a no-op.
func (m *Manager) Finish(roomID string) error {
	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	room.mu.Lock()
	if room.status == StatusFinished {
		room.mu.Unlock()
		return nil
	}

	wasRunning := room.status == StatusRunning
	room.status = StatusFinished
	room.finishedAt = m.now()
	clock := room.clock
	room.clock = nil

	var rec *MatchRecord
	if wasRunning && room.engine != nil {
		rec = m.buildMatchRecord(room)
	}
	room.mu.Unlock()

	if clock != nil {
		clock.Stop()
	}

	// Persistence sits outside the hot tick path; a failure here never
	// rolls back the lifecycle transition.
	if rec != nil && m.recorder != nil {
		if err := m.recorder.RecordMatch(*rec); err != nil {
			log.Printf("Failed to record match for room %s: %v", roomID, err)
		}
	}

	return nil
}

// buildMatchRecord assembles the persistence payload. Caller holds the room
// lock.
func (m *Manager) buildMatchRecord(room *Room) *MatchRecord {
	scores := room.engine.Scores()
	players := make([]PlayerResult, len(room.players))
	for i, p := range room.players {
		players[i] = PlayerResult{UserID: p.UserID, Name: p.Name}
		if i < len(scores) {
			players[i].Score = scores[i]
		}
	}

	var winner string
	if w := room.engine.Winner(); w >= 0 && w < len(room.players) {
		winner = room.players[w].UserID
	}

	return &MatchRecord{
		RoomID:       room.ID,
		GameID:       room.GameID,
		Players:      players,
		WinnerUserID: winner,
		DurationMs:   m.now().Sub(room.startedAt).Milliseconds(),
		FinishedAt:   m.now(),
	}
}

// CleanupFinished removes finished rooms older than maxAge and returns how
// many were pruned.
func (m *Manager) CleanupFinished(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, room := range m.rooms {
		room.mu.Lock()
		stale := room.status == StatusFinished && room.finishedAt.Before(cutoff)
		room.mu.Unlock()
		if stale {
			delete(m.rooms, id)
			removed++
		}
	}
	return removed
}

// Shutdown finishes every room, stopping all clocks. Used at process exit.
func (m *Manager) Shutdown() {
	for _, room := range m.List() {
		if err := m.Finish(room.ID); err != nil {
			log.Printf("Failed to finish room %s during shutdown: %v", room.ID, err)
		}
	}
}

// uniqueJoinCode generates a 4-digit join code not held by any registered
// room. Caller holds the manager lock.
func (m *Manager) uniqueJoinCode() (string, error) {
	for i := 0; i < joinCodeAttempts; i++ {
		code, err := generateJoinCode()
		if err != nil {
			return "", err
		}
		if !m.joinCodeInUse(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a unique join code")
}

func (m *Manager) joinCodeInUse(code string) bool {
	for _, room := range m.rooms {
		if room.JoinCode == code {
			return true
		}
	}
	return false
}

// generateJoinCode returns a random 4-digit code, 1000-9999.
func generateJoinCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	return fmt.Sprintf("%d", 1000+n.Int64()), nil
}
