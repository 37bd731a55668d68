package engine

import (
	"fmt"
	"math/rand"
	"time"
)

// Game type identifiers. These match the catalog IDs and the ids the web
// clients send when creating a room.
const (
	GamePong          = "pong"
	GameDuelRacer     = "duel_racer"
	GameReactionBlitz = "reaction_blitz"
)

// Engine advances one room's simulation. Implementations are deterministic
// given (state, inputs) and a seeded rng; once a terminal condition is
// reached Update keeps returning the state unchanged.
//
// Engines are not safe for concurrent use. The room clock is the only
// caller of Update, under the room lock.
type Engine interface {
	// GameID returns the game type identifier.
	GameID() string

	// State returns a copy of the current state.
	State() State

	// SetState replaces the current state, e.g. when restoring a room.
	// The value must be the engine's own state case.
	SetState(State) error

	// Update processes one tick: applies the drained inputs, advances the
	// simulation, and returns a copy of the resulting state.
	Update(now time.Time, inputs []Input) State

	// GameOver reports whether a terminal condition has been reached.
	GameOver() bool

	// Winner returns the winning player index, or -1 if there is none.
	Winner() int

	// Scores returns the per-player scores, indexed by roster slot.
	Scores() []int
}

// New instantiates the engine for a game type with the room's frozen
// roster. A nil rng seeds from the wall clock; tests pass a seeded one.
func New(gameID string, players []PlayerSlot, rng *rand.Rand) (Engine, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	switch gameID {
	case GamePong:
		return NewPong(players, rng), nil
	case GameDuelRacer:
		return NewDuelRacer(players, rng), nil
	case GameReactionBlitz:
		return NewReactionBlitz(players, rng, time.Now()), nil
	default:
		return nil, fmt.Errorf("unknown game type %q", gameID)
	}
}
