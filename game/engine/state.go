package engine

import (
	"encoding/json"
	"fmt"
)

// State is the tagged union of per-game simulation states. The room clock
// and the broadcast publisher pass it through without inspecting the
// concrete case; only the owning engine and DecodeState know the cases.
type State interface {
	isState()
}

func (*PongState) isState()          {}
func (*DuelRacerState) isState()     {}
func (*ReactionBlitzState) isState() {}

// DecodeState unmarshals a serialized state into the concrete case for the
// given game type. It is the inverse of marshaling a snapshot's State.
func DecodeState(gameID string, data []byte) (State, error) {
	var st State
	switch gameID {
	case GamePong:
		st = &PongState{}
	case GameDuelRacer:
		st = &DuelRacerState{}
	case GameReactionBlitz:
		st = &ReactionBlitzState{}
	default:
		return nil, fmt.Errorf("unknown game type %q", gameID)
	}

	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", gameID, err)
	}
	return st, nil
}
