package engine

import (
	"fmt"
	"math/rand"
	"time"
)

// Reaction blitz tuning.
const (
	reactionSpawnRate      = 0.01
	reactionTargetLifetime = 2 * time.Second
	reactionRoundDuration  = 30 * time.Second
)

// ReactionTarget is a spawned target. AppearedAt is unix milliseconds.
type ReactionTarget struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	AppearedAt int64   `json:"appearedAt"`
}

// ReactionBlitzState is the full simulation state of a reaction-blitz room.
// StartedAt (unix ms) anchors the round timer so a restored state keeps the
// same deadline.
type ReactionBlitzState struct {
	Targets      []ReactionTarget `json:"targets"`
	Scores       []int            `json:"scores"`
	Round        int              `json:"round"`
	ActiveTarget string           `json:"activeTarget,omitempty"`
	GameOver     bool             `json:"gameOver"`
	StartedAt    int64            `json:"startedAt"`
}

func (s *ReactionBlitzState) clone() *ReactionBlitzState {
	out := *s
	out.Targets = append([]ReactionTarget(nil), s.Targets...)
	out.Scores = append([]int(nil), s.Scores...)
	return &out
}

// ReactionBlitz is the reaction-timer game for 1..4 players: hit the button
// while a target is up, fastest press scores. One fixed-length round.
type ReactionBlitz struct {
	state   *ReactionBlitzState
	players map[string]int
	rng     *rand.Rand
}

// NewReactionBlitz creates a reaction engine with one score slot per roster
// entry. The round clock starts at now.
func NewReactionBlitz(players []PlayerSlot, rng *rand.Rand, now time.Time) *ReactionBlitz {
	playerCount := len(players)
	if playerCount < 1 {
		playerCount = 1
	}

	return &ReactionBlitz{
		state: &ReactionBlitzState{
			Scores:    make([]int, playerCount),
			Round:     1,
			StartedAt: now.UnixMilli(),
		},
		players: controllerIndex(players),
		rng:     rng,
	}
}

func (r *ReactionBlitz) GameID() string { return GameReactionBlitz }

func (r *ReactionBlitz) State() State { return r.state.clone() }

func (r *ReactionBlitz) SetState(st State) error {
	rs, ok := st.(*ReactionBlitzState)
	if !ok {
		return fmt.Errorf("reaction_blitz: cannot restore state of type %T", st)
	}
	r.state = rs.clone()
	return nil
}

func (r *ReactionBlitz) GameOver() bool { return r.state.GameOver }

// Winner is the single highest scorer once the round is over, -1 on a tie
// or while the round is still running.
func (r *ReactionBlitz) Winner() int {
	if !r.state.GameOver {
		return -1
	}

	best, winner, ties := -1, -1, 0
	for i, score := range r.state.Scores {
		switch {
		case score > best:
			best, winner, ties = score, i, 1
		case score == best:
			ties++
		}
	}
	if ties > 1 || best <= 0 {
		return -1
	}
	return winner
}

func (r *ReactionBlitz) Scores() []int {
	return append([]int(nil), r.state.Scores...)
}

func (r *ReactionBlitz) Update(now time.Time, inputs []Input) State {
	st := r.state
	if st.GameOver {
		return st.clone()
	}

	nowMs := now.UnixMilli()
	if nowMs-st.StartedAt >= reactionRoundDuration.Milliseconds() {
		st.GameOver = true
		return st.clone()
	}

	// At most one target on screen at a time.
	if st.ActiveTarget == "" && r.rng.Float64() < reactionSpawnRate {
		target := ReactionTarget{
			ID:         fmt.Sprintf("target_%d", nowMs),
			X:          r.rng.Float64(),
			Y:          r.rng.Float64(),
			AppearedAt: nowMs,
		}
		st.Targets = append(st.Targets, target)
		st.ActiveTarget = target.ID
	}

	for _, in := range inputs {
		if in.E != EventButtonDown || st.ActiveTarget == "" {
			continue
		}
		idx := lookupPlayer(r.players, in.ControllerID)
		if idx < 0 || idx >= len(st.Scores) {
			continue
		}

		if target, ok := r.activeTarget(); ok && nowMs-target.AppearedAt < reactionTargetLifetime.Milliseconds() {
			st.Scores[idx]++
			r.removeTarget(st.ActiveTarget)
			st.ActiveTarget = ""
		}
	}

	// Expire unhit targets past their lifetime.
	kept := st.Targets[:0]
	for _, target := range st.Targets {
		if nowMs-target.AppearedAt > reactionTargetLifetime.Milliseconds() {
			if st.ActiveTarget == target.ID {
				st.ActiveTarget = ""
			}
			continue
		}
		kept = append(kept, target)
	}
	st.Targets = kept

	return st.clone()
}

func (r *ReactionBlitz) activeTarget() (ReactionTarget, bool) {
	for _, target := range r.state.Targets {
		if target.ID == r.state.ActiveTarget {
			return target, true
		}
	}
	return ReactionTarget{}, false
}

func (r *ReactionBlitz) removeTarget(id string) {
	kept := r.state.Targets[:0]
	for _, target := range r.state.Targets {
		if target.ID != id {
			kept = append(kept, target)
		}
	}
	r.state.Targets = kept
}
