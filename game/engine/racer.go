package engine

import (
	"fmt"
	"math/rand"
	"time"
)

// Duel racer tuning. The track runs 0..1 toward the finish line; obstacles
// scroll the same direction and are culled once past the far edge.
const (
	racerLaneCount         = 2
	racerBaseSpeed         = 0.01
	racerMinSpeed          = 0.005
	racerBoostMultiplier   = 1.5
	racerBoostDecay        = 0.1
	racerObstacleSpeed     = 0.015
	racerObstacleSpawnRate = 0.02
	racerObstacleCullY     = 1.2
	racerCollisionRange    = 0.1
	racerFinishLine        = 1.0
)

// RacerCar is one player's car.
type RacerCar struct {
	Lane  int     `json:"lane"`
	Y     float64 `json:"y"`
	Speed float64 `json:"speed"`
	Boost float64 `json:"boost"`
}

// RacerObstacle is a scrolling obstacle occupying one lane.
type RacerObstacle struct {
	Lane int     `json:"lane"`
	Y    float64 `json:"y"`
}

// DuelRacerState is the full simulation state of a duel-racer room.
// Winner is -1 until a car crosses the finish line.
type DuelRacerState struct {
	Cars       []RacerCar      `json:"cars"`
	Obstacles  []RacerObstacle `json:"obstacles"`
	FinishLine float64         `json:"finishLine"`
	GameOver   bool            `json:"gameOver"`
	Winner     int             `json:"winner"`
}

func (s *DuelRacerState) clone() *DuelRacerState {
	out := *s
	out.Cars = append([]RacerCar(nil), s.Cars...)
	out.Obstacles = append([]RacerObstacle(nil), s.Obstacles...)
	return &out
}

// DuelRacer is the two-lane obstacle racer. First car to the finish line
// wins; afterwards updates are no-ops.
type DuelRacer struct {
	state   *DuelRacerState
	players map[string]int
	rng     *rand.Rand
}

// NewDuelRacer creates a racer engine with one car per roster slot, lanes
// assigned round-robin.
func NewDuelRacer(players []PlayerSlot, rng *rand.Rand) *DuelRacer {
	carCount := len(players)
	if carCount < 2 {
		carCount = 2
	}
	cars := make([]RacerCar, carCount)
	for i := range cars {
		cars[i] = RacerCar{Lane: i % racerLaneCount, Speed: racerBaseSpeed}
	}

	return &DuelRacer{
		state: &DuelRacerState{
			Cars:       cars,
			FinishLine: racerFinishLine,
			Winner:     -1,
		},
		players: controllerIndex(players),
		rng:     rng,
	}
}

func (d *DuelRacer) GameID() string { return GameDuelRacer }

func (d *DuelRacer) State() State { return d.state.clone() }

func (d *DuelRacer) SetState(st State) error {
	rs, ok := st.(*DuelRacerState)
	if !ok {
		return fmt.Errorf("duel_racer: cannot restore state of type %T", st)
	}
	d.state = rs.clone()
	return nil
}

func (d *DuelRacer) GameOver() bool { return d.state.GameOver }

func (d *DuelRacer) Winner() int { return d.state.Winner }

func (d *DuelRacer) Scores() []int {
	// Position along the track doubles as the score readout.
	scores := make([]int, len(d.state.Cars))
	for i, car := range d.state.Cars {
		scores[i] = int(car.Y * 100)
	}
	return scores
}

func (d *DuelRacer) Update(_ time.Time, inputs []Input) State {
	st := d.state
	if st.GameOver {
		return st.clone()
	}

	for _, in := range inputs {
		idx := lookupPlayer(d.players, in.ControllerID)
		if idx < 0 || idx >= len(st.Cars) {
			continue
		}
		if in.E != EventButtonDown {
			continue
		}

		switch in.B {
		case ButtonLeft:
			st.Cars[idx].Lane = max(0, st.Cars[idx].Lane-1)
		case ButtonRight:
			st.Cars[idx].Lane = min(racerLaneCount-1, st.Cars[idx].Lane+1)
		case ButtonBoost:
			st.Cars[idx].Boost = racerBoostMultiplier
		}
	}

	for i := range st.Cars {
		car := &st.Cars[i]
		speed := car.Speed
		if car.Boost > 0 {
			speed *= racerBoostMultiplier
			car.Boost -= racerBoostDecay
			if car.Boost < 0 {
				car.Boost = 0
			}
		}
		car.Y += speed

		// First car past the line wins; lower index breaks same-tick ties.
		if car.Y >= st.FinishLine && !st.GameOver {
			st.GameOver = true
			st.Winner = i
		}
	}

	if d.rng.Float64() < racerObstacleSpawnRate {
		st.Obstacles = append(st.Obstacles, RacerObstacle{
			Lane: d.rng.Intn(racerLaneCount),
		})
	}

	kept := st.Obstacles[:0]
	for _, obs := range st.Obstacles {
		obs.Y += racerObstacleSpeed
		if obs.Y < racerObstacleCullY {
			kept = append(kept, obs)
		}
	}
	st.Obstacles = kept

	for i := range st.Cars {
		car := &st.Cars[i]
		remaining := st.Obstacles[:0]
		for _, obs := range st.Obstacles {
			if obs.Lane == car.Lane && abs(obs.Y-car.Y) < racerCollisionRange {
				// Hit: halve the car's speed and consume the obstacle.
				car.Speed = max(racerMinSpeed, car.Speed*0.5)
				continue
			}
			remaining = append(remaining, obs)
		}
		st.Obstacles = remaining
	}

	return st.clone()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
