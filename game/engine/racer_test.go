package engine

import (
	"math/rand"
	"testing"
	"time"
)

// zeroSpawnRand always rolls high so no obstacles spawn during a test.
// The value stays below 1<<63-1 because Float64 resamples forever when the
// quotient rounds to exactly 1.0.
type zeroSpawnSource struct{}

func (zeroSpawnSource) Int63() int64 { return 1<<63 - 1<<10 }
func (zeroSpawnSource) Seed(int64)   {}

func noSpawnRand() *rand.Rand {
	return rand.New(zeroSpawnSource{})
}

func TestNewDuelRacerInitialState(t *testing.T) {
	d := NewDuelRacer(testPlayers(), testRand())

	st := d.State().(*DuelRacerState)
	if len(st.Cars) != 2 {
		t.Fatalf("Expected 2 cars, got %d", len(st.Cars))
	}
	if st.Cars[0].Lane != 0 || st.Cars[1].Lane != 1 {
		t.Errorf("Expected lanes 0 and 1, got %d and %d", st.Cars[0].Lane, st.Cars[1].Lane)
	}
	if st.Winner != -1 || st.GameOver {
		t.Errorf("Expected fresh race, got winner=%d gameOver=%v", st.Winner, st.GameOver)
	}
}

func TestDuelRacerLaneSwitchClamps(t *testing.T) {
	d := NewDuelRacer(testPlayers(), noSpawnRand())

	left := Input{ControllerID: "ctrl-a", T: 1, E: EventButtonDown, B: ButtonLeft}
	st := d.Update(time.Now(), []Input{left, left, left}).(*DuelRacerState)
	if st.Cars[0].Lane != 0 {
		t.Errorf("Expected car clamped to lane 0, got %d", st.Cars[0].Lane)
	}

	right := Input{ControllerID: "ctrl-a", T: 2, E: EventButtonDown, B: ButtonRight}
	st = d.Update(time.Now(), []Input{right, right, right}).(*DuelRacerState)
	if st.Cars[0].Lane != racerLaneCount-1 {
		t.Errorf("Expected car clamped to lane %d, got %d", racerLaneCount-1, st.Cars[0].Lane)
	}
}

func TestDuelRacerBoostDecays(t *testing.T) {
	d := NewDuelRacer(testPlayers(), noSpawnRand())

	boost := Input{ControllerID: "ctrl-a", T: 1, E: EventButtonDown, B: ButtonBoost}
	st := d.Update(time.Now(), []Input{boost}).(*DuelRacerState)
	if st.Cars[0].Boost >= racerBoostMultiplier {
		t.Errorf("Expected boost to start decaying, got %v", st.Cars[0].Boost)
	}

	for i := 0; i < 20; i++ {
		st = d.Update(time.Now(), nil).(*DuelRacerState)
	}
	if st.Cars[0].Boost != 0 {
		t.Errorf("Expected boost fully decayed, got %v", st.Cars[0].Boost)
	}
	if st.Cars[0].Y <= st.Cars[1].Y {
		t.Errorf("Boosted car should be ahead: %v vs %v", st.Cars[0].Y, st.Cars[1].Y)
	}
}

func TestDuelRacerObstacleCollisionSlowsCar(t *testing.T) {
	d := NewDuelRacer(testPlayers(), noSpawnRand())

	st := d.State().(*DuelRacerState)
	st.Obstacles = []RacerObstacle{{Lane: 0, Y: st.Cars[0].Y}}
	if err := d.SetState(st); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	next := d.Update(time.Now(), nil).(*DuelRacerState)
	if next.Cars[0].Speed >= racerBaseSpeed {
		t.Errorf("Expected car slowed after collision, got speed %v", next.Cars[0].Speed)
	}
	if len(next.Obstacles) != 0 {
		t.Errorf("Expected obstacle consumed by collision, %d left", len(next.Obstacles))
	}
}

func TestDuelRacerSpeedFloor(t *testing.T) {
	d := NewDuelRacer(testPlayers(), noSpawnRand())

	st := d.State().(*DuelRacerState)
	st.Cars[0].Speed = racerMinSpeed
	st.Obstacles = []RacerObstacle{{Lane: 0, Y: st.Cars[0].Y}}
	if err := d.SetState(st); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	next := d.Update(time.Now(), nil).(*DuelRacerState)
	if next.Cars[0].Speed < racerMinSpeed {
		t.Errorf("Speed fell below floor: %v", next.Cars[0].Speed)
	}
}

func TestDuelRacerFinishLineEndsRace(t *testing.T) {
	d := NewDuelRacer(testPlayers(), noSpawnRand())

	st := d.State().(*DuelRacerState)
	st.Cars[1].Y = racerFinishLine - 0.001
	if err := d.SetState(st); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	next := d.Update(time.Now(), nil).(*DuelRacerState)
	if !next.GameOver {
		t.Fatal("Expected game over after crossing the finish line")
	}
	if next.Winner != 1 {
		t.Errorf("Expected winner index 1, got %d", next.Winner)
	}
	if d.Winner() != 1 {
		t.Errorf("Engine Winner() = %d, want 1", d.Winner())
	}

	// Post-terminal updates leave the state untouched.
	frozen := d.Update(time.Now(), []Input{
		{ControllerID: "ctrl-a", T: 3, E: EventButtonDown, B: ButtonBoost},
	}).(*DuelRacerState)
	if frozen.Cars[0].Y != next.Cars[0].Y || frozen.Cars[0].Boost != next.Cars[0].Boost {
		t.Error("Update after game over mutated state")
	}
}

func TestDuelRacerObstaclesSpawnAndCull(t *testing.T) {
	d := NewDuelRacer(testPlayers(), testRand())

	spawned := false
	for i := 0; i < 500 && !spawned; i++ {
		st := d.Update(time.Now(), nil).(*DuelRacerState)
		if st.GameOver {
			break
		}
		spawned = len(st.Obstacles) > 0
		for _, obs := range st.Obstacles {
			if obs.Y >= racerObstacleCullY {
				t.Fatalf("Obstacle survived past cull line: y=%v", obs.Y)
			}
			if obs.Lane < 0 || obs.Lane >= racerLaneCount {
				t.Fatalf("Obstacle spawned in invalid lane %d", obs.Lane)
			}
		}
	}
	if !spawned {
		t.Error("Expected at least one obstacle spawn over 500 ticks")
	}
}
