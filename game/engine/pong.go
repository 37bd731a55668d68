package engine

import (
	"fmt"
	"math/rand"
	"time"
)

// Pong tuning. The court is normalized to 0..1 on both axes.
const (
	pongPaddleStep   = 0.02
	pongBallSpeed    = 0.015
	pongPaddleWidth  = 0.02
	pongPaddleHeight = 0.15
	pongPaddleMinY   = 0.1
	pongPaddleMaxY   = 0.9
)

// PongPaddle is one player's paddle and score.
type PongPaddle struct {
	Y     float64 `json:"y"`
	Score int     `json:"score"`
}

// PongBall is the ball's position and velocity.
type PongBall struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// PongState is the full simulation state of a pong room.
type PongState struct {
	Ball    PongBall     `json:"ball"`
	Paddles []PongPaddle `json:"paddles"`
	Width   float64      `json:"width"`
	Height  float64      `json:"height"`
}

func (s *PongState) clone() *PongState {
	out := *s
	out.Paddles = append([]PongPaddle(nil), s.Paddles...)
	return &out
}

// Pong is the two-paddle bounce game. Player slot 0 owns the left paddle,
// slot 1 the right. It has no terminal condition; the round runs until the
// room is finished externally.
type Pong struct {
	state   *PongState
	players map[string]int
	rng     *rand.Rand
}

// NewPong creates a pong engine for the given roster. The court always has
// two paddles; with a single player the right paddle simply never moves.
func NewPong(players []PlayerSlot, rng *rand.Rand) *Pong {
	return &Pong{
		state: &PongState{
			Ball: PongBall{X: 0.5, Y: 0.5, VX: pongBallSpeed, VY: pongBallSpeed},
			Paddles: []PongPaddle{
				{Y: 0.5},
				{Y: 0.5},
			},
			Width:  1,
			Height: 1,
		},
		players: controllerIndex(players),
		rng:     rng,
	}
}

func (p *Pong) GameID() string { return GamePong }

func (p *Pong) State() State { return p.state.clone() }

func (p *Pong) SetState(st State) error {
	ps, ok := st.(*PongState)
	if !ok {
		return fmt.Errorf("pong: cannot restore state of type %T", st)
	}
	p.state = ps.clone()
	return nil
}

func (p *Pong) GameOver() bool { return false }

func (p *Pong) Winner() int { return -1 }

func (p *Pong) Scores() []int {
	scores := make([]int, len(p.state.Paddles))
	for i, pad := range p.state.Paddles {
		scores[i] = pad.Score
	}
	return scores
}

func (p *Pong) Update(_ time.Time, inputs []Input) State {
	st := p.state

	for _, in := range inputs {
		idx := lookupPlayer(p.players, in.ControllerID)
		if idx < 0 || idx >= len(st.Paddles) {
			continue
		}

		if in.E == EventButtonDown || in.E == EventMove {
			switch {
			case in.B == ButtonUp || in.Y < 0:
				st.Paddles[idx].Y = max(pongPaddleMinY, st.Paddles[idx].Y-pongPaddleStep)
			case in.B == ButtonDown || in.Y > 0:
				st.Paddles[idx].Y = min(pongPaddleMaxY, st.Paddles[idx].Y+pongPaddleStep)
			}
		}
	}

	st.Ball.X += st.Ball.VX
	st.Ball.Y += st.Ball.VY

	// Top/bottom walls reflect.
	if st.Ball.Y <= 0 || st.Ball.Y >= st.Height {
		st.Ball.VY = -st.Ball.VY
		st.Ball.Y = max(0, min(st.Height, st.Ball.Y))
	}

	// A paddle only reflects the ball while it is moving toward the paddle
	// and sits inside the paddle's half-height band.
	if st.Ball.VX < 0 &&
		st.Ball.X <= pongPaddleWidth &&
		st.Ball.Y >= st.Paddles[0].Y-pongPaddleHeight/2 &&
		st.Ball.Y <= st.Paddles[0].Y+pongPaddleHeight/2 {
		st.Ball.VX = -st.Ball.VX
		st.Ball.X = pongPaddleWidth
	}

	if st.Ball.VX > 0 &&
		st.Ball.X >= st.Width-pongPaddleWidth &&
		st.Ball.Y >= st.Paddles[1].Y-pongPaddleHeight/2 &&
		st.Ball.Y <= st.Paddles[1].Y+pongPaddleHeight/2 {
		st.Ball.VX = -st.Ball.VX
		st.Ball.X = st.Width - pongPaddleWidth
	}

	// Crossing a side boundary scores for the opponent.
	if st.Ball.X < 0 {
		st.Paddles[1].Score++
		p.resetBall()
	} else if st.Ball.X > st.Width {
		st.Paddles[0].Score++
		p.resetBall()
	}

	return st.clone()
}

// resetBall re-centers the ball with a freshly randomized direction on each
// axis, equal probability of either sign.
func (p *Pong) resetBall() {
	p.state.Ball = PongBall{
		X:  0.5,
		Y:  0.5,
		VX: pongBallSpeed * randomSign(p.rng),
		VY: pongBallSpeed * randomSign(p.rng),
	}
}

func randomSign(rng *rand.Rand) float64 {
	if rng.Float64() > 0.5 {
		return 1
	}
	return -1
}
