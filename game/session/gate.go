package session

import "time"

// InputGate applies the per-connection sliding-window rate limit: at most
// limit accepted events per rolling window. The window restarts once a full
// window has elapsed since it opened.
//
// A gate belongs to a single connection goroutine and needs no locking.
type InputGate struct {
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
}

// NewInputGate creates a gate admitting limit events per window.
func NewInputGate(limit int, window time.Duration) *InputGate {
	return &InputGate{limit: limit, window: window}
}

// Allow reports whether one more event fits in the current window.
func (g *InputGate) Allow(now time.Time) bool {
	if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.window {
		g.windowStart = now
		g.count = 1
		return true
	}

	g.count++
	return g.count <= g.limit
}
