package engine

// Controller event kinds as sent on the wire.
const (
	EventButtonDown = "btnDown"
	EventButtonUp   = "btnUp"
	EventTilt       = "tilt"
	EventMove       = "move"
)

// Button names understood by the built-in games.
const (
	ButtonUp    = "up"
	ButtonDown  = "down"
	ButtonLeft  = "left"
	ButtonRight = "right"
	ButtonBoost = "boost"
)

// Input is a single controller event, tagged by the admission layer with the
// controller and user it came from. Inputs are transient: they live in a
// room's pending buffer until the next tick drains them.
type Input struct {
	ControllerID string  `json:"controllerId"`
	UserID       string  `json:"userId"`
	T            int64   `json:"t"`
	E            string  `json:"e"`
	B            string  `json:"b,omitempty"`
	X            float64 `json:"x,omitempty"`
	Y            float64 `json:"y,omitempty"`
}

// Malformed reports whether the event is missing its client timestamp or
// event kind.
func (in Input) Malformed() bool {
	return in.T == 0 || in.E == ""
}

// PlayerSlot binds a roster position to the controller that drives it.
// Slot order is the room's join order and is frozen when the game starts.
type PlayerSlot struct {
	UserID       string
	ControllerID string
	Name         string
}

// controllerIndex maps a controller ID to its player slot so an engine can
// attribute events to the right player. Events from unknown controllers
// resolve to -1 and are ignored.
func controllerIndex(players []PlayerSlot) map[string]int {
	idx := make(map[string]int, len(players))
	for i, p := range players {
		idx[p.ControllerID] = i
	}
	return idx
}

func lookupPlayer(idx map[string]int, controllerID string) int {
	if i, ok := idx[controllerID]; ok {
		return i
	}
	return -1
}
