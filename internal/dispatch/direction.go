package dispatch

import "fmt"

// Direction is where a sound came from, relative to the wearer.
type Direction int

const (
	Front Direction = 1
	Back  Direction = 2
	Left  Direction = 3
	Right Direction = 4
)

func (d Direction) String() string {
	switch d {
	case Front:
		return "front"
	case Back:
		return "back"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the four known directions.
func (d Direction) Valid() bool {
	return d >= Front && d <= Right
}

// ParseDirection recognizes a direction message: the payload must be exactly
// one of "1".."4".
func ParseDirection(payload string) (Direction, bool) {
	if len(payload) != 1 || payload[0] < '1' || payload[0] > '4' {
		return 0, false
	}
	return Direction(payload[0] - '0'), true
}

// Gate holds the current direction used to decide whether captions are
// shown. Only the Dispatcher that owns it changes it.
type Gate struct {
	current Direction
}

func newGate() *Gate {
	return &Gate{current: Front}
}

// Current returns the most recent direction; Front until the first
// direction message.
func (g *Gate) Current() Direction { return g.current }

// Open reports whether captions are currently shown.
func (g *Gate) Open() bool { return g.current == Front }

func (g *Gate) set(d Direction) { g.current = d }
