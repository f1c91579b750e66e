// Package traffic holds the value types shared by the intersection: compass
// directions, turns, quadrants and cars, plus the path planner that maps a
// car's route onto the quadrants it occupies.
package traffic

import "fmt"

// Direction is a side of the intersection. The ordinal values are part of the
// schedule and record formats and must not change.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// NumDirections is the number of sides, lanes and quadrants.
const NumDirections = 4

// Directions lists every direction in ordinal order.
var Directions = [NumDirections]Direction{North, East, South, West}

func (d Direction) String() string {
	switch d {
	case North:
		return "North"
	case East:
		return "East"
	case South:
		return "South"
	case West:
		return "West"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the four compass directions.
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

// mod4 is the non-negative remainder of v modulo 4.
func mod4(v int) int {
	return ((v % NumDirections) + NumDirections) % NumDirections
}

// Turn classifies a route by the angular difference between entry and exit.
type Turn int

const (
	UTurn Turn = iota
	Left
	Straight
	Right
)

func (t Turn) String() string {
	switch t {
	case UTurn:
		return "U-turn"
	case Left:
		return "Left"
	case Straight:
		return "Straight"
	case Right:
		return "Right"
	default:
		return fmt.Sprintf("Turn(%d)", int(t))
	}
}

// TurnOf classifies the route from entry to exit using (exit - entry) mod 4:
// 0 is a U-turn, 1 a left turn, 2 straight through and 3 a right turn.
func TurnOf(entry, exit Direction) Turn {
	return Turn(mod4(int(exit) - int(entry)))
}
