package traffic

import "fmt"

// Car is a single vehicle from the schedule. It is passed by value and never
// modified after it is created.
type Car struct {
	ID    int
	Entry Direction
	Exit  Direction
}

// Turn returns the kind of turn the car makes.
func (c Car) Turn() Turn {
	return TurnOf(c.Entry, c.Exit)
}

func (c Car) String() string {
	return fmt.Sprintf("car %d (%s -> %s)", c.ID, c.Entry, c.Exit)
}
