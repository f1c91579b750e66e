package traffic

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

// ErrInvalidPath is returned for routes the planner cannot map onto the
// intersection: out-of-range directions, or entry == exit when U-turns are
// not allowed.
var ErrInvalidPath = errors.New("invalid path")

// PathError describes the rejected route. It wraps ErrInvalidPath.
type PathError struct {
	Entry  Direction
	Exit   Direction
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path [%d->%d]: %s", int(e.Entry), int(e.Exit), e.Reason)
}

func (e *PathError) Unwrap() error {
	return ErrInvalidPath
}

// Quadrant indexes one of the four lockable regions of the intersection.
//
//	     N
//	  1  |  0
//	W ---+--- E
//	  2  |  3
//	     S
type Quadrant int

// QuadrantSet is a bit set of quadrants; bit i is quadrant i.
type QuadrantSet uint8

// AllQuadrants is the set a U-turn occupies.
const AllQuadrants QuadrantSet = 1<<NumDirections - 1

// Has reports whether q is in the set.
func (s QuadrantSet) Has(q Quadrant) bool {
	return s&(1<<q) != 0
}

// Add returns s with q included.
func (s QuadrantSet) Add(q Quadrant) QuadrantSet {
	return s | 1<<q
}

// Len is the number of quadrants in the set.
func (s QuadrantSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

// All yields the quadrants in ascending index order. Every caller that locks
// quadrants iterates in this order.
func (s QuadrantSet) All() iter.Seq[Quadrant] {
	return func(yield func(Quadrant) bool) {
		for q := Quadrant(0); q < NumDirections; q++ {
			if s.Has(q) && !yield(q) {
				return
			}
		}
	}
}

// Backward yields the quadrants in descending index order.
func (s QuadrantSet) Backward() iter.Seq[Quadrant] {
	return func(yield func(Quadrant) bool) {
		for q := Quadrant(NumDirections - 1); q >= 0; q-- {
			if s.Has(q) && !yield(q) {
				return
			}
		}
	}
}

func (s QuadrantSet) String() string {
	parts := make([]string, 0, NumDirections)
	for q := range s.All() {
		parts = append(parts, fmt.Sprint(int(q)))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// entryQuadrant is the quadrant a car coming from side d drives into first.
func entryQuadrant(d Direction) Quadrant {
	return Quadrant(mod4(1 - int(d)))
}

// exitQuadrant is the quadrant a car leaving through side d occupies last.
func exitQuadrant(d Direction) Quadrant {
	return Quadrant(mod4(-int(d)))
}

// Planner maps routes onto quadrant sets.
type Planner struct {
	// AllowUTurns makes entry == exit a legal route over all four quadrants.
	AllowUTurns bool
}

// ComputePath returns the quadrants a car entering from entry and leaving
// through exit passes over. The car sweeps from its entry quadrant towards
// increasing quadrant indices until it reaches its exit quadrant, so a right
// turn covers one quadrant, straight through two, a left turn three and a
// U-turn all four.
func (p Planner) ComputePath(entry, exit Direction) (QuadrantSet, error) {
	if !entry.Valid() || !exit.Valid() {
		return 0, &PathError{Entry: entry, Exit: exit, Reason: "direction out of range"}
	}
	if entry == exit {
		if !p.AllowUTurns {
			return 0, &PathError{Entry: entry, Exit: exit, Reason: "u-turns are not allowed"}
		}
		return AllQuadrants, nil
	}

	var set QuadrantSet
	q, last := entryQuadrant(entry), exitQuadrant(exit)
	for {
		set = set.Add(q)
		if q == last {
			return set, nil
		}
		q = Quadrant(mod4(int(q) + 1))
	}
}

// Validate checks that the planner accepts the car's route.
func (p Planner) Validate(c Car) error {
	_, err := p.ComputePath(c.Entry, c.Exit)
	return err
}
