// Package schedule reads the list of cars that will arrive at the
// intersection. Each line of a schedule holds three integers:
//
//	<id> <entry direction> <exit direction>
//
// Directions are the ordinals 0 (North), 1 (East), 2 (South) and 3 (West).
package schedule

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"crossroads/logging"
	"crossroads/traffic"
)

// Schedule holds the pending cars of every entry direction in the order they
// were scheduled.
type Schedule struct {
	pending [traffic.NumDirections][]traffic.Car
}

// New returns an empty schedule.
func New() *Schedule {
	return &Schedule{}
}

// Add appends a car to the pending list of its entry direction.
func (s *Schedule) Add(car traffic.Car) error {
	if !car.Entry.Valid() || !car.Exit.Valid() {
		return fmt.Errorf("car %d: direction out of range (%d -> %d)", car.ID, int(car.Entry), int(car.Exit))
	}
	s.pending[car.Entry] = append(s.pending[car.Entry], car)
	return nil
}

// Pending returns a copy of the cars entering from d, earliest first.
func (s *Schedule) Pending(d traffic.Direction) []traffic.Car {
	return append([]traffic.Car(nil), s.pending[d]...)
}

// Count is the number of cars entering from d.
func (s *Schedule) Count(d traffic.Direction) int {
	return len(s.pending[d])
}

// Len is the total number of cars.
func (s *Schedule) Len() int {
	n := 0
	for _, cars := range s.pending {
		n += len(cars)
	}
	return n
}

// Cars returns every car grouped by entry direction.
func (s *Schedule) Cars() []traffic.Car {
	out := make([]traffic.Car, 0, s.Len())
	for _, cars := range s.pending {
		out = append(out, cars...)
	}
	return out
}

// Parse reads a schedule. Blank lines are skipped; any other line must hold
// exactly three integers.
func Parse(ctx context.Context, r io.Reader) (*Schedule, error) {
	logger := logr.FromContextOrDiscard(ctx)
	s := New()

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", line, len(fields))
		}

		var nums [3]int
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", line, i+1, err)
			}
			nums[i] = n
		}

		car := traffic.Car{ID: nums[0], Entry: traffic.Direction(nums[1]), Exit: traffic.Direction(nums[2])}
		if err := s.Add(car); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		logger.V(logging.DEBUG).Info("Car scheduled", "id", car.ID, "from", int(car.Entry), "to", int(car.Exit))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}
	return s, nil
}

// Load parses the schedule file at path.
func Load(ctx context.Context, path string) (*Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule: %w", err)
	}
	defer f.Close()

	s, err := Parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
