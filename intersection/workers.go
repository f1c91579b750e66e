package intersection

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/go-logr/logr"

	"crossroads/logging"
	"crossroads/traffic"
)

type role uint64

const (
	arrivalRole role = iota
	crossingRole
)

func (r role) String() string {
	if r == arrivalRole {
		return "arrival"
	}
	return "crossing"
}

// workerRand returns the jitter source of one worker, or nil without jitter.
func (x *Intersection) workerRand(seed uint64, d traffic.Direction, r role) *rand.Rand {
	if x.jitter <= 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, uint64(d)<<1|uint64(r)))
}

// Arrive feeds the pending cars of direction d, earliest first, into its
// lane. It blocks while the lane is full and returns once every pending car
// has been pushed.
func (x *Intersection) Arrive(ctx context.Context, d traffic.Direction, pending []traffic.Car, rng *rand.Rand) error {
	logger := logr.FromContextOrDiscard(ctx)
	l := x.lanes[d]
	if len(pending) != l.Inc() {
		return fmt.Errorf("arrival %s: %d pending cars for a lane expecting %d", d, len(pending), l.Inc())
	}

	logger.V(logging.VERBOSE).Info("Arrival worker started", "cars", l.Inc())
	for len(pending) > 0 {
		car := pending[0]
		pending = pending[1:]

		x.pause(rng)
		if err := l.Push(car); err != nil {
			return fmt.Errorf("arrival %s: car %d: %w", d, car.ID, err)
		}
		x.observers.OnArrive(car)
	}
	logger.V(logging.VERBOSE).Info("Arrival worker finished")
	return nil
}

// CrossLane takes every expected car off the lane of direction d and
// crosses it. No quadrant is held while waiting on the lane.
func (x *Intersection) CrossLane(ctx context.Context, d traffic.Direction, rng *rand.Rand) error {
	logger := logr.FromContextOrDiscard(ctx)
	l := x.lanes[d]

	logger.V(logging.VERBOSE).Info("Crossing worker started", "cars", l.Inc())
	for range l.Inc() {
		car, err := l.Pop()
		if err != nil {
			return fmt.Errorf("crossing %s: %w", d, err)
		}
		if err := x.Cross(ctx, car, rng); err != nil {
			return fmt.Errorf("crossing %s: car %d: %w", d, car.ID, err)
		}
	}
	x.observers.OnLaneDrained(l.Stats())
	logger.V(logging.VERBOSE).Info("Crossing worker finished")
	return nil
}
