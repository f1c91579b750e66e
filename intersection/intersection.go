// Package intersection runs the four-way intersection: one lane per entry
// side, four quadrant locks shared by every crossing, and an arrival and a
// crossing worker per side.
package intersection

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"crossroads/config"
	"crossroads/lane"
	"crossroads/traffic"
)

// Intersection is the shared state of one simulation run. Build it with New
// before starting any worker.
type Intersection struct {
	planner traffic.Planner
	jitter  time.Duration

	// quadrants are binary locks, always taken in ascending quadrant order.
	quadrants [traffic.NumDirections]*semaphore.Weighted
	lanes     [traffic.NumDirections]*lane.Lane

	observers observers

	mu        sync.Mutex
	outputs   [traffic.NumDirections][]traffic.Car // by exit direction
	crossings []traffic.Car
}

// New sets up the quadrant locks and a lane per direction. counts holds the
// number of cars that will enter from each direction.
func New(cfg *config.Config, counts [traffic.NumDirections]int, obs ...Observer) (*Intersection, error) {
	if cfg == nil {
		return nil, &InitError{Component: "config", Err: errors.New("config is nil")}
	}

	x := &Intersection{
		planner:   traffic.Planner{AllowUTurns: cfg.AllowUTurns},
		jitter:    cfg.CrossingJitter,
		observers: observers(obs),
	}
	for q := range x.quadrants {
		x.quadrants[q] = semaphore.NewWeighted(1)
	}
	for _, d := range traffic.Directions {
		l, err := lane.New(d, cfg.LaneCapacity, counts[d])
		if err != nil {
			return nil, &InitError{Component: "lane " + d.String(), Err: err}
		}
		x.lanes[d] = l
	}
	return x, nil
}

// Lane returns the lane of entry direction d.
func (x *Intersection) Lane(d traffic.Direction) *lane.Lane {
	return x.lanes[d]
}

// acquire locks every quadrant in path in ascending order. On failure the
// quadrants taken so far are released.
func (x *Intersection) acquire(ctx context.Context, path traffic.QuadrantSet) error {
	var held traffic.QuadrantSet
	for q := range path.All() {
		if !x.quadrants[q].TryAcquire(1) {
			x.observers.OnQuadrantContended(q)
			if err := x.quadrants[q].Acquire(ctx, 1); err != nil {
				x.release(held)
				return err
			}
		}
		held = held.Add(q)
	}
	return nil
}

func (x *Intersection) release(path traffic.QuadrantSet) {
	for q := range path.Backward() {
		x.quadrants[q].Release(1)
	}
}

// Cross moves car over the intersection. It blocks until every quadrant on
// the car's path is free, records the crossing, and frees the quadrants.
// rng may be nil when no jitter is configured.
func (x *Intersection) Cross(ctx context.Context, car traffic.Car, rng *rand.Rand) error {
	path, err := x.planner.ComputePath(car.Entry, car.Exit)
	if err != nil {
		return err
	}
	if err := x.acquire(ctx, path); err != nil {
		return err
	}
	defer x.release(path)

	x.pause(rng)

	x.mu.Lock()
	x.outputs[car.Exit] = append(x.outputs[car.Exit], car)
	x.crossings = append(x.crossings, car)
	x.observers.OnCross(car, path)
	x.mu.Unlock()
	return nil
}

// Outputs returns copies of the per-exit output lists, in crossing order.
func (x *Intersection) Outputs() [traffic.NumDirections][]traffic.Car {
	x.mu.Lock()
	defer x.mu.Unlock()

	var out [traffic.NumDirections][]traffic.Car
	for d, cars := range x.outputs {
		out[d] = append([]traffic.Car(nil), cars...)
	}
	return out
}

// Crossings returns every crossed car in crossing order.
func (x *Intersection) Crossings() []traffic.Car {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]traffic.Car(nil), x.crossings...)
}

// Abort closes every lane so blocked workers return. Quadrant waits are
// released through the context passed to Cross.
func (x *Intersection) Abort() {
	for _, l := range x.lanes {
		l.Close()
	}
}

// pause sleeps for a random duration up to the configured jitter.
func (x *Intersection) pause(rng *rand.Rand) {
	if x.jitter <= 0 || rng == nil {
		return
	}
	time.Sleep(time.Duration(rng.Int64N(int64(x.jitter) + 1)))
}
