package intersection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crossroads/config"
	"crossroads/lane"
	"crossroads/schedule"
	"crossroads/traffic"
)

// Simulation runs one schedule through a fresh intersection.
type Simulation struct {
	cfg       *config.Config
	sched     *schedule.Schedule
	observers []Observer
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithObserver registers an observer for every run of the simulation.
func WithObserver(o Observer) Option {
	return func(s *Simulation) {
		s.observers = append(s.observers, o)
	}
}

// NewSimulation checks every scheduled route before anything is started; an
// invalid route is returned as an error wrapping traffic.ErrInvalidPath.
func NewSimulation(cfg *config.Config, sched *schedule.Schedule, opts ...Option) (*Simulation, error) {
	if cfg == nil {
		return nil, &InitError{Component: "config", Err: errors.New("config is nil")}
	}
	if sched == nil {
		return nil, &InitError{Component: "schedule", Err: errors.New("schedule is nil")}
	}

	planner := traffic.Planner{AllowUTurns: cfg.AllowUTurns}
	for _, car := range sched.Cars() {
		if err := planner.Validate(car); err != nil {
			return nil, fmt.Errorf("car %d: %w", car.ID, err)
		}
	}

	s := &Simulation{cfg: cfg, sched: sched}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result is the outcome of a finished run.
type Result struct {
	RunID     string
	Outputs   [traffic.NumDirections][]traffic.Car // by exit direction
	Crossings []traffic.Car                        // in crossing order
	Lanes     [traffic.NumDirections]lane.Stats    // by entry direction
	Elapsed   time.Duration
}

// Run starts an arrival and a crossing worker per direction and waits for
// all of them. Cancelling ctx aborts the run.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := logr.FromContextOrDiscard(ctx).WithValues("run", runID)

	var counts [traffic.NumDirections]int
	for _, d := range traffic.Directions {
		counts[d] = s.sched.Count(d)
	}
	obs := append([]Observer{traceObserver{logger: logger}}, s.observers...)
	x, err := New(s.cfg, counts, obs...)
	if err != nil {
		return nil, err
	}

	logger.Info("Simulation started", "cars", s.sched.Len(), "laneCapacity", s.cfg.LaneCapacity, "counts", counts)
	start := time.Now()

	stop := context.AfterFunc(ctx, x.Abort)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range traffic.Directions {
		pending := s.sched.Pending(d)
		arrivalCtx := logr.NewContext(gctx, logger.WithValues("lane", d.String(), "role", arrivalRole.String()))
		crossingCtx := logr.NewContext(gctx, logger.WithValues("lane", d.String(), "role", crossingRole.String()))

		g.Go(func() error {
			return x.abortOnError(x.Arrive(arrivalCtx, d, pending, x.workerRand(s.cfg.Seed, d, arrivalRole)))
		})
		g.Go(func() error {
			return x.abortOnError(x.CrossLane(crossingCtx, d, x.workerRand(s.cfg.Seed, d, crossingRole)))
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("simulation aborted: %w", ctx.Err())
		}
		logger.Error(err, "Simulation failed")
		return nil, err
	}

	result := &Result{
		RunID:     runID,
		Outputs:   x.Outputs(),
		Crossings: x.Crossings(),
		Elapsed:   time.Since(start),
	}
	for _, d := range traffic.Directions {
		result.Lanes[d] = x.lanes[d].Stats()
	}
	logger.Info("Simulation finished", "crossings", len(result.Crossings), "elapsed", result.Elapsed)
	return result, nil
}

func (x *Intersection) abortOnError(err error) error {
	if err != nil {
		x.Abort()
	}
	return err
}

// Verify checks a result against the schedule it was produced from: every
// lane passed all of its cars, every car crossed exactly once and landed in
// the output list of its exit direction, and each lane kept schedule order.
func (r *Result) Verify(sched *schedule.Schedule) error {
	var errs []error

	for _, d := range traffic.Directions {
		if got, want := r.Lanes[d].Passed, sched.Count(d); got != want {
			errs = append(errs, fmt.Errorf("lane %s: passed %d of %d cars", d, got, want))
		}
	}

	remaining := make(map[traffic.Car]int)
	for _, car := range sched.Cars() {
		remaining[car]++
	}
	for exit, cars := range r.Outputs {
		for _, car := range cars {
			if car.Exit != traffic.Direction(exit) {
				errs = append(errs, fmt.Errorf("%s found in output list of %s", car, traffic.Direction(exit)))
			}
			if remaining[car] == 0 {
				errs = append(errs, fmt.Errorf("%s crossed but was not expected", car))
				continue
			}
			remaining[car]--
		}
	}
	for car, n := range remaining {
		if n > 0 {
			errs = append(errs, fmt.Errorf("%s never crossed", car))
		}
	}

	for _, d := range traffic.Directions {
		var crossed []traffic.Car
		for _, car := range r.Crossings {
			if car.Entry == d {
				crossed = append(crossed, car)
			}
		}
		if !slices.Equal(crossed, sched.Pending(d)) {
			errs = append(errs, fmt.Errorf("lane %s: cars crossed out of schedule order", d))
		}
	}

	return errors.Join(errs...)
}
