package intersection

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"crossroads/config"
	"crossroads/logging"
	"crossroads/schedule"
)

const defaultStressTimeout = 30 * time.Second

// StressOptions controls a stress session.
type StressOptions struct {
	// Runs is the number of simulations to execute.
	Runs int
	// Parallel bounds how many simulations run at once. Defaults to GOMAXPROCS.
	Parallel int
	// Timeout bounds a single run. Defaults to 30s.
	Timeout time.Duration
}

// StressReport summarizes a successful stress session.
type StressReport struct {
	Runs      int
	Crossings int
	Elapsed   time.Duration
}

// Stress runs the schedule many times, each run with its own jitter seed
// derived from cfg.Seed, and verifies every result. A run that exceeds its
// timeout fails the session with ErrDeadlock.
func Stress(ctx context.Context, cfg *config.Config, sched *schedule.Schedule, opts StressOptions, simOpts ...Option) (*StressReport, error) {
	if opts.Runs <= 0 {
		return nil, fmt.Errorf("stress runs must be positive, got %d", opts.Runs)
	}
	if opts.Parallel <= 0 {
		opts.Parallel = runtime.GOMAXPROCS(0)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultStressTimeout
	}
	logger := logr.FromContextOrDiscard(ctx)

	results := make([]*Result, opts.Runs)
	sem := semaphore.NewWeighted(int64(opts.Parallel))
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := range opts.Runs {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		runCfg := *cfg
		runCfg.Seed = cfg.Seed + uint64(i)

		g.Go(func() error {
			defer sem.Release(1)

			sim, err := NewSimulation(&runCfg, sched, simOpts...)
			if err != nil {
				return err
			}
			runCtx, cancel := context.WithTimeout(gctx, opts.Timeout)
			defer cancel()

			res, err := sim.Run(runCtx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && gctx.Err() == nil {
					return fmt.Errorf("run %d (seed %d): %w", i, runCfg.Seed, ErrDeadlock)
				}
				return fmt.Errorf("run %d (seed %d): %w", i, runCfg.Seed, err)
			}
			if err := res.Verify(sched); err != nil {
				return fmt.Errorf("run %d (seed %d): %w", i, runCfg.Seed, err)
			}
			results[i] = res
			logger.V(logging.DEBUG).Info("Stress run passed", "index", i, "seed", runCfg.Seed, "elapsed", res.Elapsed)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &StressReport{Runs: opts.Runs, Elapsed: time.Since(start)}
	for _, res := range results {
		report.Crossings += len(res.Crossings)
	}
	return report, nil
}
