// Command crossroads runs a schedule of cars through a four-way intersection
// and prints one "<entry> <exit> <id>" line per crossing.
//
// Usage:
//
//	crossroads [flags] <schedule-file>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"crossroads/config"
	"crossroads/intersection"
	"crossroads/logging"
	"crossroads/metrics"
	"crossroads/schedule"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("crossroads", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath     = fs.String("config", "", "Path to a YAML config file.")
		capacity       = fs.Int("capacity", 0, "Number of cars each lane buffers (overrides the config file).")
		allowUTurns    = fs.Bool("allow-u-turns", false, "Accept cars whose entry and exit directions are the same.")
		jitter         = fs.Duration("jitter", 0, "Upper bound of random worker pauses, e.g. 100us.")
		seed           = fs.Uint64("seed", 0, "Seed for the jitter sources.")
		verbosity      = fs.Int("v", logging.DEFAULT, "Log verbosity (2 default, 3 verbose, 4 debug, 5 trace).")
		metricsFile    = fs.String("metrics-file", "", "Write Prometheus metrics to this file after the run.")
		stressRuns     = fs.Int("stress", 0, "Run the schedule this many times with different seeds and verify every run.")
		stressParallel = fs.Int("stress-parallel", 0, "Simulations running at once in stress mode (default GOMAXPROCS).")
		stressTimeout  = fs.Duration("stress-timeout", 30*time.Second, "Time limit of a single stress run.")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: crossroads [flags] <schedule-file>")
		fs.PrintDefaults()
		return 2
	}

	var opts []config.Option
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "capacity":
			opts = append(opts, config.WithLaneCapacity(*capacity))
		case "allow-u-turns":
			opts = append(opts, config.WithAllowUTurns(*allowUTurns))
		case "jitter":
			opts = append(opts, config.WithCrossingJitter(*jitter))
		case "seed":
			opts = append(opts, config.WithSeed(*seed))
		case "v":
			opts = append(opts, config.WithLogVerbosity(*verbosity))
		case "metrics-file":
			opts = append(opts, config.WithMetricsFile(*metricsFile))
		}
	})

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath, opts...)
	} else {
		cfg, err = config.New(opts...)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := logging.NewLogger(cfg.LogVerbosity, stderr)
	ctx = logr.NewContext(ctx, logger)

	if err := simulate(ctx, cfg, fs.Arg(0), *stressRuns, intersection.StressOptions{
		Runs:     *stressRuns,
		Parallel: *stressParallel,
		Timeout:  *stressTimeout,
	}, stdout); err != nil {
		logger.Error(err, "Simulation failed")
		return 1
	}
	return 0
}

func simulate(ctx context.Context, cfg *config.Config, schedulePath string, stressRuns int, stressOpts intersection.StressOptions, stdout io.Writer) error {
	sched, err := schedule.Load(ctx, schedulePath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	observer := metrics.New()
	observer.MustRegister(registry)
	simOpts := []intersection.Option{intersection.WithObserver(observer)}

	if stressRuns > 0 {
		report, err := intersection.Stress(ctx, cfg, sched, stressOpts, simOpts...)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d runs passed, %d crossings in %s\n", report.Runs, report.Crossings, report.Elapsed)
	} else {
		records := intersection.NewRecordWriter(stdout)
		sim, err := intersection.NewSimulation(cfg, sched, append(simOpts, intersection.WithObserver(records))...)
		if err != nil {
			return err
		}
		res, err := sim.Run(ctx)
		if err != nil {
			return err
		}
		if err := records.Err(); err != nil {
			return fmt.Errorf("failed to write crossing records: %w", err)
		}
		if err := res.Verify(sched); err != nil {
			return errors.Join(errors.New("simulation result failed verification"), err)
		}
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
