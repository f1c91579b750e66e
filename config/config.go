// Package config holds the simulation settings and loads them from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"crossroads/logging"
)

const (
	// DefaultLaneCapacity is the number of cars each lane buffers.
	DefaultLaneCapacity = 10
	// defaultLogVerbosity matches logging.DEFAULT.
	defaultLogVerbosity = logging.DEFAULT
)

// Config holds the settings shared by every lane and worker of a simulation.
type Config struct {
	// LaneCapacity is the size of every lane's buffer.
	LaneCapacity int `yaml:"lane_capacity"`

	// AllowUTurns accepts cars whose entry and exit sides are the same.
	AllowUTurns bool `yaml:"allow_u_turns"`

	// CrossingJitter is the upper bound of the random pauses workers take
	// to shake up interleavings. Zero disables pauses.
	CrossingJitter time.Duration `yaml:"crossing_jitter"`

	// Seed feeds the per-worker random sources used for jitter.
	Seed uint64 `yaml:"seed"`

	// LogVerbosity is the highest logr V-level that is emitted.
	LogVerbosity int `yaml:"log_verbosity"`

	// MetricsFile, when set, receives a Prometheus text dump after the run.
	MetricsFile string `yaml:"metrics_file"`
}

// Option is a functional option for configuring a simulation.
type Option func(*Config)

// New creates a Config with the given options, applying defaults and validation.
func New(opts ...Option) (*Config, error) {
	c := defaults()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile reads a YAML config file. Keys missing from the file keep their
// defaults; opts are applied on top of the file.
func LoadFile(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := defaults()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaults() *Config {
	return &Config{
		LaneCapacity: DefaultLaneCapacity,
		LogVerbosity: defaultLogVerbosity,
	}
}

// WithLaneCapacity sets the capacity of every lane.
func WithLaneCapacity(n int) Option {
	return func(c *Config) {
		c.LaneCapacity = n
	}
}

// WithAllowUTurns enables or disables U-turns.
func WithAllowUTurns(allow bool) Option {
	return func(c *Config) {
		c.AllowUTurns = allow
	}
}

// WithCrossingJitter sets the maximum random pause.
func WithCrossingJitter(d time.Duration) Option {
	return func(c *Config) {
		c.CrossingJitter = d
	}
}

// WithSeed sets the jitter seed.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithLogVerbosity sets the log verbosity.
func WithLogVerbosity(v int) Option {
	return func(c *Config) {
		c.LogVerbosity = v
	}
}

// WithMetricsFile sets the metrics dump path.
func WithMetricsFile(path string) Option {
	return func(c *Config) {
		c.MetricsFile = path
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.LaneCapacity <= 0 {
		errs = append(errs, fmt.Errorf("lane_capacity must be positive, got %d", c.LaneCapacity))
	}
	if c.CrossingJitter < 0 {
		errs = append(errs, fmt.Errorf("crossing_jitter must not be negative, got %s", c.CrossingJitter))
	}
	if c.LogVerbosity < 0 {
		errs = append(errs, fmt.Errorf("log_verbosity must not be negative, got %d", c.LogVerbosity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
