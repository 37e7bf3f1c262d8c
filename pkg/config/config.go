// Package config holds the workload settings shared by the bench CLI and
// the stress tests, so both read the same defaults and environment knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/i5heu/GoBoundedQueue/internal/testbench"
)

// Environment variables consulted by FromEnv.
const (
	EnvCapacity   = "GBQ_CAPACITY"
	EnvProducers  = "GBQ_PRODUCERS"
	EnvConsumers  = "GBQ_CONSUMERS"
	EnvItems      = "GBQ_ITEMS"
	EnvDuration   = "GBQ_DURATION"
	EnvIterations = "GBQ_ITERATIONS"
)

type Config struct {
	Capacity     uint64        `json:"capacity"`
	NumProducers int           `json:"num_producers"`
	NumConsumers int           `json:"num_consumers"`
	TotalItems   int           `json:"total_items"`
	Duration     time.Duration `json:"duration"`
	Iterations   int           `json:"iterations"`
}

// Default is the reference transfer workload: 100000 distinct integers
// through a five-slot queue by five writers and three readers.
func Default() Config {
	return Config{
		Capacity:     5,
		NumProducers: 5,
		NumConsumers: 3,
		TotalItems:   100000,
		Duration:     5 * time.Second,
		Iterations:   5,
	}
}

// FromEnv returns base with any GBQ_* variables applied. Values that do not
// parse, or are not positive, are ignored.
func FromEnv(base Config) Config {
	cfg := base
	if v, ok := envInt(EnvCapacity); ok {
		cfg.Capacity = uint64(v)
	}
	if v, ok := envInt(EnvProducers); ok {
		cfg.NumProducers = v
	}
	if v, ok := envInt(EnvConsumers); ok {
		cfg.NumConsumers = v
	}
	if v, ok := envInt(EnvItems); ok {
		cfg.TotalItems = v
	}
	if v, ok := envInt(EnvIterations); ok {
		cfg.Iterations = v
	}
	if s := os.Getenv(EnvDuration); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.Duration = d
		}
	}
	return cfg
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return 0, false
	}
	return i, true
}

// Validate reports every setting that would make a run meaningless.
func (c Config) Validate() error {
	var errs []error
	if c.Capacity < 2 {
		errs = append(errs, fmt.Errorf("capacity %d: must be at least 2", c.Capacity))
	}
	if c.NumProducers < 1 {
		errs = append(errs, fmt.Errorf("producers %d: must be at least 1", c.NumProducers))
	}
	if c.NumConsumers < 1 {
		errs = append(errs, fmt.Errorf("consumers %d: must be at least 1", c.NumConsumers))
	}
	if c.TotalItems <= c.NumProducers || c.TotalItems <= c.NumConsumers {
		errs = append(errs, fmt.Errorf("items %d: must exceed both producer and consumer counts", c.TotalItems))
	}
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration %s: must be positive", c.Duration))
	}
	if c.Iterations < 1 {
		errs = append(errs, fmt.Errorf("iterations %d: must be at least 1", c.Iterations))
	}
	return errors.Join(errs...)
}

// Concurrency is the producer/consumer split the testbench drivers take.
func (c Config) Concurrency() testbench.Config {
	return testbench.Config{
		NumProducers: c.NumProducers,
		NumConsumers: c.NumConsumers,
	}
}
