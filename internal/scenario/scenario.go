// Package scenario loads simulation scenario files: a named set of
// workloads to run against the kernel, the tick rate to drive it at, and
// the kernel version range the scenario was written for.
package scenario

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/keel-rt/keel/internal/kernel"
)

// Workload is one group of threads exercising a kernel facility.
type Workload struct {
	// Kind selects the behavior: sleeper, pingpong, broadcaster or
	// contenders.
	Kind string `yaml:"kind"`
	// Name prefixes the spawned thread names.
	Name string `yaml:"name"`
	// Priority is the thread priority; pingpong and contenders spawn every
	// thread at this priority.
	Priority int `yaml:"priority"`
	// Count is the number of threads, where the kind supports more than
	// its minimum.
	Count int `yaml:"count"`
	// Period is the workload's pacing in ticks: sleep length, broadcast
	// interval, or wait timeout, depending on the kind.
	Period uint64 `yaml:"period"`
}

// Config is a parsed scenario file. Durations are duration strings
// ("1ms", "2s"); use the Get* accessors for parsed values.
type Config struct {
	Name string `yaml:"name"`
	// Requires is a semantic-version constraint the running kernel version
	// must satisfy, e.g. ">= 1.2, < 2".
	Requires     string     `yaml:"requires"`
	TickInterval string     `yaml:"tick_interval"`
	Duration     string     `yaml:"duration"`
	MainPriority int        `yaml:"main_priority"`
	Workloads    []Workload `yaml:"workloads"`
}

// GetTickInterval returns the tick interval as a duration.
func (c *Config) GetTickInterval() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil {
		return time.Millisecond
	}
	return d
}

// GetDuration returns the scenario run time as a duration.
func (c *Config) GetDuration() time.Duration {
	d, err := time.ParseDuration(c.Duration)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// Default returns the scenario used when no file is given: one of each
// workload kind at moderate priorities.
func Default() *Config {
	return &Config{
		Name:         "default",
		TickInterval: "1ms",
		Duration:     "2s",
		MainPriority: kernel.NormalPriority,
		Workloads: []Workload{
			{Kind: "sleeper", Name: "sleeper", Priority: 70, Count: 2, Period: 5},
			{Kind: "pingpong", Name: "pp", Priority: 80, Period: 3},
			{Kind: "broadcaster", Name: "bc", Priority: 90, Count: 2, Period: 7},
			{Kind: "contenders", Name: "mtx", Priority: 75, Count: 3, Period: 2},
		},
	}
}

// Load reads and validates a scenario file. Fields absent from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and the kernel version constraint.
func (c *Config) Validate() error {
	if c.Requires != "" {
		constraint, err := semver.NewConstraint(c.Requires)
		if err != nil {
			return fmt.Errorf("requires %q: %w", c.Requires, err)
		}
		v, err := semver.NewVersion(kernel.Version)
		if err != nil {
			return fmt.Errorf("kernel version %q: %w", kernel.Version, err)
		}
		if !constraint.Check(v) {
			return fmt.Errorf("kernel %s does not satisfy required %q", kernel.Version, c.Requires)
		}
	}
	if d, err := time.ParseDuration(c.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("tick_interval %q must be a positive duration", c.TickInterval)
	}
	if d, err := time.ParseDuration(c.Duration); err != nil || d <= 0 {
		return fmt.Errorf("duration %q must be a positive duration", c.Duration)
	}
	if c.MainPriority <= kernel.IdlePriority || c.MainPriority > kernel.HighPriority {
		return fmt.Errorf("main_priority %d out of range", c.MainPriority)
	}
	for i, w := range c.Workloads {
		if w.Name == "" {
			return fmt.Errorf("workload %d has no name", i)
		}
		if w.Priority <= kernel.IdlePriority || w.Priority > kernel.HighPriority {
			return fmt.Errorf("workload %q priority %d out of range", w.Name, w.Priority)
		}
		if w.Period == 0 {
			return fmt.Errorf("workload %q period must be positive", w.Name)
		}
		switch w.Kind {
		case "sleeper", "broadcaster", "contenders", "pingpong":
		default:
			return fmt.Errorf("workload %q has unknown kind %q", w.Name, w.Kind)
		}
	}
	return nil
}
