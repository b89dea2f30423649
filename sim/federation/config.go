package federation

import (
	"fmt"
	"strings"

	"github.com/inference-sim/shufflefl/sim"
	"github.com/inference-sim/shufflefl/sim/dataset"
	"github.com/inference-sim/shufflefl/sim/optimize"
	"github.com/inference-sim/shufflefl/sim/reduce"
	"github.com/inference-sim/shufflefl/sim/trace"
)

// Config is the full simulation configuration. It is loaded from YAML, then
// overridden from SHUFFLEFL_* environment variables and CLI flags.
type Config struct {
	Users   int   `yaml:"users" env:"USERS"`
	Devices int   `yaml:"devices" env:"DEVICES"` // fleet size, split evenly across users
	Rounds  int   `yaml:"rounds" env:"ROUNDS"`
	Seed    int64 `yaml:"seed" env:"SEED"`

	// RunID namespaces checkpoints and tags the trace. Empty generates a fresh
	// id; set it to resume a checkpointed run.
	RunID string `yaml:"run_id" env:"RUN_ID"`

	ShrinkageRatio float64 `yaml:"shrinkage_ratio" env:"SHRINKAGE_RATIO"`
	LocalEpochs    int     `yaml:"local_epochs" env:"LOCAL_EPOCHS"`
	KDEpochs       int     `yaml:"kd_epochs" env:"KD_EPOCHS"`
	KDPercentage   float64 `yaml:"kd_percentage" env:"KD_PERCENTAGE"`

	// BaseScalingFactor multiplies every adaptive scaling factor the aggregator sends.
	BaseScalingFactor float64 `yaml:"base_scaling_factor" env:"BASE_SCALING_FACTOR"`

	// Parallelism is the number of groups planned and trained concurrently.
	Parallelism int `yaml:"parallelism" env:"PARALLELISM"`

	// Baseline disables model adaptation and shuffling; groups average their
	// device models and the server averages groups uniformly.
	Baseline bool `yaml:"baseline" env:"BASELINE"`

	TraceLevel string `yaml:"trace_level" env:"TRACE_LEVEL"`

	Profiles  sim.ProfileRanges `yaml:"profiles"`
	Dataset   dataset.Config    `yaml:"dataset" envPrefix:"DATASET_"`
	Reducer   reduce.Config     `yaml:"reducer" envPrefix:"REDUCER_"`
	Optimizer optimize.Config   `yaml:"optimizer" envPrefix:"OPTIMIZER_"`
}

// DefaultConfig returns 3 users over 9 devices for 10 rounds.
func DefaultConfig() Config {
	return Config{
		Users:             3,
		Devices:           9,
		Rounds:            10,
		Seed:              42,
		ShrinkageRatio:    0.3,
		LocalEpochs:       10,
		KDEpochs:          10,
		KDPercentage:      0.2,
		BaseScalingFactor: 0.5,
		Parallelism:       1,
		TraceLevel:        string(trace.TraceLevelRounds),
		Profiles:          sim.DefaultProfileRanges(),
		Dataset:           dataset.DefaultConfig(),
		Reducer:           reduce.DefaultConfig(),
		Optimizer:         optimize.DefaultConfig(),
	}
}

// Validate checks value ranges of the whole configuration.
func (c Config) Validate() error {
	switch {
	case c.Users < 1:
		return fmt.Errorf("users must be >= 1, got %d", c.Users)
	case c.Devices < c.Users:
		return fmt.Errorf("devices must be >= users (%d), got %d", c.Users, c.Devices)
	case c.Rounds < 1:
		return fmt.Errorf("rounds must be >= 1, got %d", c.Rounds)
	case !(c.ShrinkageRatio > 0 && c.ShrinkageRatio <= 1):
		return fmt.Errorf("shrinkage_ratio must be in (0, 1], got %v", c.ShrinkageRatio)
	case c.LocalEpochs < 0 || c.KDEpochs < 0:
		return fmt.Errorf("local_epochs and kd_epochs must be >= 0, got %d / %d", c.LocalEpochs, c.KDEpochs)
	case !(c.KDPercentage >= 0 && c.KDPercentage <= 1):
		return fmt.Errorf("kd_percentage must be in [0, 1], got %v", c.KDPercentage)
	case !(c.BaseScalingFactor > 0):
		return fmt.Errorf("base_scaling_factor must be positive, got %v", c.BaseScalingFactor)
	case strings.Contains(c.RunID, "/"):
		return fmt.Errorf("run_id must not contain '/', got %q", c.RunID)
	case c.Parallelism < 1:
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	case !trace.IsValidTraceLevel(c.TraceLevel):
		return fmt.Errorf("unknown trace_level %q; valid: none, rounds, full", c.TraceLevel)
	}
	if err := c.Profiles.Validate(); err != nil {
		return fmt.Errorf("profiles: %w", err)
	}
	if err := c.Dataset.Validate(); err != nil {
		return err
	}
	if err := c.Reducer.Validate(); err != nil {
		return err
	}
	return c.Optimizer.Validate()
}
