package optimize

import "fmt"

// Config tunes the transition-matrix solve.
type Config struct {
	// StdCorrection weights the latency standard deviation in the objective.
	StdCorrection float64 `yaml:"std_correction" env:"STD_CORRECTION"`
	// SelfRetentionFloor is the minimum diagonal entry of every row.
	SelfRetentionFloor float64 `yaml:"self_retention_floor" env:"SELF_RETENTION_FLOOR"`
	// EpochsPerRound feeds the computation term of the latency model.
	EpochsPerRound int `yaml:"epochs_per_round" env:"EPOCHS_PER_ROUND"`

	OuterIterations int     `yaml:"outer_iterations" env:"OUTER_ITERATIONS"`
	PenaltyWeight   float64 `yaml:"penalty_weight" env:"PENALTY_WEIGHT"` // initial weight
	PenaltyGrowth   float64 `yaml:"penalty_growth" env:"PENALTY_GROWTH"`
	MaxEvaluations  int     `yaml:"max_evaluations" env:"MAX_EVALUATIONS"` // per outer iteration
	Tolerance       float64 `yaml:"tolerance" env:"TOLERANCE"`
}

// DefaultConfig returns the planner defaults.
func DefaultConfig() Config {
	return Config{
		StdCorrection:      10,
		SelfRetentionFloor: 0.01,
		EpochsPerRound:     10,
		OuterIterations:    4,
		PenaltyWeight:      100,
		PenaltyGrowth:      10,
		MaxEvaluations:     400,
		Tolerance:          1e-6,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.StdCorrection < 0:
		return fmt.Errorf("optimizer std_correction must be >= 0, got %v", c.StdCorrection)
	case !(c.SelfRetentionFloor >= 0 && c.SelfRetentionFloor <= 1):
		return fmt.Errorf("optimizer self_retention_floor must be in [0, 1], got %v", c.SelfRetentionFloor)
	case c.EpochsPerRound < 0:
		return fmt.Errorf("optimizer epochs_per_round must be >= 0, got %d", c.EpochsPerRound)
	case c.OuterIterations < 1:
		return fmt.Errorf("optimizer outer_iterations must be >= 1, got %d", c.OuterIterations)
	case !(c.PenaltyWeight > 0) || c.PenaltyGrowth < 1:
		return fmt.Errorf("optimizer penalty_weight must be positive and penalty_growth >= 1, got %v / %v", c.PenaltyWeight, c.PenaltyGrowth)
	case c.MaxEvaluations < 1:
		return fmt.Errorf("optimizer max_evaluations must be >= 1, got %d", c.MaxEvaluations)
	case !(c.Tolerance > 0):
		return fmt.Errorf("optimizer tolerance must be positive, got %v", c.Tolerance)
	}
	return nil
}
