// Package trace provides per-round records that groups report to the
// aggregator, and summary statistics over a whole run.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// RoundRecord captures one group's planning round.
type RoundRecord struct {
	Round int `yaml:"round" json:"round"`
	Group int `yaml:"group" json:"group"`

	// Matrices is the executed plan, [device][cluster][receiver]. Nil below LevelFull.
	Matrices [][][]float64 `yaml:"matrices,omitempty" json:"matrices,omitempty"`

	DiffCapability  float64 `yaml:"diff_capability" json:"diff_capability"`
	StalenessFactor float64 `yaml:"staleness_factor" json:"staleness_factor"`
	ScalingFactor   float64 `yaml:"scaling_factor" json:"scaling_factor"` // used for this round's objective

	Latencies        []float64 `yaml:"latencies" json:"latencies"`
	ImbalancesBefore []float64 `yaml:"imbalances_before" json:"imbalances_before"` // label imbalance per device
	ImbalancesAfter  []float64 `yaml:"imbalances_after" json:"imbalances_after"`
	DatasetSizes     []int     `yaml:"dataset_sizes" json:"dataset_sizes"`

	TransferredSamples int `yaml:"transferred_samples" json:"transferred_samples"`
	KDPoolSize         int `yaml:"kd_pool_size" json:"kd_pool_size"`

	ObjectiveBefore float64 `yaml:"objective_before" json:"objective_before"`
	ObjectiveAfter  float64 `yaml:"objective_after" json:"objective_after"`
	SolverStatus    string  `yaml:"solver_status,omitempty" json:"solver_status,omitempty"`
	Evaluations     int     `yaml:"evaluations" json:"evaluations"`

	// Group model quality on the held-out test set after distillation.
	Loss     float64 `yaml:"loss" json:"loss"`
	Accuracy float64 `yaml:"accuracy" json:"accuracy"`

	Error string `yaml:"error,omitempty" json:"error,omitempty"` // set when the round was aborted
}

// Failed reports whether the round was aborted.
func (r RoundRecord) Failed() bool {
	return r.Error != ""
}

// MaxLatency is the group's simulated round latency: its slowest device.
func (r RoundRecord) MaxLatency() float64 {
	m := 0.0
	for _, l := range r.Latencies {
		m = max(m, l)
	}
	return m
}

// ServerRecord captures the global model after aggregation.
type ServerRecord struct {
	Round          int       `yaml:"round" json:"round"`
	Loss           float64   `yaml:"loss" json:"loss"`
	Accuracy       float64   `yaml:"accuracy" json:"accuracy"`
	Wallclock      float64   `yaml:"wallclock" json:"wallclock"` // slowest group this round
	ScalingFactors []float64 `yaml:"scaling_factors" json:"scaling_factors"`
}
