// Package dataset generates synthetic labelled data and partitions it across
// devices. Each class is a Gaussian blob around its own random centre, so
// labels are learnable by the reference backend and separable by the reducer.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/inference-sim/shufflefl/sim"
)

// ErrTooFewSamples is returned when a partition would leave a device empty.
var ErrTooFewSamples = errors.New("not enough samples to partition")

// Config describes the synthetic dataset.
type Config struct {
	NumClasses    int     `yaml:"num_classes" env:"NUM_CLASSES"`
	FeatureDim    int     `yaml:"feature_dim" env:"FEATURE_DIM"`
	TrainPerClass int     `yaml:"train_per_class" env:"TRAIN_PER_CLASS"`
	TestPerClass  int     `yaml:"test_per_class" env:"TEST_PER_CLASS"`
	Separation    float64 `yaml:"separation" env:"SEPARATION"` // stddev of class centres
	Noise         float64 `yaml:"noise" env:"NOISE"`           // stddev around a centre

	// ShardsPerDevice > 0 selects label-sorted shard partitioning (non-IID);
	// 0 deals samples uniformly at random (IID).
	ShardsPerDevice int `yaml:"shards_per_device" env:"SHARDS_PER_DEVICE"`
}

// DefaultConfig returns a 10-class, 16-feature dataset split two shards per device.
func DefaultConfig() Config {
	return Config{
		NumClasses:      10,
		FeatureDim:      16,
		TrainPerClass:   180,
		TestPerClass:    30,
		Separation:      4,
		Noise:           1,
		ShardsPerDevice: 2,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.NumClasses < 2:
		return fmt.Errorf("dataset num_classes must be >= 2, got %d", c.NumClasses)
	case c.FeatureDim < 1:
		return fmt.Errorf("dataset feature_dim must be >= 1, got %d", c.FeatureDim)
	case c.TrainPerClass < 1:
		return fmt.Errorf("dataset train_per_class must be >= 1, got %d", c.TrainPerClass)
	case c.TestPerClass < 0:
		return fmt.Errorf("dataset test_per_class must be >= 0, got %d", c.TestPerClass)
	case !(c.Separation > 0) || c.Noise < 0:
		return fmt.Errorf("dataset separation must be positive and noise non-negative, got %v / %v", c.Separation, c.Noise)
	case c.ShardsPerDevice < 0:
		return fmt.Errorf("dataset shards_per_device must be >= 0, got %d", c.ShardsPerDevice)
	}
	return nil
}

// Generate draws a train and a test set from the same class centres. Samples
// are ordered by class.
func Generate(cfg Config, rng *rand.Rand) (train, test []sim.Sample) {
	centres := make([][]float64, cfg.NumClasses)
	for c := range centres {
		centres[c] = make([]float64, cfg.FeatureDim)
		for j := range centres[c] {
			centres[c][j] = rng.NormFloat64() * cfg.Separation
		}
	}
	draw := func(perClass int) []sim.Sample {
		out := make([]sim.Sample, 0, perClass*cfg.NumClasses)
		for c, centre := range centres {
			for i := 0; i < perClass; i++ {
				f := make([]float64, cfg.FeatureDim)
				for j := range f {
					f[j] = centre[j] + rng.NormFloat64()*cfg.Noise
				}
				out = append(out, sim.Sample{Features: f, Label: c})
			}
		}
		return out
	}
	return draw(cfg.TrainPerClass), draw(cfg.TestPerClass)
}

// Partition splits samples across n devices according to cfg.ShardsPerDevice.
func Partition(cfg Config, samples []sim.Sample, n int, rng *rand.Rand) ([][]sim.Sample, error) {
	if cfg.ShardsPerDevice > 0 {
		return PartitionShards(samples, n, cfg.ShardsPerDevice, rng)
	}
	return PartitionIID(samples, n, rng)
}

// PartitionIID shuffles samples and deals them round-robin to n devices.
func PartitionIID(samples []sim.Sample, n int, rng *rand.Rand) ([][]sim.Sample, error) {
	if n < 1 || len(samples) < n {
		return nil, fmt.Errorf("%w: %d samples for %d devices", ErrTooFewSamples, len(samples), n)
	}
	parts := make([][]sim.Sample, n)
	for i, idx := range rng.Perm(len(samples)) {
		parts[i%n] = append(parts[i%n], samples[idx])
	}
	return parts, nil
}

// PartitionShards sorts samples by label, cuts them into n*shardsPerDevice
// contiguous shards and hands each device shardsPerDevice random shards. With
// few shards per device, each device sees only a few labels.
func PartitionShards(samples []sim.Sample, n, shardsPerDevice int, rng *rand.Rand) ([][]sim.Sample, error) {
	shards := n * shardsPerDevice
	if n < 1 || shardsPerDevice < 1 || len(samples) < shards {
		return nil, fmt.Errorf("%w: %d samples for %d shards", ErrTooFewSamples, len(samples), shards)
	}
	sorted := append([]sim.Sample(nil), samples...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Label < sorted[b].Label })

	size := len(sorted) / shards
	parts := make([][]sim.Sample, n)
	for i, shard := range rng.Perm(shards) {
		lo := shard * size
		hi := lo + size
		if shard == shards-1 {
			hi = len(sorted)
		}
		dev := i / shardsPerDevice
		parts[dev] = append(parts[dev], sorted[lo:hi]...)
	}
	return parts, nil
}
