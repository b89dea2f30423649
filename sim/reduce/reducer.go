// Package reduce maps each device's samples onto K surrogate clusters so the
// optimizer plans over K rows instead of the full label space.
//
// A Reducer is fitted once per round per group on a small representative
// sample: LDA projects features onto the most class-discriminative axes, then
// k-means finds K centres in that space. Devices are then assigned by nearest
// centre on their own data.
package reduce

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/shufflefl/sim"
)

var (
	// ErrFeatureMismatch is returned when samples in a group do not share a
	// feature dimension.
	ErrFeatureMismatch = errors.New("samples have inconsistent feature dimensions")

	ErrFitFailed = errors.New("reducer fit failed")
)

// Config controls the reducer fit.
type Config struct {
	// SamplePercentage is the fraction of every device drawn for the fit.
	SamplePercentage float64 `yaml:"sample_percentage" env:"SAMPLE_PERCENTAGE"`
	// Components is the maximum number of LDA axes kept.
	Components    int `yaml:"components" env:"COMPONENTS"`
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
}

// DefaultConfig returns the reducer defaults: 10% sample, 4 axes, 100 Lloyd iterations.
func DefaultConfig() Config {
	return Config{SamplePercentage: 0.1, Components: 4, MaxIterations: 100}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if !(c.SamplePercentage > 0 && c.SamplePercentage <= 1) {
		return fmt.Errorf("reducer sample_percentage must be in (0, 1], got %v", c.SamplePercentage)
	}
	if c.Components < 1 {
		return fmt.Errorf("reducer components must be >= 1, got %d", c.Components)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("reducer max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	return nil
}

// Reducer holds a fitted projection and cluster centres.
type Reducer struct {
	dim        int
	projection *mat.Dense // nil: features are clustered unprojected
	centers    [][]float64
	iterations int
	sampleSize int
}

// Fit draws the representative sample from g and fits the reducer. When the
// sample holds fewer than K points the whole group dataset is used instead.
// An empty group yields an unfitted reducer that assigns nothing.
func Fit(g *sim.Group, cfg Config, rng *rand.Rand) (*Reducer, error) {
	k := g.NumClusters()
	r := &Reducer{}

	dim, err := featureDim(g)
	if err != nil {
		return nil, fmt.Errorf("group %d: %w", g.ID, err)
	}
	if dim < 0 {
		logrus.WithField("group", g.ID).Debug("reducer: empty group, skipping fit")
		return r, nil
	}
	r.dim = dim

	sample := g.SamplePercentage(cfg.SamplePercentage, true, rng)
	if len(sample) < k {
		sample = g.SamplePercentage(1, false, nil)
	}
	r.sampleSize = len(sample)

	x := make([][]float64, len(sample))
	labels := make([]int, len(sample))
	for i, s := range sample {
		x[i] = s.Features
		labels[i] = s.Label
	}

	r.projection, err = fitLDA(x, labels, cfg.Components)
	if err != nil {
		return nil, fmt.Errorf("group %d: %w", g.ID, err)
	}

	projected := make([][]float64, len(x))
	for i, row := range x {
		projected[i] = r.project(row)
	}
	r.centers, r.iterations = kMeans(projected, k, cfg.MaxIterations, rng)

	logrus.WithFields(logrus.Fields{
		"group":      g.ID,
		"k":          k,
		"sample":     r.sampleSize,
		"components": r.Components(),
		"iterations": r.iterations,
	}).Debug("reducer fitted")
	return r, nil
}

// featureDim returns the shared feature dimension of every sample in g, or -1
// when the group holds no samples.
func featureDim(g *sim.Group) (int, error) {
	dim := -1
	for _, d := range g.Devices {
		for _, s := range d.Dataset {
			switch {
			case dim < 0:
				dim = len(s.Features)
			case len(s.Features) != dim:
				return 0, fmt.Errorf("%w: device %d has %d features, want %d", ErrFeatureMismatch, d.ID(), len(s.Features), dim)
			}
		}
	}
	return dim, nil
}

// Fitted reports whether centres exist.
func (r *Reducer) Fitted() bool { return len(r.centers) > 0 }

// Components returns the number of projected axes (the raw dimension when
// LDA was skipped).
func (r *Reducer) Components() int {
	if r.projection == nil {
		return r.dim
	}
	_, c := r.projection.Dims()
	return c
}

// SampleSize is the number of samples the fit used.
func (r *Reducer) SampleSize() int { return r.sampleSize }

func (r *Reducer) project(features []float64) []float64 {
	if r.projection == nil {
		return features
	}
	var out mat.VecDense
	out.MulVec(r.projection.T(), mat.NewVecDense(len(features), features))
	return out.RawVector().Data
}

// Predict returns the nearest centre for a feature vector.
func (r *Reducer) Predict(features []float64) int {
	if !r.Fitted() {
		return 0
	}
	return nearest(r.centers, r.project(features))
}

// Assign sets d's cluster ids from its current dataset. Devices without data
// get an empty assignment.
func (r *Reducer) Assign(d *sim.Device) error {
	clusters := make([]int, len(d.Dataset))
	for i, s := range d.Dataset {
		if r.Fitted() && len(s.Features) != r.dim {
			return fmt.Errorf("%w: device %d sample %d has %d features, want %d",
				ErrFeatureMismatch, d.ID(), i, len(s.Features), r.dim)
		}
		clusters[i] = r.Predict(s.Features)
	}
	d.Clusters = clusters
	return nil
}

// Apply assigns every device of g.
func (r *Reducer) Apply(g *sim.Group) error {
	for _, d := range g.Devices {
		if err := r.Assign(d); err != nil {
			return fmt.Errorf("group %d: %w", g.ID, err)
		}
	}
	return nil
}

// Reduce fits a reducer on g and assigns every device, moving the group
// through the reducing phase.
func Reduce(g *sim.Group, cfg Config, rng *rand.Rand) (*Reducer, error) {
	g.SetPhase(sim.PhaseReducing)
	r, err := Fit(g, cfg, rng)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(g); err != nil {
		return nil, err
	}
	return r, nil
}
