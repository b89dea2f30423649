// Package backend ships a small reference sim.LearningBackend: one centroid
// per class, scored by softmax over negative squared distance. It exists so
// a simulation produces loss and accuracy numbers without a real trainer.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/shufflefl/sim"
)

var (
	ErrUntrained     = errors.New("model has no parameters")
	ErrShapeMismatch = errors.New("weights shape mismatch")
)

var _ sim.LearningBackend = (*Centroid)(nil)

// Centroid is a nearest-class-centroid model. Parameters are NumClasses rows
// of Dim features, flattened row-major.
type Centroid struct {
	NumClasses int
	Dim        int

	// LearningRate is the fraction of the gap to the data mean closed per epoch.
	LearningRate float64
	// QuantizeStep is the grid quantized tiers round parameters onto.
	QuantizeStep float64
	// Temperature softens teacher predictions during distillation.
	Temperature float64
	// SoftTargetWeight mixes teacher soft targets with true labels in Distill.
	SoftTargetWeight float64
}

// NewCentroid returns a backend with the default hyperparameters.
func NewCentroid(numClasses, dim int) *Centroid {
	return &Centroid{
		NumClasses:       numClasses,
		Dim:              dim,
		LearningRate:     0.5,
		QuantizeStep:     1.0 / 16,
		Temperature:      2,
		SoftTargetWeight: 0.25,
	}
}

func (c *Centroid) size() int { return c.NumClasses * c.Dim }

func (c *Centroid) shape() []int { return []int{c.NumClasses, c.Dim} }

func (c *Centroid) check(w sim.Weights) error {
	if w.Empty() {
		return ErrUntrained
	}
	if len(w.Params) != c.size() {
		return fmt.Errorf("%w: got %d params, want %d", ErrShapeMismatch, len(w.Params), c.size())
	}
	return nil
}

// Train moves every class centroid toward the device's class mean for the
// given epochs, starting from init (or directly from the means when init is
// empty), then applies the device's model tier.
func (c *Centroid) Train(ctx context.Context, d *sim.Device, init sim.Weights, epochs int) (sim.Weights, error) {
	if err := ctx.Err(); err != nil {
		return sim.Weights{}, err
	}
	targets := make([][]float64, c.NumClasses)
	weights := make([]float64, c.NumClasses)
	for _, s := range d.Dataset {
		if err := c.accumulate(targets, weights, s, s.Label, 1); err != nil {
			return sim.Weights{}, fmt.Errorf("device %d: %w", d.ID(), err)
		}
	}
	w, err := c.fit(init, targets, weights, epochs)
	if err != nil {
		return sim.Weights{}, fmt.Errorf("device %d: %w", d.ID(), err)
	}
	applyTier(w.Params, d.Tier, c.QuantizeStep)
	return w, nil
}

// Evaluate returns mean cross-entropy and accuracy of w on testset.
func (c *Centroid) Evaluate(ctx context.Context, w sim.Weights, testset []sim.Sample) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := c.check(w); err != nil {
		return 0, 0, err
	}
	if len(testset) == 0 {
		return 0, 0, nil
	}
	var loss float64
	correct := 0
	logits := make([]float64, c.NumClasses)
	for _, s := range testset {
		if len(s.Features) != c.Dim {
			return 0, 0, fmt.Errorf("%w: sample has %d features, want %d", ErrShapeMismatch, len(s.Features), c.Dim)
		}
		c.logits(w.Params, s.Features, 1, logits)
		if s.Label >= 0 && s.Label < c.NumClasses {
			loss += floats.LogSumExp(logits) - logits[s.Label]
		}
		if floats.MaxIdx(logits) == s.Label {
			correct++
		}
	}
	n := float64(len(testset))
	return loss / n, float64(correct) / n, nil
}

// Distill trains student on the KD pool against a mix of true labels and the
// teachers' averaged, temperature-softened predictions. An empty student
// starts from the plain average of the teachers.
func (c *Centroid) Distill(ctx context.Context, student sim.Weights, teachers []sim.Weights, kd []sim.Sample, epochs int) (sim.Weights, error) {
	if err := ctx.Err(); err != nil {
		return sim.Weights{}, err
	}
	var trained []sim.Weights
	for _, t := range teachers {
		if t.Empty() {
			continue
		}
		if err := c.check(t); err != nil {
			return sim.Weights{}, err
		}
		trained = append(trained, t)
	}
	if student.Empty() && len(trained) > 0 {
		updates := make([]Update, len(trained))
		for i, t := range trained {
			updates[i] = Update{Weights: t, NumSamples: 1}
		}
		avg, err := FedAvg(updates)
		if err != nil {
			return sim.Weights{}, err
		}
		student = avg
	}
	if len(trained) == 0 || len(kd) == 0 {
		return student, nil
	}

	targets := make([][]float64, c.NumClasses)
	weights := make([]float64, c.NumClasses)
	soft := make([]float64, c.NumClasses)
	probs := make([]float64, c.NumClasses)
	for _, s := range kd {
		if len(s.Features) != c.Dim {
			return sim.Weights{}, fmt.Errorf("%w: kd sample has %d features, want %d", ErrShapeMismatch, len(s.Features), c.Dim)
		}
		for i := range soft {
			soft[i] = 0
		}
		for _, t := range trained {
			c.logits(t.Params, s.Features, c.Temperature, probs)
			softmax(probs)
			floats.Add(soft, probs)
		}
		floats.Scale(c.SoftTargetWeight/float64(len(trained)), soft)
		for class, p := range soft {
			if err := c.accumulate(targets, weights, s, class, p); err != nil {
				return sim.Weights{}, err
			}
		}
		if err := c.accumulate(targets, weights, s, s.Label, 1-c.SoftTargetWeight); err != nil {
			return sim.Weights{}, err
		}
	}
	return c.fit(student, targets, weights, epochs)
}

// accumulate adds weight*features of s to the running sum for class.
func (c *Centroid) accumulate(sums [][]float64, weights []float64, s sim.Sample, class int, weight float64) error {
	if class < 0 || class >= c.NumClasses || weight <= 0 {
		return nil
	}
	if len(s.Features) != c.Dim {
		return fmt.Errorf("%w: sample has %d features, want %d", ErrShapeMismatch, len(s.Features), c.Dim)
	}
	if sums[class] == nil {
		sums[class] = make([]float64, c.Dim)
	}
	floats.AddScaled(sums[class], weight, s.Features)
	weights[class] += weight
	return nil
}

// fit moves init toward the weighted class means. Classes without data keep
// their init centroid.
func (c *Centroid) fit(init sim.Weights, sums [][]float64, weights []float64, epochs int) (sim.Weights, error) {
	params := make([]float64, c.size())
	fresh := init.Empty()
	if !fresh {
		if err := c.check(init); err != nil {
			return sim.Weights{}, err
		}
		copy(params, init.Params)
	}
	for class := 0; class < c.NumClasses; class++ {
		if weights[class] == 0 {
			continue
		}
		row := params[class*c.Dim : (class+1)*c.Dim]
		mean := sums[class]
		floats.Scale(1/weights[class], mean)
		if fresh {
			copy(row, mean)
			continue
		}
		// After e epochs the remaining gap is (1-lr)^e.
		keep := math.Pow(1-c.LearningRate, float64(max(epochs, 0)))
		for j := range row {
			row[j] = keep*row[j] + (1-keep)*mean[j]
		}
	}
	return sim.Weights{Params: params, Shape: c.shape()}, nil
}

// logits writes -||x - centroid||^2 / temperature per class into out.
func (c *Centroid) logits(params, x []float64, temperature float64, out []float64) {
	for class := range out {
		d := floats.Distance(x, params[class*c.Dim:(class+1)*c.Dim], 2)
		out[class] = -d * d / temperature
	}
}

func softmax(v []float64) {
	lse := floats.LogSumExp(v)
	for i := range v {
		v[i] = math.Exp(v[i] - lse)
	}
}

// applyTier quantizes or prunes params in place for the device's tier.
func applyTier(params []float64, tier sim.ModelTier, step float64) {
	if tier.Kind == sim.TierQuantized && step > 0 {
		for i, v := range params {
			params[i] = math.Round(v/step) * step
		}
	}
	prune(params, tier.PruningFactor)
}

// prune zeroes the smallest-magnitude fraction of params.
func prune(params []float64, fraction float64) {
	n := int(math.Floor(fraction * float64(len(params))))
	if n <= 0 {
		return
	}
	idx := make([]int, len(params))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(params[idx[a]]) < math.Abs(params[idx[b]])
	})
	for _, i := range idx[:min(n, len(idx))] {
		params[i] = 0
	}
}
