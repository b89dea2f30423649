package backend

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/shufflefl/sim"
)

var ErrNoUpdates = errors.New("no updates provided for aggregation")

// Update is one participant's model and the number of samples behind it.
type Update struct {
	Weights    sim.Weights `json:"weights"`
	NumSamples int         `json:"num_samples"`
}

// FedAvg averages updates weighted by NumSamples. Updates with empty weights
// are skipped. When no update carries samples, the average is uniform.
func FedAvg(updates []Update) (sim.Weights, error) {
	var (
		agg   []float64
		shape []int
		total float64
		count int
	)
	for _, u := range updates {
		if u.Weights.Empty() {
			continue
		}
		if agg == nil {
			agg = make([]float64, len(u.Weights.Params))
			shape = append([]int(nil), u.Weights.Shape...)
		}
		if len(u.Weights.Params) != len(agg) {
			return sim.Weights{}, fmt.Errorf("%w: update has %d params, want %d", ErrShapeMismatch, len(u.Weights.Params), len(agg))
		}
		total += float64(max(u.NumSamples, 0))
		count++
	}
	if count == 0 {
		return sim.Weights{}, ErrNoUpdates
	}

	for _, u := range updates {
		if u.Weights.Empty() {
			continue
		}
		weight := 1 / float64(count)
		if total > 0 {
			weight = float64(max(u.NumSamples, 0)) / total
		}
		floats.AddScaled(agg, weight, u.Weights.Params)
	}
	return sim.Weights{Params: agg, Shape: shape}, nil
}
