package federation

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/shufflefl/sim"
	"github.com/inference-sim/shufflefl/sim/backend"
	"github.com/inference-sim/shufflefl/sim/trace"
)

// Aggregator is the server side of a round: it merges group models and
// decides the scaling factor each group uses in its next objective.
type Aggregator struct {
	// Base multiplies every factor; a group of average performance gets Base.
	Base float64
}

// ScalingFactors returns one factor per record:
//
//	perf_u   = diff_capability_u * latency_u
//	factor_u = mean(perf) / perf_u * Base
//
// latency_u is the group's simulated round latency. Slow groups whose
// capability improved get a smaller factor, so their next plan leans toward
// latency over balance. Failed rounds and non-positive performances get Base
// and are left out of the mean.
func (a Aggregator) ScalingFactors(records []trace.RoundRecord) []float64 {
	perf := make([]float64, len(records))
	var valid []float64
	for i, r := range records {
		if r.Failed() {
			continue
		}
		perf[i] = r.DiffCapability * r.MaxLatency()
		if perf[i] > 0 {
			valid = append(valid, perf[i])
		}
	}

	factors := make([]float64, len(records))
	if len(valid) == 0 {
		for i := range factors {
			factors[i] = a.Base
		}
		return factors
	}
	mean := stat.Mean(valid, nil)
	for i, p := range perf {
		if records[i].Failed() || !(p > 0) {
			factors[i] = a.Base
			continue
		}
		factors[i] = mean / p * a.Base
	}
	return factors
}

// Aggregate merges group models. Models are weighted by the group's
// post-shuffle sample count, or uniformly when uniform is set.
func (a Aggregator) Aggregate(models []sim.Weights, samples []int, uniform bool) (sim.Weights, error) {
	if len(models) != len(samples) {
		return sim.Weights{}, fmt.Errorf("%d models for %d sample counts", len(models), len(samples))
	}
	updates := make([]backend.Update, 0, len(models))
	for i, w := range models {
		u := backend.Update{Weights: w}
		if !uniform {
			u.NumSamples = samples[i]
		}
		updates = append(updates, u)
	}
	w, err := backend.FedAvg(updates)
	if err != nil {
		return sim.Weights{}, fmt.Errorf("server aggregation: %w", err)
	}
	logrus.WithFields(logrus.Fields{"models": len(models), "uniform": uniform}).Debug("server aggregated")
	return w, nil
}
