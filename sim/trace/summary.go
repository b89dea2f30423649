package trace

import "gonum.org/v1/gonum/stat"

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	Rounds       int `yaml:"rounds"`
	GroupRounds  int `yaml:"group_rounds"`
	FailedRounds int `yaml:"failed_rounds"`

	MeanLatency float64 `yaml:"mean_latency"` // mean of per-group round latencies
	MaxLatency  float64 `yaml:"max_latency"`

	MeanImbalanceBefore float64 `yaml:"mean_imbalance_before"`
	MeanImbalanceAfter  float64 `yaml:"mean_imbalance_after"`
	MeanStaleness       float64 `yaml:"mean_staleness"`
	TotalTransferred    int     `yaml:"total_transferred"`

	MeanObjectiveGain float64 `yaml:"mean_objective_gain"` // mean of objective_before - objective_after

	FinalAccuracy float64 `yaml:"final_accuracy"`
	BestAccuracy  float64 `yaml:"best_accuracy"`
	FinalLoss     float64 `yaml:"final_loss"`
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields). Failed group
// rounds are counted but excluded from the means.
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{}
	if rt == nil {
		return summary
	}

	var latencies, before, after, staleness, gains []float64
	rounds := make(map[int]bool)
	for _, r := range rt.Rounds {
		rounds[r.Round] = true
		summary.GroupRounds++
		if r.Failed() {
			summary.FailedRounds++
			continue
		}
		lat := r.MaxLatency()
		latencies = append(latencies, lat)
		summary.MaxLatency = max(summary.MaxLatency, lat)
		before = append(before, r.ImbalancesBefore...)
		after = append(after, r.ImbalancesAfter...)
		staleness = append(staleness, r.StalenessFactor)
		gains = append(gains, r.ObjectiveBefore-r.ObjectiveAfter)
		summary.TotalTransferred += r.TransferredSamples
	}
	for _, s := range rt.Server {
		rounds[s.Round] = true
		summary.BestAccuracy = max(summary.BestAccuracy, s.Accuracy)
	}
	summary.Rounds = len(rounds)

	summary.MeanLatency = mean(latencies)
	summary.MeanImbalanceBefore = mean(before)
	summary.MeanImbalanceAfter = mean(after)
	summary.MeanStaleness = mean(staleness)
	summary.MeanObjectiveGain = mean(gains)

	if n := len(rt.Server); n > 0 {
		summary.FinalAccuracy = rt.Server[n-1].Accuracy
		summary.FinalLoss = rt.Server[n-1].Loss
	}
	return summary
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
