package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// imbalancePseudoCount is the additive smoothing applied per bin before the
// divergence is taken. Small datasets carry less evidence of skew than large
// ones with the same shape, so they score lower.
const imbalancePseudoCount = 1.0

// Imbalance returns the Jensen-Shannon divergence, in bits, between the
// smoothed distribution (count_c + 1) / (total + C) and the uniform
// distribution over the same C bins. The result lies in [0, 1]; it is exactly
// 0 for an empty histogram and for perfectly uniform counts.
//
// The score depends on the total as well as the shape, so a device can lower
// it by shrinking. Callers that minimize it must also bound data loss.
func Imbalance(counts []int) float64 {
	if len(counts) < 2 {
		return 0
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}

	bins := float64(len(counts))
	denom := float64(total) + imbalancePseudoCount*bins
	p := make([]float64, len(counts))
	q := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = (float64(c) + imbalancePseudoCount) / denom
		q[i] = 1 / bins
	}

	js := stat.JensenShannon(p, q) / math.Ln2
	switch {
	case js < 1e-12 || math.IsNaN(js):
		return 0
	case js > 1:
		return 1
	}
	return js
}
