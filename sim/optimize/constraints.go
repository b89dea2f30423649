package optimize

import (
	"math"

	"github.com/inference-sim/shufflefl/sim"
)

// feasibilityTol absorbs rounding left by Repair's rescaling.
const feasibilityTol = 1e-9

// Constraints returns every inequality constraint of ms as a value that must
// be >= 0. Per device i and cluster row k, in order:
//
//	1 - sum_j m[k][j]       (row mass)
//	m[k][i] - floor         (self-retention)
//	m[k][j], 1 - m[k][j]    (box, for every j)
func Constraints(ms []sim.TransitionMatrix, floor float64) []float64 {
	var out []float64
	for i, m := range ms {
		for _, row := range m {
			sum := 0.0
			for _, v := range row {
				sum += v
			}
			out = append(out, 1-sum)
			if i < len(row) {
				out = append(out, row[i]-floor)
			}
			for _, v := range row {
				out = append(out, v, 1-v)
			}
		}
	}
	return out
}

// Feasible reports whether every constraint holds.
func Feasible(ms []sim.TransitionMatrix, floor float64) bool {
	for _, c := range Constraints(ms, floor) {
		if c < -feasibilityTol || math.IsNaN(c) {
			return false
		}
	}
	return true
}

// violation is the squared penalty sum of min(0, c).
func violation(cs []float64) float64 {
	v := 0.0
	for _, c := range cs {
		if c < 0 {
			v += c * c
		}
	}
	return v
}

// Repair returns a feasible copy of ms: entries are clamped into [0,1], every
// diagonal is raised to floor, and off-diagonal entries of a row are scaled
// down until the row sums to at most 1.
func Repair(ms []sim.TransitionMatrix, floor float64) []sim.TransitionMatrix {
	out := sim.CloneMatrices(ms)
	for i, m := range out {
		for _, row := range m {
			for j, v := range row {
				row[j] = clamp01(v)
			}
			if i >= len(row) {
				continue
			}
			row[i] = math.Max(row[i], floor)
			off := 0.0
			for j, v := range row {
				if j != i {
					off += v
				}
			}
			if room := 1 - row[i]; off > room {
				scale := room / off
				for j := range row {
					if j != i {
						row[j] *= scale
					}
				}
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// flatten lays ms out device-major, then cluster row, then column.
func flatten(ms []sim.TransitionMatrix) []float64 {
	var x []float64
	for _, m := range ms {
		for _, row := range m {
			x = append(x, row...)
		}
	}
	return x
}

// unflatten is the inverse of flatten for n devices and k clusters. Entries
// are clamped into [0,1] on the way.
func unflatten(x []float64, n, k int) []sim.TransitionMatrix {
	ms := make([]sim.TransitionMatrix, n)
	p := 0
	for i := range ms {
		ms[i] = sim.NewTransitionMatrix(k, n)
		for r := 0; r < k; r++ {
			for c := 0; c < n; c++ {
				ms[i][r][c] = clamp01(x[p])
				p++
			}
		}
	}
	return ms
}
