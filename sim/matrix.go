package sim

import (
	"fmt"
	"math"
)

// TransitionMatrix is one device's (K x N) transfer plan, in probability mass
// per row. For sender i:
//   - m[k][j], j != i: fraction of i's cluster-k samples moved to device j
//   - m[k][i]: fraction of i's cluster-k samples copied into the group KD pool
//
// Whatever the off-diagonal entries leave behind stays on the device.
// A feasible row has entries in [0,1], sums to at most 1, and has a diagonal
// above the self-retention floor.
type TransitionMatrix [][]float64

// NewTransitionMatrix returns a zero matrix with k rows and n columns.
func NewTransitionMatrix(k, n int) TransitionMatrix {
	m := make(TransitionMatrix, k)
	for r := range m {
		m[r] = make([]float64, n)
	}
	return m
}

// Clone returns a deep copy.
func (m TransitionMatrix) Clone() TransitionMatrix {
	out := make(TransitionMatrix, len(m))
	for r := range m {
		out[r] = append([]float64(nil), m[r]...)
	}
	return out
}

// UniformMatrices spreads every cluster evenly across the group: each of the
// n columns of every row gets 1/n. Used as the cold start.
func UniformMatrices(n, k int) []TransitionMatrix {
	ms := make([]TransitionMatrix, n)
	for i := range ms {
		ms[i] = NewTransitionMatrix(k, n)
		for r := range ms[i] {
			for c := range ms[i][r] {
				ms[i][r][c] = 1 / float64(n)
			}
		}
	}
	return ms
}

// CloneMatrices deep-copies a set of matrices. A nil input returns nil.
func CloneMatrices(ms []TransitionMatrix) []TransitionMatrix {
	if ms == nil {
		return nil
	}
	out := make([]TransitionMatrix, len(ms))
	for i, m := range ms {
		out[i] = m.Clone()
	}
	return out
}

// ValidateMatrices checks there is one (k x n) matrix per device and that no
// entry is NaN or infinite.
func ValidateMatrices(ms []TransitionMatrix, n, k int) error {
	if len(ms) != n {
		return fmt.Errorf("%w: got %d matrices for %d devices", ErrShapeMismatch, len(ms), n)
	}
	for i, m := range ms {
		if len(m) != k {
			return fmt.Errorf("%w: matrix %d has %d rows, want %d", ErrShapeMismatch, i, len(m), k)
		}
		for r, row := range m {
			if len(row) != n {
				return fmt.Errorf("%w: matrix %d row %d has %d columns, want %d", ErrShapeMismatch, i, r, len(row), n)
			}
			for c, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: matrix %d entry (%d,%d) is %v", ErrShapeMismatch, i, r, c, v)
				}
			}
		}
	}
	return nil
}
