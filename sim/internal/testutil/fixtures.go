// Package testutil provides shared fixtures for the planner's package tests:
// groups with controlled label and cluster layouts, and float assertions.
package testutil

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/inference-sim/shufflefl/sim"
)

// Profile returns a profile with every resource set to v.
func Profile(id int, v float64) sim.DeviceProfile {
	return sim.DeviceProfile{ID: id, Compute: v, Memory: v, EnergyBudget: v, UplinkRate: v, DownlinkRate: v}
}

// ClassSamples returns n samples of label in a numClasses-dimensional feature
// space: a peak of 10 on the label's axis plus a small deterministic jitter,
// so classes are linearly separable.
func ClassSamples(label, n, numClasses int) []sim.Sample {
	out := make([]sim.Sample, n)
	for i := range out {
		f := make([]float64, numClasses)
		for j := range f {
			f[j] = float64((i*31+j*17)%11) * 0.05
		}
		f[label%numClasses] += 10
		out[i] = sim.Sample{Features: f, Label: label}
	}
	return out
}

// LayoutGroup builds a group where device i holds layout[i][c] samples of
// class c and every sample's cluster id is its label modulo K. Profiles are
// uniform with every resource set to 5.
func LayoutGroup(numClasses int, ratio float64, layout ...[]int) *sim.Group {
	k := sim.NumClusters(numClasses, ratio)
	devices := make([]*sim.Device, len(layout))
	for i, counts := range layout {
		var data []sim.Sample
		for c, n := range counts {
			data = append(data, ClassSamples(c, n, numClasses)...)
		}
		d := sim.NewDevice(Profile(i, 5), data)
		for j, s := range data {
			d.Clusters[j] = s.Label % k
		}
		devices[i] = d
	}
	return sim.NewGroup(0, devices, numClasses, ratio)
}

// SkewedGroup is the canonical three-device scenario: device 0 holds 100
// class-0 samples, devices 1 and 2 are empty; 10 classes, ratio 0.3 (K = 3).
func SkewedGroup() *sim.Group {
	return LayoutGroup(10, 0.3, []int{100}, nil, nil)
}

// AssertWithinRel fails t when got differs from want by more than relTol of
// the larger magnitude.
func AssertWithinRel(t testing.TB, name string, want, got, relTol float64) {
	t.Helper()
	if !scalar.EqualWithinRel(want, got, relTol) {
		t.Errorf("%s: got %v, want %v (rel tol %v)", name, got, want, relTol)
	}
}
