package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
)

// PlannerPhase tracks where a group is in its per-round planning cycle.
type PlannerPhase string

const (
	PhaseIdle       PlannerPhase = "idle"
	PhaseReducing   PlannerPhase = "reducing"
	PhaseOptimizing PlannerPhase = "optimizing"
	PhaseDone       PlannerPhase = "done"
)

// Group is a user: a fixed set of devices coordinated together, plus the
// transfer plan and capability state carried across rounds. It is the arena
// the optimizer evaluates against; nothing outside the group touches its
// devices during a round.
type Group struct {
	ID      int
	Devices []*Device

	// Matrices is the last plan executed, one (K x N) matrix per device.
	// Nil until the first round.
	Matrices []TransitionMatrix

	// KDPool feeds the distillation trainer. Shuffles append copies to it.
	KDPool []Sample

	AdaptiveScalingFactor float64
	Tracker               CapabilityTracker
	Phase                 PlannerPhase

	numClasses     int
	shrinkageRatio float64

	mu sync.Mutex // held for every shuffle, real or tentative
}

// NewGroup creates a group over devices.
// Panics if devices is empty, numClasses < 1 or shrinkageRatio <= 0.
func NewGroup(id int, devices []*Device, numClasses int, shrinkageRatio float64) *Group {
	if len(devices) == 0 {
		panic(fmt.Sprintf("NewGroup(%d): at least one device required", id))
	}
	if numClasses < 1 {
		panic(fmt.Sprintf("NewGroup(%d): numClasses must be >= 1, got %d", id, numClasses))
	}
	if !(shrinkageRatio > 0) {
		panic(fmt.Sprintf("NewGroup(%d): shrinkageRatio must be positive, got %v", id, shrinkageRatio))
	}
	return &Group{
		ID:                    id,
		Devices:               devices,
		AdaptiveScalingFactor: 1,
		Tracker:               NewCapabilityTracker(),
		Phase:                 PhaseIdle,
		numClasses:            numClasses,
		shrinkageRatio:        shrinkageRatio,
	}
}

// NumClusters returns K = floor(numClasses * ratio), never less than 1.
func NumClusters(numClasses int, ratio float64) int {
	return max(1, int(math.Floor(float64(numClasses)*ratio+1e-9)))
}

// NumClusters returns the group's surrogate cluster count K.
func (g *Group) NumClusters() int {
	return NumClusters(g.numClasses, g.shrinkageRatio)
}

// NumClasses returns the ground-truth label count.
func (g *Group) NumClasses() int {
	return g.numClasses
}

// NumDevices returns N.
func (g *Group) NumDevices() int {
	return len(g.Devices)
}

// SetPhase moves the planner state machine.
func (g *Group) SetPhase(p PlannerPhase) {
	logrus.WithFields(logrus.Fields{"group": g.ID, "from": g.Phase, "to": p}).Debug("planner phase")
	g.Phase = p
}

// DatasetSize returns the number of samples across all devices.
func (g *Group) DatasetSize() int {
	total := 0
	for _, d := range g.Devices {
		total += d.Len()
	}
	return total
}

// DatasetSizes returns per-device sample counts.
func (g *Group) DatasetSizes() []int {
	sizes := make([]int, len(g.Devices))
	for i, d := range g.Devices {
		sizes[i] = d.Len()
	}
	return sizes
}

// TransferredSamples sums the per-round transfer counters.
func (g *Group) TransferredSamples() int {
	total := 0
	for _, d := range g.Devices {
		total += d.TransferredSamples
	}
	return total
}

// ResetRound clears transfer counters and the consumed KD pool.
func (g *Group) ResetRound() {
	for _, d := range g.Devices {
		d.ResetTransfers()
	}
	g.KDPool = nil
	g.Phase = PhaseIdle
}

// ClusterDistributions returns each device's cluster histogram over K.
func (g *Group) ClusterDistributions() [][]int {
	k := g.NumClusters()
	out := make([][]int, len(g.Devices))
	for i, d := range g.Devices {
		out[i] = d.ClusterDistribution(k)
	}
	return out
}

// Imbalances returns each device's label imbalance.
func (g *Group) Imbalances() []float64 {
	out := make([]float64, len(g.Devices))
	for i, d := range g.Devices {
		out[i] = d.Imbalance(g.numClasses)
	}
	return out
}

// ClusterImbalances returns each device's cluster imbalance.
func (g *Group) ClusterImbalances() []float64 {
	k := g.NumClusters()
	out := make([]float64, len(g.Devices))
	for i, d := range g.Devices {
		out[i] = d.ClusterImbalance(k)
	}
	return out
}

// SamplePercentage draws the same fraction from every device and concatenates
// the results in device order.
func (g *Group) SamplePercentage(pct float64, random bool, rng *rand.Rand) []Sample {
	var out []Sample
	for _, d := range g.Devices {
		out = append(out, d.Sample(SampleRequest{Percentage: pct, Cluster: AllClusters, Random: random}, rng)...)
	}
	return out
}

// BuildKDPool adds a random pct of every device's data to the KD pool.
func (g *Group) BuildKDPool(pct float64, rng *rand.Rand) {
	extra := g.SamplePercentage(pct, true, rng)
	pool := make([]Sample, 0, len(g.KDPool)+len(extra))
	pool = append(pool, g.KDPool...)
	g.KDPool = append(pool, extra...)
}

// UpdateCapability refreshes the staleness factor and capability delta.
// Call once per round after shuffling.
func (g *Group) UpdateCapability() {
	g.Tracker.Update(g.Devices)
}

// Snapshot captures per-device dataset/cluster slice headers, transfer
// counters and the KD pool header. Shuffles never write into existing backing
// arrays, so restoring the headers is lossless.
type Snapshot struct {
	datasets    [][]Sample
	clusters    [][]int
	transferred []int
	kdPool      []Sample
}

// Snapshot records the current state for Restore.
func (g *Group) Snapshot() Snapshot {
	s := Snapshot{
		datasets:    make([][]Sample, len(g.Devices)),
		clusters:    make([][]int, len(g.Devices)),
		transferred: make([]int, len(g.Devices)),
		kdPool:      g.KDPool,
	}
	for i, d := range g.Devices {
		s.datasets[i] = d.Dataset
		s.clusters[i] = d.Clusters
		s.transferred[i] = d.TransferredSamples
	}
	return s
}

// Restore puts back a state captured by Snapshot.
func (g *Group) Restore(s Snapshot) {
	for i, d := range g.Devices {
		d.Dataset = s.datasets[i]
		d.Clusters = s.clusters[i]
		d.TransferredSamples = s.transferred[i]
	}
	g.KDPool = s.kdPool
}
