package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// AllClusters selects samples regardless of cluster id in a SampleRequest.
const AllClusters = -1

// Sample is one training example: a flattened image-like feature payload and
// its ground-truth label in [0, NumClasses). Features are never mutated after
// creation, so samples may share the slice when they move between devices.
type Sample struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// Device is a resource-constrained participant owned by exactly one Group.
//
// Invariant: len(Dataset) == len(Clusters) outside of an in-flight shuffle.
type Device struct {
	Profile DeviceProfile
	Tier    ModelTier

	Dataset  []Sample
	Clusters []int // surrogate cluster id per sample, set by the reducer

	// TransferredSamples counts samples sent or received during the current round.
	TransferredSamples int
}

// NewDevice creates a device holding dataset. Cluster ids start at 0 for every
// sample until the first reduction assigns real ones.
func NewDevice(profile DeviceProfile, dataset []Sample) *Device {
	return &Device{
		Profile:  profile,
		Tier:     SelectTier(profile),
		Dataset:  dataset,
		Clusters: make([]int, len(dataset)),
	}
}

// ID returns the device's stable id within its group.
func (d *Device) ID() int {
	return d.Profile.ID
}

// Len returns the number of samples currently held.
func (d *Device) Len() int {
	return len(d.Dataset)
}

func (d *Device) String() string {
	return fmt.Sprintf("Device(id=%d, samples=%d, tier=%s)", d.Profile.ID, len(d.Dataset), d.Tier.Kind)
}

// SampleRequest describes which samples Device.Sample returns.
// Amount takes precedence over Percentage. Percentage is taken of the whole
// dataset, or of a single cluster's count when Cluster != AllClusters.
type SampleRequest struct {
	Amount     int
	Percentage float64
	Cluster    int
	Random     bool
}

// Sample returns copies of selected samples without removing them.
// Deterministic prefix unless req.Random, in which case a uniform permutation
// without replacement is drawn from rng. An empty source yields nil.
func (d *Device) Sample(req SampleRequest, rng *rand.Rand) []Sample {
	pool := d.indicesOf(req.Cluster)
	if len(pool) == 0 {
		return nil
	}

	amount := req.Amount
	if amount <= 0 {
		amount = int(math.Floor(req.Percentage * float64(len(pool))))
	}
	amount = min(amount, len(pool))
	if amount <= 0 {
		return nil
	}

	if req.Random && rng != nil {
		order := rng.Perm(len(pool))
		picked := make([]int, amount)
		for i := range picked {
			picked[i] = pool[order[i]]
		}
		pool = picked
	}

	out := make([]Sample, amount)
	for i := 0; i < amount; i++ {
		out[i] = d.Dataset[pool[i]]
	}
	return out
}

func (d *Device) indicesOf(cluster int) []int {
	idx := make([]int, 0, len(d.Dataset))
	for i := range d.Dataset {
		if cluster == AllClusters || (i < len(d.Clusters) && d.Clusters[i] == cluster) {
			idx = append(idx, i)
		}
	}
	return idx
}

// LabelDistribution returns per-label counts over [0, numClasses).
// Labels outside that range are ignored.
func (d *Device) LabelDistribution(numClasses int) []int {
	counts := make([]int, numClasses)
	for _, s := range d.Dataset {
		if s.Label >= 0 && s.Label < numClasses {
			counts[s.Label]++
		}
	}
	return counts
}

// ClusterDistribution returns per-cluster counts over [0, k).
func (d *Device) ClusterDistribution(k int) []int {
	counts := make([]int, k)
	for _, c := range d.Clusters {
		if c >= 0 && c < k {
			counts[c]++
		}
	}
	return counts
}

// Imbalance scores the device's ground-truth label distribution. See Imbalance.
func (d *Device) Imbalance(numClasses int) float64 {
	return Imbalance(d.LabelDistribution(numClasses))
}

// ClusterImbalance scores the device's surrogate cluster distribution.
func (d *Device) ClusterImbalance(k int) float64 {
	return Imbalance(d.ClusterDistribution(k))
}

// ResetTransfers zeroes the per-round transfer counter.
func (d *Device) ResetTransfers() {
	d.TransferredSamples = 0
}
