package sim

// CapabilityTracker keeps a group's rolling capability estimate. The
// aggregator turns DiffCapability into the next round's scaling factor.
type CapabilityTracker struct {
	StalenessFactor float64 `json:"staleness_factor"`
	DiffCapability  float64 `json:"diff_capability"`
	AvgCompute      float64 `json:"avg_compute"`   // previous round's mean compute
	AvgBandwidth    float64 `json:"avg_bandwidth"` // previous round's mean (up+down)/2
}

// NewCapabilityTracker starts with fresh estimates and unit previous averages.
func NewCapabilityTracker() CapabilityTracker {
	return CapabilityTracker{
		StalenessFactor: 1,
		DiffCapability:  1,
		AvgCompute:      1,
		AvgBandwidth:    1,
	}
}

// StalenessFactor returns 3T / (3T + X) for total dataset size T and X samples
// transferred this round. It tends to 1 when little data moved and to 0 when
// migration dominates. Both zero yields 1.
func StalenessFactor(totalDatasetSize, totalTransferred int) float64 {
	fresh := 3 * float64(totalDatasetSize)
	if fresh+float64(totalTransferred) == 0 {
		return 1
	}
	return fresh / (fresh + float64(totalTransferred))
}

// Update recomputes the staleness factor and the capability delta
//
//	diff = s * (avgCompute / prevAvgCompute) + (1 - s) * (avgBandwidth / prevAvgBandwidth)
//
// and then advances the previous averages.
func (t *CapabilityTracker) Update(devices []*Device) {
	if len(devices) == 0 {
		return
	}
	total, transferred := 0, 0
	var compute, bandwidth float64
	for _, d := range devices {
		total += d.Len()
		transferred += d.TransferredSamples
		compute += d.Profile.Compute
		bandwidth += (d.Profile.UplinkRate + d.Profile.DownlinkRate) / 2
	}
	n := float64(len(devices))
	compute /= n
	bandwidth /= n

	t.StalenessFactor = StalenessFactor(total, transferred)
	t.DiffCapability = t.StalenessFactor*ratio(compute, t.AvgCompute) +
		(1-t.StalenessFactor)*ratio(bandwidth, t.AvgBandwidth)
	t.AvgCompute = compute
	t.AvgBandwidth = bandwidth
}

func ratio(cur, prev float64) float64 {
	if prev == 0 {
		return 1
	}
	return cur / prev
}
