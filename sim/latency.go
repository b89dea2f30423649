package sim

// LatencyModel estimates one round of per-device work: moving data plus local
// training. Larger compute means less time; time grows with dataset size.
type LatencyModel struct {
	EpochsPerRound int
}

// ComputationTime is EpochsPerRound * |dataset| / compute.
func (m LatencyModel) ComputationTime(d *Device) float64 {
	if d.Profile.Compute <= 0 {
		return 0
	}
	return float64(m.EpochsPerRound) * float64(d.Len()) / d.Profile.Compute
}

// CommunicationTimes charges every off-diagonal transfer to both endpoints:
// count/uplink(sender) + count/downlink(receiver). KD pool copies are free.
func CommunicationTimes(devices []*Device, transfers []Transfer) []float64 {
	comm := make([]float64, len(devices))
	for _, t := range transfers {
		if t.ToPool() || t.Count <= 0 {
			continue
		}
		cost := float64(t.Count)/devices[t.Sender].Profile.UplinkRate +
			float64(t.Count)/devices[t.Receiver].Profile.DownlinkRate
		comm[t.Sender] += cost
		comm[t.Receiver] += cost
	}
	return comm
}

// Latencies returns communication + computation time per device, measured on
// the devices' current datasets (call after the shuffle being costed).
func (m LatencyModel) Latencies(devices []*Device, transfers []Transfer) []float64 {
	lat := CommunicationTimes(devices, transfers)
	for i, d := range devices {
		lat[i] += m.ComputationTime(d)
	}
	return lat
}
