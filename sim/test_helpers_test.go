package sim

// uniformProfile returns a profile with every resource set to v.
func uniformProfile(id int, v float64) DeviceProfile {
	return DeviceProfile{ID: id, Compute: v, Memory: v, EnergyBudget: v, UplinkRate: v, DownlinkRate: v}
}

// clusteredDevice builds a device holding perCluster[c] samples of cluster c.
// Labels equal cluster ids; the second feature makes every sample distinct.
func clusteredDevice(id int, perCluster []int) *Device {
	var data []Sample
	var clusters []int
	for c, n := range perCluster {
		for i := 0; i < n; i++ {
			data = append(data, Sample{Features: []float64{float64(c), float64(id*10000 + len(data))}, Label: c})
			clusters = append(clusters, c)
		}
	}
	d := NewDevice(uniformProfile(id, 10), data)
	d.Clusters = clusters
	return d
}

// newTestGroup builds a group with 10 classes and ratio 0.3 (K = 3).
func newTestGroup(layouts ...[]int) *Group {
	devices := make([]*Device, len(layouts))
	for i, l := range layouts {
		devices[i] = clusteredDevice(i, l)
	}
	return NewGroup(0, devices, 10, 0.3)
}

type groupState struct {
	datasets    [][]Sample
	clusters    [][]int
	transferred []int
	kdPool      []Sample
}

// copyState deep-copies everything a shuffle can touch.
func copyState(g *Group) groupState {
	s := groupState{kdPool: append([]Sample(nil), g.KDPool...)}
	for _, d := range g.Devices {
		s.datasets = append(s.datasets, append([]Sample(nil), d.Dataset...))
		s.clusters = append(s.clusters, append([]int(nil), d.Clusters...))
		s.transferred = append(s.transferred, d.TransferredSamples)
	}
	return s
}

// zeroPlan returns N zero matrices shaped for g.
func zeroPlan(g *Group) []TransitionMatrix {
	ms := make([]TransitionMatrix, g.NumDevices())
	for i := range ms {
		ms[i] = NewTransitionMatrix(g.NumClusters(), g.NumDevices())
	}
	return ms
}
