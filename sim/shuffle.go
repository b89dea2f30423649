package sim

import "math"

// Transfer is one executed (sender, cluster, receiver) movement.
// Receiver == Sender means the samples were copied into the KD pool.
type Transfer struct {
	Sender   int `json:"sender"`
	Receiver int `json:"receiver"`
	Cluster  int `json:"cluster"`
	Count    int `json:"count"`
}

// ToPool reports whether the transfer fed the KD pool.
func (t Transfer) ToPool() bool {
	return t.Sender == t.Receiver
}

// ShuffleResult summarises an executed plan.
type ShuffleResult struct {
	Transfers []Transfer
	Moved     int // samples that changed device
	KDCopied  int // samples copied into the KD pool
}

// Shuffle executes matrices against the group's datasets.
//
// Counts are fixed up front from the pre-shuffle cluster histogram:
// floor(m[k][j] * n_k). Off-diagonal transfers move the first matching samples
// still on the sender (received samples are never forwarded in the same
// shuffle); diagonal transfers copy samples into the KD pool, leaving the
// device untouched. When fewer samples remain than requested, everything
// available moves. Device totals are conserved; the KD pool grows by exactly
// the diagonal-routed count.
//
// Shape errors are returned before any state changes.
func (g *Group) Shuffle(matrices []TransitionMatrix) (ShuffleResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shuffle(matrices)
}

// TryShuffle runs matrices, lets measure inspect the resulting state, and
// rolls everything back before returning. The group lock is held for the
// whole call, so two evaluations can never interleave.
func (g *Group) TryShuffle(matrices []TransitionMatrix, measure func(ShuffleResult)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.Snapshot()
	defer g.Restore(snap)

	res, err := g.shuffle(matrices)
	if err != nil {
		return err
	}
	measure(res)
	return nil
}

type pendingMove struct {
	sender, receiver, cluster int
	samples                   []int // indices into the sender's pre-shuffle dataset
}

func (g *Group) shuffle(matrices []TransitionMatrix) (ShuffleResult, error) {
	n, k := len(g.Devices), g.NumClusters()
	if err := ValidateMatrices(matrices, n, k); err != nil {
		return ShuffleResult{}, err
	}

	var (
		res   ShuffleResult
		moves []pendingMove
		kd    []Sample
	)
	removed := make([][]bool, n)

	for i, d := range g.Devices {
		byCluster := make([][]int, k)
		for idx, c := range d.Clusters {
			if c >= 0 && c < k {
				byCluster[c] = append(byCluster[c], idx)
			}
		}
		removed[i] = make([]bool, len(d.Dataset))

		for c := 0; c < k; c++ {
			idxs := byCluster[c]
			if len(idxs) == 0 {
				continue
			}
			cursor := 0
			for j := 0; j < n; j++ {
				want := plannedCount(matrices[i][c][j], len(idxs))
				if want <= 0 {
					continue
				}
				if j == i {
					for _, idx := range idxs[:want] {
						kd = append(kd, d.Dataset[idx])
					}
					res.Transfers = append(res.Transfers, Transfer{Sender: i, Receiver: i, Cluster: c, Count: want})
					res.KDCopied += want
					d.TransferredSamples += want
					continue
				}
				count := min(want, len(idxs)-cursor)
				if count <= 0 {
					continue
				}
				picked := idxs[cursor : cursor+count]
				cursor += count
				for _, idx := range picked {
					removed[i][idx] = true
				}
				moves = append(moves, pendingMove{sender: i, receiver: j, cluster: c, samples: picked})
				res.Transfers = append(res.Transfers, Transfer{Sender: i, Receiver: j, Cluster: c, Count: count})
				res.Moved += count
			}
		}
	}

	// Fresh slices only: snapshots hold the old headers and must stay valid.
	incoming := make([]int, n)
	for _, m := range moves {
		incoming[m.receiver] += len(m.samples)
	}
	newData := make([][]Sample, n)
	newClusters := make([][]int, n)
	for i, d := range g.Devices {
		kept := 0
		for _, r := range removed[i] {
			if !r {
				kept++
			}
		}
		newData[i] = make([]Sample, 0, kept+incoming[i])
		newClusters[i] = make([]int, 0, kept+incoming[i])
		for idx, s := range d.Dataset {
			if !removed[i][idx] {
				newData[i] = append(newData[i], s)
				newClusters[i] = append(newClusters[i], d.Clusters[idx])
			}
		}
	}
	for _, m := range moves {
		src := g.Devices[m.sender]
		for _, idx := range m.samples {
			newData[m.receiver] = append(newData[m.receiver], src.Dataset[idx])
			newClusters[m.receiver] = append(newClusters[m.receiver], m.cluster)
		}
		src.TransferredSamples += len(m.samples)
		g.Devices[m.receiver].TransferredSamples += len(m.samples)
	}
	for i, d := range g.Devices {
		d.Dataset = newData[i]
		d.Clusters = newClusters[i]
	}

	if len(kd) > 0 {
		pool := make([]Sample, 0, len(g.KDPool)+len(kd))
		pool = append(pool, g.KDPool...)
		g.KDPool = append(pool, kd...)
	}
	return res, nil
}

// plannedCount converts a probability mass into a sample count for a cluster
// of size n. Negative mass plans nothing; mass above 1 is capped at n.
func plannedCount(mass float64, n int) int {
	if !(mass > 0) {
		return 0
	}
	return min(n, int(math.Floor(mass*float64(n)+1e-9)))
}
