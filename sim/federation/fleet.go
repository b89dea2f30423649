package federation

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/shufflefl/sim"
	"github.com/inference-sim/shufflefl/sim/dataset"
)

// Fleet is every group of the run plus the held-out test set the server
// and groups are evaluated on.
type Fleet struct {
	Groups  []*sim.Group
	TestSet []sim.Sample
}

// NumDevices returns the number of devices across all groups.
func (f *Fleet) NumDevices() int {
	n := 0
	for _, g := range f.Groups {
		n += g.NumDevices()
	}
	return n
}

// GroupSizes splits devices across users as evenly as possible; the first
// devices%users groups get one extra device.
func GroupSizes(devices, users int) []int {
	sizes := make([]int, users)
	for i := range sizes {
		sizes[i] = devices / users
		if i < devices%users {
			sizes[i]++
		}
	}
	return sizes
}

// BuildFleet draws device profiles from the fleet RNG, generates and
// partitions the dataset from the dataset RNG, and groups devices in id
// order. Device ids are fleet-wide: group 1 continues where group 0 stops.
// In baseline mode every device runs the full model.
func BuildFleet(cfg Config, rng *sim.PartitionedRNG) (*Fleet, error) {
	profiles := sim.GenerateProfiles(cfg.Devices, cfg.Profiles, rng.ForSubsystem(sim.SubsystemFleet))

	dataRNG := rng.ForSubsystem(sim.SubsystemDataset)
	train, test := dataset.Generate(cfg.Dataset, dataRNG)
	parts, err := dataset.Partition(cfg.Dataset, train, cfg.Devices, dataRNG)
	if err != nil {
		return nil, fmt.Errorf("failed to partition dataset: %w", err)
	}

	fleet := &Fleet{TestSet: test}
	next := 0
	for id, size := range GroupSizes(cfg.Devices, cfg.Users) {
		devices := make([]*sim.Device, size)
		for i := range devices {
			d := sim.NewDevice(profiles[next], parts[next])
			if cfg.Baseline {
				d.Tier = sim.ModelTier{Kind: sim.TierFull}
			}
			devices[i] = d
			next++
		}
		g := sim.NewGroup(id, devices, cfg.Dataset.NumClasses, cfg.ShrinkageRatio)
		fleet.Groups = append(fleet.Groups, g)

		logrus.WithFields(logrus.Fields{
			"group":   id,
			"devices": size,
			"samples": g.DatasetSize(),
		}).Debug("group created")
	}
	return fleet, nil
}
