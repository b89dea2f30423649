package federation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/shufflefl/sim"
)

func TestGroupSizes(t *testing.T) {
	tests := []struct {
		devices, users int
		want           []int
	}{
		{9, 3, []int{3, 3, 3}},
		{10, 3, []int{4, 3, 3}},
		{5, 3, []int{2, 2, 1}},
		{1, 1, []int{1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GroupSizes(tt.devices, tt.users), "%d devices / %d users", tt.devices, tt.users)
	}
}

func TestBuildFleet_GroupsEveryDeviceOnce(t *testing.T) {
	cfg := smallConfig()
	cfg.Devices = 5

	fleet, err := BuildFleet(cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))

	require.NoError(t, err)
	require.Len(t, fleet.Groups, 2)
	assert.Equal(t, 3, fleet.Groups[0].NumDevices())
	assert.Equal(t, 2, fleet.Groups[1].NumDevices())
	assert.Equal(t, 5, fleet.NumDevices())

	seen := map[int]bool{}
	total := 0
	for id, g := range fleet.Groups {
		assert.Equal(t, id, g.ID)
		assert.Equal(t, 3, g.NumClusters())
		for _, d := range g.Devices {
			assert.False(t, seen[d.ID()], "device %d in two groups", d.ID())
			seen[d.ID()] = true
			assert.NoError(t, d.Profile.Validate())
		}
		total += g.DatasetSize()
	}
	assert.Equal(t, cfg.Dataset.NumClasses*cfg.Dataset.TrainPerClass, total)
	assert.Len(t, fleet.TestSet, cfg.Dataset.NumClasses*cfg.Dataset.TestPerClass)
}

func TestBuildFleet_DeviceIDsAreFleetWide(t *testing.T) {
	cfg := smallConfig()
	cfg.Devices = 5

	fleet, err := BuildFleet(cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))

	require.NoError(t, err)
	var ids []int
	for _, g := range fleet.Groups {
		for _, d := range g.Devices {
			ids = append(ids, d.ID())
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ids)
	assert.Equal(t, 3, fleet.Groups[1].Devices[0].ID())
}

func TestBuildFleet_SameSeedSameFleet(t *testing.T) {
	cfg := smallConfig()

	a, err := BuildFleet(cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))
	require.NoError(t, err)
	b, err := BuildFleet(cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))
	require.NoError(t, err)

	for i := range a.Groups {
		for j, d := range a.Groups[i].Devices {
			other := b.Groups[i].Devices[j]
			assert.Equal(t, d.Profile, other.Profile)
			assert.Equal(t, d.Dataset, other.Dataset)
		}
	}
}

func TestBuildFleet_BaselineUsesFullModel(t *testing.T) {
	cfg := smallConfig()
	cfg.Baseline = true
	cfg.Profiles.Compute = sim.ResourceRange{Min: 1, Max: 2}
	cfg.Profiles.Memory = sim.ResourceRange{Min: 1, Max: 2}
	cfg.Profiles.EnergyBudget = sim.ResourceRange{Min: 1, Max: 2}

	fleet, err := BuildFleet(cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))

	require.NoError(t, err)
	for _, g := range fleet.Groups {
		for _, d := range g.Devices {
			assert.Equal(t, sim.ModelTier{Kind: sim.TierFull}, d.Tier)
		}
	}
}

func TestBuildFleet_TooFewSamples(t *testing.T) {
	cfg := smallConfig()
	cfg.Dataset.TrainPerClass = 1
	cfg.Dataset.ShardsPerDevice = 3 // 12 shards from 10 samples

	_, err := BuildFleet(cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))

	assert.Error(t, err)
}
