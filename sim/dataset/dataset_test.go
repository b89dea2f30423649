package dataset

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/shufflefl/sim"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.NumClasses = 4
	cfg.FeatureDim = 3
	cfg.TrainPerClass = 25
	cfg.TestPerClass = 5
	return cfg
}

func TestGenerate_SizesAndLabels(t *testing.T) {
	train, test := Generate(smallConfig(), rand.New(rand.NewSource(1)))

	assert.Len(t, train, 100)
	assert.Len(t, test, 20)
	counts := make([]int, 4)
	for _, s := range train {
		assert.Len(t, s.Features, 3)
		counts[s.Label]++
	}
	assert.Equal(t, []int{25, 25, 25, 25}, counts)
}

func TestGenerate_Deterministic(t *testing.T) {
	a, _ := Generate(smallConfig(), rand.New(rand.NewSource(9)))
	b, _ := Generate(smallConfig(), rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)
}

func TestPartitionIID_CoversEverySampleOnce(t *testing.T) {
	train, _ := Generate(smallConfig(), rand.New(rand.NewSource(1)))

	parts, err := PartitionIID(train, 3, rand.New(rand.NewSource(2)))

	require.NoError(t, err)
	total := 0
	for _, p := range parts {
		assert.InDelta(t, 33, len(p), 1)
		total += len(p)
	}
	assert.Equal(t, len(train), total)
}

func TestPartitionShards_IsNonIID(t *testing.T) {
	// GIVEN 4 classes cut into 8 shards, two per device
	train, _ := Generate(smallConfig(), rand.New(rand.NewSource(1)))

	parts, err := PartitionShards(train, 4, 2, rand.New(rand.NewSource(2)))

	// THEN each device holds at most 4 labels and the data is conserved
	require.NoError(t, err)
	total := 0
	for _, p := range parts {
		labels := map[int]bool{}
		for _, s := range p {
			labels[s.Label] = true
		}
		assert.LessOrEqual(t, len(labels), 4)
		total += len(p)
	}
	assert.Equal(t, len(train), total)

	// AND devices are more imbalanced than an IID split on average
	iid, err := PartitionIID(train, 4, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	assert.Greater(t, meanImbalance(parts, 4), meanImbalance(iid, 4))
}

func TestPartition_TooFewSamples(t *testing.T) {
	few := make([]sim.Sample, 3)
	_, err := PartitionIID(few, 4, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrTooFewSamples)

	_, err = PartitionShards(few, 2, 2, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrTooFewSamples)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.NumClasses = 1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Noise = -1
	assert.Error(t, bad.Validate())
}

func meanImbalance(parts [][]sim.Sample, classes int) float64 {
	sum := 0.0
	for _, p := range parts {
		d := sim.NewDevice(sim.DeviceProfile{Compute: 1, Memory: 1, EnergyBudget: 1, UplinkRate: 1, DownlinkRate: 1}, p)
		sum += d.Imbalance(classes)
	}
	return sum / float64(len(parts))
}
