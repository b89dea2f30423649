package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDevice_AssignsTierAndZeroClusters(t *testing.T) {
	data := []Sample{{Label: 1}, {Label: 2}, {Label: 1}}

	d := NewDevice(uniformProfile(4, 20), data)

	assert.Equal(t, 4, d.ID())
	assert.Equal(t, TierFull, d.Tier.Kind)
	assert.Equal(t, []int{0, 0, 0}, d.Clusters)
	assert.Equal(t, 3, d.Len())
}

func TestDevice_SampleDeterministicPrefix(t *testing.T) {
	d := clusteredDevice(0, []int{4, 6})

	got := d.Sample(SampleRequest{Percentage: 0.5, Cluster: AllClusters}, nil)

	assert.Equal(t, d.Dataset[:5], got)
}

func TestDevice_SampleByCluster(t *testing.T) {
	d := clusteredDevice(0, []int{4, 6})

	got := d.Sample(SampleRequest{Percentage: 0.5, Cluster: 1}, nil)

	assert.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, 1, s.Label)
	}
}

func TestDevice_SampleAmountTakesPrecedenceAndCaps(t *testing.T) {
	d := clusteredDevice(0, []int{4, 6})

	assert.Len(t, d.Sample(SampleRequest{Amount: 2, Percentage: 0.9, Cluster: AllClusters}, nil), 2)
	assert.Len(t, d.Sample(SampleRequest{Amount: 50, Cluster: AllClusters}, nil), 10)
}

func TestDevice_SampleRandomWithoutReplacement(t *testing.T) {
	d := clusteredDevice(0, []int{20, 20})
	rng := rand.New(rand.NewSource(7))

	got := d.Sample(SampleRequest{Amount: 25, Cluster: AllClusters, Random: true}, rng)

	assert.Len(t, got, 25)
	seen := make(map[float64]bool)
	for _, s := range got {
		// second feature is unique per sample
		assert.False(t, seen[s.Features[1]], "sample drawn twice")
		seen[s.Features[1]] = true
	}
}

func TestDevice_SampleRandomIsSeedDeterministic(t *testing.T) {
	d := clusteredDevice(0, []int{20, 20})
	req := SampleRequest{Percentage: 0.3, Cluster: AllClusters, Random: true}

	a := d.Sample(req, rand.New(rand.NewSource(11)))
	b := d.Sample(req, rand.New(rand.NewSource(11)))

	assert.Equal(t, a, b)
}

func TestDevice_SampleDoesNotRemove(t *testing.T) {
	d := clusteredDevice(0, []int{5})

	_ = d.Sample(SampleRequest{Amount: 3, Cluster: AllClusters}, nil)

	assert.Equal(t, 5, d.Len())
}

func TestDevice_SampleEmpty(t *testing.T) {
	d := NewDevice(uniformProfile(0, 5), nil)
	assert.Nil(t, d.Sample(SampleRequest{Amount: 3, Cluster: AllClusters}, nil))

	full := clusteredDevice(1, []int{5, 0})
	assert.Nil(t, full.Sample(SampleRequest{Percentage: 1, Cluster: 1}, nil), "empty cluster")
	assert.Nil(t, full.Sample(SampleRequest{Percentage: 0.1, Cluster: AllClusters}, nil), "rounds to zero")
}

func TestDevice_Distributions(t *testing.T) {
	d := clusteredDevice(0, []int{2, 0, 3})
	d.Dataset = append(d.Dataset, Sample{Label: 99})
	d.Clusters = append(d.Clusters, 7)

	assert.Equal(t, []int{2, 0, 3, 0}, d.LabelDistribution(4))
	assert.Equal(t, []int{2, 0, 3}, d.ClusterDistribution(3))
}

func TestDevice_ResetTransfers(t *testing.T) {
	d := clusteredDevice(0, []int{1})
	d.TransferredSamples = 12

	d.ResetTransfers()

	assert.Zero(t, d.TransferredSamples)
}
