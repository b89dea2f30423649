package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectTier(t *testing.T) {
	tests := []struct {
		compute, memory, energy float64
		want                    ModelTier
	}{
		{5, 5, 5, ModelTier{Kind: TierQuantized}},
		{10, 10, 9.9, ModelTier{Kind: TierQuantized}},
		{10, 10, 10, ModelTier{Kind: TierPruned, PruningFactor: 0.5}},
		{15, 15, 9, ModelTier{Kind: TierPruned, PruningFactor: 0.5}},
		{15, 15, 10, ModelTier{Kind: TierPruned, PruningFactor: 0.3}},
		{20, 20, 10, ModelTier{Kind: TierFull, PruningFactor: 0.1}},
	}
	for _, tt := range tests {
		p := DeviceProfile{Compute: tt.compute, Memory: tt.memory, EnergyBudget: tt.energy, UplinkRate: 1, DownlinkRate: 1}
		assert.Equal(t, tt.want, SelectTier(p), "score %v", tt.compute+tt.memory+tt.energy)
	}
}
