package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStalenessFactor(t *testing.T) {
	tests := []struct {
		name              string
		total, transferred int
		want              float64
	}{
		{"nothing moved", 300, 0, 1},
		{"heavy migration", 300, 600, 0.6},
		{"empty group", 0, 0, 1},
		{"everything moved once", 100, 100, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StalenessFactor(tt.total, tt.transferred), 1e-12)
		})
	}
}

func TestCapabilityTracker_Update(t *testing.T) {
	// GIVEN two devices with mean compute 3 and mean bandwidth 3, and no transfers
	a := clusteredDevice(0, []int{100})
	b := clusteredDevice(1, []int{200})
	a.Profile = DeviceProfile{ID: 0, Compute: 2, Memory: 1, EnergyBudget: 1, UplinkRate: 2, DownlinkRate: 4}
	b.Profile = DeviceProfile{ID: 1, Compute: 4, Memory: 1, EnergyBudget: 1, UplinkRate: 2, DownlinkRate: 4}
	tr := NewCapabilityTracker()

	// WHEN the tracker updates against unit previous averages
	tr.Update([]*Device{a, b})

	// THEN staleness is 1 and the delta is the compute ratio
	assert.Equal(t, 1.0, tr.StalenessFactor)
	assert.InDelta(t, 3.0, tr.DiffCapability, 1e-12)
	assert.Equal(t, 3.0, tr.AvgCompute)
	assert.Equal(t, 3.0, tr.AvgBandwidth)

	// AND an unchanged second round reports no capability change
	tr.Update([]*Device{a, b})
	assert.InDelta(t, 1.0, tr.DiffCapability, 1e-12)
}

func TestCapabilityTracker_MixesBandwidthWhenStale(t *testing.T) {
	// GIVEN 300 samples of which 600 were moved: staleness 0.6
	a := clusteredDevice(0, []int{300})
	a.Profile = DeviceProfile{ID: 0, Compute: 2, Memory: 1, EnergyBudget: 1, UplinkRate: 4, DownlinkRate: 4}
	a.TransferredSamples = 600
	tr := NewCapabilityTracker()

	tr.Update([]*Device{a})

	// 0.6*2 + 0.4*4
	assert.InDelta(t, 0.6, tr.StalenessFactor, 1e-12)
	assert.InDelta(t, 2.8, tr.DiffCapability, 1e-12)
}

func TestCapabilityTracker_EmptyIsNoOp(t *testing.T) {
	tr := NewCapabilityTracker()
	tr.Update(nil)
	assert.Equal(t, NewCapabilityTracker(), tr)
}
