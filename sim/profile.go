package sim

import (
	"fmt"
	"math/rand"
)

// DeviceProfile holds the static resource attributes of a device.
// All values are positive and fixed for the whole run.
type DeviceProfile struct {
	ID           int     `yaml:"id" json:"id"`
	Compute      float64 `yaml:"compute" json:"compute"`             // FLOPS-like throughput
	Memory       float64 `yaml:"memory" json:"memory"`               // bytes, relative scale
	EnergyBudget float64 `yaml:"energy_budget" json:"energy_budget"` // J/hour, relative scale
	UplinkRate   float64 `yaml:"uplink_rate" json:"uplink_rate"`     // samples per time unit
	DownlinkRate float64 `yaml:"downlink_rate" json:"downlink_rate"` // samples per time unit
}

// Validate reports the first non-positive attribute.
func (p DeviceProfile) Validate() error {
	fields := []struct {
		name string
		val  float64
	}{
		{"compute", p.Compute},
		{"memory", p.Memory},
		{"energy_budget", p.EnergyBudget},
		{"uplink_rate", p.UplinkRate},
		{"downlink_rate", p.DownlinkRate},
	}
	for _, f := range fields {
		if !(f.val > 0) {
			return fmt.Errorf("device %d: %s must be positive, got %v: %w", p.ID, f.name, f.val, ErrInvalidProfile)
		}
	}
	return nil
}

// ResourceRange is a half-open integer range [Min, Max) for one attribute.
type ResourceRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r ResourceRange) draw(rng *rand.Rand) float64 {
	if r.Max-r.Min <= 1 {
		return float64(r.Min)
	}
	return float64(r.Min + rng.Intn(r.Max-r.Min))
}

// ProfileRanges configures GenerateProfiles.
type ProfileRanges struct {
	Compute      ResourceRange `yaml:"compute"`
	Memory       ResourceRange `yaml:"memory"`
	EnergyBudget ResourceRange `yaml:"energy_budget"`
	Uplink       ResourceRange `yaml:"uplink"`
	Downlink     ResourceRange `yaml:"downlink"`
}

// DefaultProfileRanges draws every attribute uniformly from [1, 10).
func DefaultProfileRanges() ProfileRanges {
	r := ResourceRange{Min: 1, Max: 10}
	return ProfileRanges{Compute: r, Memory: r, EnergyBudget: r, Uplink: r, Downlink: r}
}

// Validate checks that every range has Min >= 1 and Max > Min.
func (pr ProfileRanges) Validate() error {
	named := map[string]ResourceRange{
		"compute":       pr.Compute,
		"memory":        pr.Memory,
		"energy_budget": pr.EnergyBudget,
		"uplink":        pr.Uplink,
		"downlink":      pr.Downlink,
	}
	for _, name := range []string{"compute", "memory", "energy_budget", "uplink", "downlink"} {
		r := named[name]
		if r.Min < 1 || r.Max <= r.Min {
			return fmt.Errorf("range %s must satisfy 1 <= min < max, got [%d, %d)", name, r.Min, r.Max)
		}
	}
	return nil
}

// GenerateProfiles creates n device profiles with ids 0..n-1.
func GenerateProfiles(n int, ranges ProfileRanges, rng *rand.Rand) []DeviceProfile {
	profiles := make([]DeviceProfile, n)
	for i := range profiles {
		profiles[i] = DeviceProfile{
			ID:           i,
			Compute:      ranges.Compute.draw(rng),
			Memory:       ranges.Memory.draw(rng),
			EnergyBudget: ranges.EnergyBudget.draw(rng),
			UplinkRate:   ranges.Uplink.draw(rng),
			DownlinkRate: ranges.Downlink.draw(rng),
		}
	}
	return profiles
}
