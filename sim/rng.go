package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemFleet is the RNG subsystem for device profile generation.
	// Uses master seed directly so --seed alone pins the fleet.
	SubsystemFleet = "fleet"

	// SubsystemDataset is the RNG subsystem for synthetic data and partitioning.
	SubsystemDataset = "dataset"

	// SubsystemCluster is the RNG subsystem for representative sampling and k-means seeding.
	SubsystemCluster = "cluster"

	// SubsystemKD is the RNG subsystem for knowledge-distillation pool sampling.
	SubsystemKD = "kd"
)

// SubsystemGroup returns the subsystem name for user group N.
// Each group derives its own PartitionedRNG from it so groups can run in parallel.
func SubsystemGroup(id int) string {
	return fmt.Sprintf("group_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemFleet: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
// Use Derive to hand an independent instance to another goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemFleet {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Derive returns a fresh PartitionedRNG whose key is masterSeed XOR fnv1a64(name).
// Derived instances share no state with the parent.
func (p *PartitionedRNG) Derive(name string) *PartitionedRNG {
	return NewPartitionedRNG(SimulationKey(int64(p.key) ^ fnv1a64(name)))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
