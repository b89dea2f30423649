package sim

import (
	"math"
	"math/rand"
	"testing"
)

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemCluster).Float64()
		b := rng2.ForSubsystem(SubsystemCluster).Float64()
		if a != b {
			t.Errorf("Value %d: got %v and %v, want identical", i, a, b)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from the dataset stream does not shift the cluster stream
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemDataset).Float64()
	}
	got := rngA.ForSubsystem(SubsystemCluster).Float64()

	fresh := NewPartitionedRNG(NewSimulationKey(42))
	want := fresh.ForSubsystem(SubsystemCluster).Float64()

	if got != want {
		t.Errorf("cluster first value = %v, want %v (isolation broken)", got, want)
	}
}

func TestPartitionedRNG_FleetUsesMasterSeed(t *testing.T) {
	seed := int64(42)
	fleet := NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemFleet)
	direct := rand.New(rand.NewSource(seed))

	for i := 0; i < 10; i++ {
		if got, want := fleet.Float64(), direct.Float64(); got != want {
			t.Errorf("Value %d: fleet RNG = %v, direct RNG = %v", i, got, want)
		}
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if rng.ForSubsystem(SubsystemKD) != rng.ForSubsystem(SubsystemKD) {
		t.Error("ForSubsystem returned different instances for same name")
	}
}

func TestPartitionedRNG_Derive(t *testing.T) {
	// BDD: derived RNGs are reproducible and distinct per name
	parent := NewPartitionedRNG(NewSimulationKey(7))
	g0 := parent.Derive(SubsystemGroup(0))
	g0Again := NewPartitionedRNG(NewSimulationKey(7)).Derive(SubsystemGroup(0))
	g1 := parent.Derive(SubsystemGroup(1))

	if g0.Key() != g0Again.Key() {
		t.Errorf("Derive not deterministic: %v != %v", g0.Key(), g0Again.Key())
	}
	if g0.Key() == g1.Key() {
		t.Error("groups 0 and 1 derived the same key")
	}
	if len(parent.subsystems) != 0 {
		t.Errorf("Derive touched parent subsystems: %d cached", len(parent.subsystems))
	}
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if len(rng.subsystems) != 0 {
		t.Errorf("New PartitionedRNG has %d subsystems, want 0", len(rng.subsystems))
	}
	rng.ForSubsystem(SubsystemFleet)
	if len(rng.subsystems) != 1 {
		t.Errorf("After one ForSubsystem call, have %d subsystems, want 1", len(rng.subsystems))
	}
}

func TestFnv1a64_Collision(t *testing.T) {
	names := []string{
		SubsystemFleet,
		SubsystemDataset,
		SubsystemCluster,
		SubsystemKD,
		SubsystemGroup(0),
		SubsystemGroup(1),
		"",
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

func TestSubsystemGroup(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{0, "group_0"},
		{12, "group_12"},
	}
	for _, tt := range tests {
		if got := SubsystemGroup(tt.id); got != tt.want {
			t.Errorf("SubsystemGroup(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemCluster)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemCluster)
	}
}
