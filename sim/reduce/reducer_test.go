package reduce

import (
	"math/rand"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/shufflefl/sim"
	"github.com/inference-sim/shufflefl/sim/internal/testutil"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SamplePercentage = 0.5
	return cfg
}

func TestReduce_SeparatesWellSeparatedClasses(t *testing.T) {
	// GIVEN two devices holding three well separated classes (K = 3)
	g := testutil.LayoutGroup(10, 0.3, []int{20, 20, 20}, []int{10, 30, 5})

	// WHEN the reducer is fitted and applied
	r, err := Reduce(g, testConfig(), rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	// THEN every label maps to exactly one cluster and no two labels share one
	assert.Equal(t, sim.PhaseReducing, g.Phase)
	assert.True(t, r.Fitted())
	assert.Equal(t, 2, r.Components(), "classes-1 axes")
	labelToCluster := map[int]int{}
	for _, d := range g.Devices {
		require.Equal(t, len(d.Dataset), len(d.Clusters))
		for i, s := range d.Dataset {
			c := d.Clusters[i]
			assert.GreaterOrEqual(t, c, 0)
			assert.Less(t, c, 3)
			if prev, ok := labelToCluster[s.Label]; ok {
				assert.Equal(t, prev, c, "label %d split across clusters", s.Label)
			}
			labelToCluster[s.Label] = c
		}
	}
	seen := map[int]bool{}
	for _, c := range labelToCluster {
		seen[c] = true
	}
	assert.Len(t, seen, 3)
}

func TestReduce_DeterministicForSeed(t *testing.T) {
	run := func() [][]int {
		g := testutil.LayoutGroup(10, 0.3, []int{20, 20, 20, 20}, []int{5, 30, 5, 10})
		_, err := Reduce(g, DefaultConfig(), rand.New(rand.NewSource(17)))
		require.NoError(t, err)
		return [][]int{g.Devices[0].Clusters, g.Devices[1].Clusters}
	}
	assert.Equal(t, run(), run())
}

func TestFit_EmptyGroupAssignsNothing(t *testing.T) {
	g := testutil.LayoutGroup(10, 0.3, nil, nil)

	r, err := Reduce(g, DefaultConfig(), rand.New(rand.NewSource(1)))

	require.NoError(t, err)
	assert.False(t, r.Fitted())
	for _, d := range g.Devices {
		assert.Empty(t, d.Clusters)
	}
}

func TestFit_FallsBackToWholeDatasetWhenSampleTooSmall(t *testing.T) {
	// 10% of 2 samples per device rounds to nothing
	g := testutil.LayoutGroup(10, 0.3, []int{1, 1}, []int{0, 0, 2})

	r, err := Fit(g, DefaultConfig(), rand.New(rand.NewSource(1)))

	require.NoError(t, err)
	assert.Equal(t, 4, r.SampleSize())
	assert.True(t, r.Fitted())
}

func TestFit_SingleClassSkipsProjection(t *testing.T) {
	g := testutil.LayoutGroup(10, 0.3, []int{30}, []int{12})

	r, err := Reduce(g, DefaultConfig(), rand.New(rand.NewSource(1)))

	require.NoError(t, err)
	assert.Equal(t, 10, r.Components(), "raw feature dimension")
	for _, d := range g.Devices {
		assert.Equal(t, len(d.Dataset), len(d.Clusters))
	}
}

func TestFit_FeatureMismatch(t *testing.T) {
	g := testutil.LayoutGroup(10, 0.3, []int{5}, []int{0, 5})
	g.Devices[1].Dataset[0].Features = []float64{1, 2}

	_, err := Fit(g, DefaultConfig(), rand.New(rand.NewSource(1)))

	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestAssign_RejectsForeignDimension(t *testing.T) {
	g := testutil.LayoutGroup(10, 0.3, []int{10, 10}, []int{0, 10, 10})
	r, err := Fit(g, DefaultConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	stranger := sim.NewDevice(testutil.Profile(9, 5), []sim.Sample{{Features: []float64{1}, Label: 0}})

	assert.ErrorIs(t, r.Assign(stranger), ErrFeatureMismatch)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for _, mutate := range []func(*Config){
		func(c *Config) { c.SamplePercentage = 0 },
		func(c *Config) { c.SamplePercentage = 1.5 },
		func(c *Config) { c.Components = 0 },
		func(c *Config) { c.MaxIterations = 0 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}
