package heuristic

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/model"
)

// depot distances 4, 6, 3 to customers 1..3
var scenarioDistance = [][]int{
	{0, 4, 6, 3},
	{4, 0, 5, 7},
	{6, 5, 0, 4},
	{3, 7, 4, 0},
}

func TestGroupScenarioA(t *testing.T) {
	g, err := Group([]int{5, 1, 2}, 2, scenarioDistance, false)
	require.NoError(t, err)
	assert.Equal(t, 16, g.FixedCost)
	assert.Equal(t, map[int]int{1: 2}, g.FullTrips)
	assert.Equal(t, []int{1, 2, 3}, g.RemainingCustomers)
	assert.Equal(t, []int{1, 1, 2}, g.RemainingDemands)
	assert.Equal(t, []int{1, 2, 3}, g.OrigCustomerOfNode)
	require.Len(t, g.FullTripRoutes, 1)
	assert.Equal(t, model.FullTrip{Customer: 1, Trips: 2, PalletsPerTrip: 2, TripCost: 8, TotalCost: 16, Route: []int{0, 1, 0}}, g.FullTripRoutes[0])
}

func TestGroupEqualCapacityPolicy(t *testing.T) {
	g, err := Group([]int{2}, 2, scenarioDistance, false)
	require.NoError(t, err)
	assert.Zero(t, g.FixedCost)
	assert.Equal(t, []int{2}, g.RemainingDemands)

	g, err = Group([]int{2}, 2, scenarioDistance, true)
	require.NoError(t, err)
	assert.Equal(t, 8, g.FixedCost)
	assert.Equal(t, map[int]int{1: 1}, g.FullTrips)
	assert.Empty(t, g.RemainingCustomers)
}

func TestGroupSkipsZeroAndKeepsOrder(t *testing.T) {
	g, err := Group([]int{0, 3, 0}, 2, scenarioDistance, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, g.RemainingCustomers)
	assert.Equal(t, []int{1}, g.RemainingDemands)
	assert.Equal(t, 12, g.FixedCost)
}

func TestGroupPreconditions(t *testing.T) {
	_, err := Group([]int{1}, -1, scenarioDistance, false)
	require.ErrorIs(t, err, ErrPrecondition)
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Capacity", pe.Field)

	_, err = Group([]int{1}, 0, scenarioDistance, false)
	require.ErrorIs(t, err, ErrPrecondition)

	_, err = Group([]int{1, -2}, 2, scenarioDistance, false)
	require.ErrorIs(t, err, ErrPrecondition)

	_, err = Group([]int{1, 1, 1, 1}, 2, scenarioDistance, false)
	require.ErrorIs(t, err, ErrPrecondition)
}

func randomMatrix(rng *rand.Rand, n int) [][]int {
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, n+1)
	}
	for i := 0; i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			v := 1 + rng.Intn(50)
			d[i][j], d[j][i] = v, v
		}
	}
	return d
}

func TestGroupConservationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 300; iter++ {
		n := rng.Intn(12)
		capacity := 1 + rng.Intn(6)
		counts := make([]int, n)
		for i := range counts {
			counts[i] = rng.Intn(4 * capacity)
		}
		d := randomMatrix(rng, n)
		for _, equalAsFixed := range []bool{false, true} {
			g, err := Group(counts, capacity, d, equalAsFixed)
			require.NoError(t, err)

			fixed, accounted := 0, 0
			for c, trips := range g.FullTrips {
				fixed += trips * (d[0][c] + d[c][0])
				accounted += trips * capacity
			}
			for _, r := range g.RemainingDemands {
				accounted += r
			}
			total := 0
			for _, p := range counts {
				total += p
			}
			assert.Equal(t, fixed, g.FixedCost)
			assert.Equal(t, total, accounted)

			for i, p := range counts {
				if p <= capacity && !(equalAsFixed && p == capacity) {
					assert.NotContains(t, g.FullTrips, i+1)
				}
			}
		}
	}
}

func TestGroupDefaultPolicyBelowCapacity(t *testing.T) {
	for p := 0; p <= 5; p++ {
		g, err := Group([]int{p}, 5, scenarioDistance, false)
		require.NoError(t, err)
		assert.Empty(t, g.FullTrips)
		if p == 0 {
			assert.Empty(t, g.RemainingDemands)
		} else {
			assert.Equal(t, []int{p}, g.RemainingDemands)
		}
	}
}

func TestCheckConservationDetectsDefects(t *testing.T) {
	counts := []int{5, 1, 2}
	g, err := Group(counts, 2, scenarioDistance, false)
	require.NoError(t, err)

	lost := g
	lost.RemainingDemands = []int{1, 1, 1}
	require.ErrorIs(t, CheckConservation(counts, 2, lost), ErrInconsistentAggregation)

	dup := g
	dup.FullTrips = map[int]int{1: 2, 3: 1}
	require.ErrorIs(t, CheckConservation(counts, 2, dup), ErrInconsistentAggregation)

	unordered := g
	unordered.RemainingCustomers = []int{2, 1, 3}
	unordered.OrigCustomerOfNode = []int{2, 1, 3}
	require.ErrorIs(t, CheckConservation(counts, 2, unordered), ErrInconsistentAggregation)
}

func TestBuildReducedSubmatrix(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 100; iter++ {
		n := 1 + rng.Intn(10)
		capacity := 1 + rng.Intn(4)
		counts := make([]int, n)
		for i := range counts {
			counts[i] = rng.Intn(3 * capacity)
		}
		d := randomMatrix(rng, n)
		g, err := Group(counts, capacity, d, false)
		require.NoError(t, err)
		red, err := BuildReduced(d, g, capacity, 0)
		require.NoError(t, err)

		require.Equal(t, len(g.RemainingCustomers), red.N)
		assert.Equal(t, max(1, red.N), red.NbVehicles)
		assert.Equal(t, g.FixedCost, red.FixedCost)
		orig := func(k int) int {
			if k == 0 {
				return 0
			}
			c, ok := g.OrigCustomer(k)
			require.True(t, ok)
			assert.Equal(t, g.RemainingCustomers[k-1], c)
			return c
		}
		for i := 0; i <= red.N; i++ {
			for j := 0; j <= red.N; j++ {
				assert.Equal(t, d[orig(i)][orig(j)], red.Distance[i][j])
			}
		}
	}
}

func TestBuildReducedVehicles(t *testing.T) {
	g, err := Group([]int{5, 1, 2}, 2, scenarioDistance, false)
	require.NoError(t, err)
	red, err := BuildReduced(scenarioDistance, g, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, red.NbVehicles)

	empty, err := BuildReduced(scenarioDistance, model.GroupingResult{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.N)
	assert.Equal(t, 1, empty.NbVehicles)
	assert.Equal(t, [][]int{{0}}, empty.Distance)

	_, err = BuildReduced(scenarioDistance, model.GroupingResult{RemainingCustomers: []int{9}, RemainingDemands: []int{1}}, 2, 0)
	require.ErrorIs(t, err, ErrPrecondition)
}
