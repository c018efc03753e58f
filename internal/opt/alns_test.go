package opt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/solver"
)

// four customers on the corners of a square around the depot
func squareRouting() *solver.RoutingData {
	return &solver.RoutingData{
		N:          4,
		Capacity:   3,
		NbVehicles: 0,
		Demand:     []int{2, 1, 2, 1},
		Distance: [][]int{
			{0, 10, 10, 10, 10},
			{10, 0, 14, 20, 14},
			{10, 14, 0, 14, 20},
			{10, 20, 14, 0, 14},
			{10, 14, 20, 14, 0},
		},
	}
}

func TestRouterSolveCapacitated(t *testing.T) {
	ms := NewMetricsStore()
	r := &Router{Seed: 7, Iterations: 200, Metrics: ms}
	ctx := solver.WithLabel(context.Background(), "square")
	res, err := r.Solve(ctx, solver.Problem{Routing: squareRouting()})
	require.NoError(t, err)
	require.True(t, res.HasSolution)
	assert.Equal(t, solver.StatusSatisfied, res.Status)
	require.NotNil(t, res.Fields.Routing)

	rd := squareRouting()
	seen := map[int]int{}
	dist := 0
	for _, route := range res.Fields.Routing.Routes {
		l := 0
		for _, c := range route {
			seen[c]++
			l += rd.Demand[c-1]
		}
		assert.LessOrEqual(t, l, rd.Capacity)
		dist += tourDistance(rd.Distance, route)
	}
	for c := 1; c <= 4; c++ {
		assert.Equal(t, 1, seen[c], "customer %d", c)
	}
	assert.Equal(t, float64(dist), *res.Objective)
	// two vehicles, each pairing adjacent corners: 10+14+10 twice
	assert.Equal(t, 68.0, *res.Objective)

	m, ok := ms.Get("square")
	require.True(t, ok)
	assert.Equal(t, 200, m.Iterations)
}

func TestRouterUnsatisfiable(t *testing.T) {
	r := &Router{Iterations: 10}
	rd := squareRouting()
	rd.Demand[0] = 4
	res, err := r.Solve(context.Background(), solver.Problem{Routing: rd})
	require.NoError(t, err)
	assert.Equal(t, solver.StatusUnsatisfiable, res.Status)

	rd = squareRouting()
	rd.NbVehicles = 1
	res, err = r.Solve(context.Background(), solver.Problem{Routing: rd})
	require.NoError(t, err)
	assert.Equal(t, solver.StatusUnsatisfiable, res.Status)
	assert.False(t, res.HasSolution)
}

func TestRouterEmpty(t *testing.T) {
	res, err := (&Router{}).Solve(context.Background(), solver.Problem{Routing: &solver.RoutingData{Capacity: 2, Distance: [][]int{{0}}}})
	require.NoError(t, err)
	assert.True(t, res.HasSolution)
	assert.Equal(t, 0.0, *res.Objective)
}

func TestRouterRespectsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := (&Router{Seed: 3}).Solve(ctx, solver.Problem{Routing: squareRouting()})
	require.NoError(t, err)
	assert.True(t, res.HasSolution)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSolveKeepsUnplaceableUnassigned(t *testing.T) {
	p := Problem{
		Distance:        squareRouting().Distance,
		Demand:          []int{3, 3, 3, 3},
		Capacity:        3,
		Vehicles:        2,
		IterationsLimit: 20,
	}
	sol, _ := Solve(context.Background(), p, 1)
	assert.Len(t, sol.Unassigned, 2)
	for _, r := range sol.Routes {
		assert.LessOrEqual(t, load(p, r), 3)
	}
}

func TestImproveRoute2Opt(t *testing.T) {
	d := squareRouting().Distance
	// 1,3,2,4 crosses the square twice
	out := ImproveRoute2Opt(d, []int{1, 3, 2, 4}, 0)
	assert.Less(t, tourDistance(d, out), tourDistance(d, []int{1, 3, 2, 4}))
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, out)
}

func TestMetricsStoreNilSafe(t *testing.T) {
	var ms *MetricsStore
	ms.Record("x", Metrics{})
	_, ok := ms.Get("x")
	assert.False(t, ok)
	assert.Empty(t, ms.All())
}

func TestMetricsStoreTake(t *testing.T) {
	ms := NewMetricsStore()
	ms.Record("run", Metrics{Iterations: 3})
	m, ok := ms.Take("run")
	require.True(t, ok)
	assert.Equal(t, 3, m.Iterations)
	_, ok = ms.Get("run")
	assert.False(t, ok)

	var nilStore *MetricsStore
	_, ok = nilStore.Take("run")
	assert.False(t, ok)
}
