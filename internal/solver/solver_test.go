package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFeasible(t *testing.T) {
	assert.True(t, StatusOptimal.Feasible())
	assert.True(t, StatusSatisfied.Feasible())
	for _, s := range []Status{StatusUnsatisfiable, StatusUnbounded, StatusUnknown, StatusError, StatusTimeout, StatusSkippedEmpty, StatusNoRouting} {
		assert.False(t, s.Feasible(), s)
	}
}

func TestProblemValidate(t *testing.T) {
	require.ErrorIs(t, Problem{}.Validate(), ErrBadProblem)
	both := Problem{Packing: &PackingData{Capacity: 1}, Routing: &RoutingData{Capacity: 1, Distance: [][]int{{0}}}}
	require.ErrorIs(t, both.Validate(), ErrBadProblem)

	pk := Problem{Packing: &PackingData{Capacity: 10, Sizes: []int{3, 4}}}
	require.NoError(t, pk.Validate())
	assert.Equal(t, KindPacking, pk.Kind())
	pk.Packing.Sizes = []int{3, 0}
	require.ErrorIs(t, pk.Validate(), ErrBadProblem)

	r := Problem{Routing: &RoutingData{N: 1, Capacity: 2, NbVehicles: 1, Demand: []int{1}, Distance: [][]int{{0, 3}, {3, 0}}}}
	require.NoError(t, r.Validate())
	assert.Equal(t, KindRouting, r.Kind())
	r.Routing.Demand = nil
	require.ErrorIs(t, r.Validate(), ErrBadProblem)
}

func TestFuncAdapter(t *testing.T) {
	var s Solver = Func(func(ctx context.Context, p Problem) (Result, error) {
		return Result{Status: StatusOptimal, HasSolution: true, Objective: Float(3)}, nil
	})
	res, err := s.Solve(context.Background(), Problem{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, *res.Objective)
}

func TestTimeoutStatus(t *testing.T) {
	assert.Equal(t, StatusTimeout, TimeoutStatus(context.DeadlineExceeded))
	assert.Equal(t, StatusUnknown, TimeoutStatus(context.Canceled))
	assert.Equal(t, StatusUnknown, TimeoutStatus(errors.New("boom")))
}
