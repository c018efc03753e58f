package heuristic

import "palletroute/internal/model"

// BuildReduced projects the original distance matrix onto the depot plus
// the residual customers. Reduced node k is g.RemainingCustomers[k-1]; the
// submatrix is copied, never recomputed. nbVehicles 0 means
// max(1, residual customers).
func BuildReduced(distance [][]int, g model.GroupingResult, capacity, nbVehicles int) (model.ReducedInstance, error) {
	if capacity <= 0 {
		return model.ReducedInstance{}, precondition("Capacity", "must be > 0, got %d", capacity)
	}
	if nbVehicles < 0 {
		return model.ReducedInstance{}, precondition("nbVehicles", "must be >= 0, got %d", nbVehicles)
	}
	if len(g.RemainingDemands) != len(g.RemainingCustomers) {
		return model.ReducedInstance{}, precondition("grouping", "%d demands for %d customers", len(g.RemainingDemands), len(g.RemainingCustomers))
	}
	nodes := make([]int, 0, len(g.RemainingCustomers)+1)
	nodes = append(nodes, 0)
	nodes = append(nodes, g.RemainingCustomers...)
	for _, i := range nodes {
		if i < 0 || i >= len(distance) {
			return model.ReducedInstance{}, precondition("Distance", "no row for node %d", i)
		}
	}
	sub := make([][]int, len(nodes))
	for a, i := range nodes {
		row := distance[i]
		sub[a] = make([]int, len(nodes))
		for b, j := range nodes {
			if j >= len(row) {
				return model.ReducedInstance{}, precondition("Distance", "row %d has no column %d", i, j)
			}
			sub[a][b] = row[j]
		}
	}
	nRem := len(g.RemainingCustomers)
	if nbVehicles == 0 {
		nbVehicles = max(1, nRem)
	}
	return model.ReducedInstance{
		N:                  nRem,
		Capacity:           capacity,
		NbVehicles:         nbVehicles,
		Demand:             append([]int{}, g.RemainingDemands...),
		Distance:           sub,
		FixedCost:          g.FixedCost,
		OrigCustomerOfNode: append([]int{}, g.RemainingCustomers...),
	}, nil
}
