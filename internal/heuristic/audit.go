package heuristic

import (
	"fmt"

	"palletroute/internal/model"
)

// Audit maps full trips and routed visits back to original customers and
// checks that every customer receives exactly its pallet count. routes are
// in reduced node ids.
func Audit(pallets []int, capacity int, g model.GroupingResult, red *model.ReducedInstance, routes [][]int) (model.DeliveryAudit, error) {
	n := len(pallets)
	a := model.DeliveryAudit{
		DeliveredPerCustomer: make([]int, n),
		VisitsPerCustomer:    make([]int, n),
	}
	for c, trips := range g.FullTrips {
		if c < 1 || c > n {
			return a, fmt.Errorf("%w: full trip for unknown customer %d", ErrInconsistentAggregation, c)
		}
		a.DeliveredPerCustomer[c-1] += trips * capacity
		a.VisitsPerCustomer[c-1] += trips
		a.VehiclesUsed += trips
	}
	for _, route := range routes {
		if len(route) == 0 {
			continue
		}
		a.VehiclesUsed++
		tour := make([]int, 0, len(route))
		for _, k := range route {
			c, ok := g.OrigCustomer(k)
			if !ok || red == nil || k > len(red.Demand) || c > n {
				return a, fmt.Errorf("%w: route visits unknown node %d", ErrInconsistentAggregation, k)
			}
			a.DeliveredPerCustomer[c-1] += red.Demand[k-1]
			a.VisitsPerCustomer[c-1]++
			tour = append(tour, c)
		}
		a.CustomerRoutes = append(a.CustomerRoutes, tour)
	}
	a.DemandSatisfied = true
	visits := 0
	for i, p := range pallets {
		v := a.VisitsPerCustomer[i]
		visits += v
		if v >= 1 {
			a.ServedCustomers++
		}
		if v >= 2 {
			a.SplitCustomers++
		}
		if v > a.MaxVisitsCustomer {
			a.MaxVisitsCustomer = v
		}
		a.TotalDemand += p
		a.TotalDelivered += a.DeliveredPerCustomer[i]
		if a.DeliveredPerCustomer[i] != p {
			a.DemandSatisfied = false
		}
	}
	if n > 0 {
		a.AvgVisitsCustomer = float64(visits) / float64(n)
	}
	return a, nil
}
