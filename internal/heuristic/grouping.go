package heuristic

import (
	"fmt"

	"palletroute/internal/model"
)

// Group splits pallet counts (indexed by customer-1) into full depot ->
// customer -> depot trips of exactly capacity pallets and residual demands.
// Residual customers are appended in increasing customer id.
//
// A count equal to capacity stays residual unless equalAsFixed is set.
func Group(counts []int, capacity int, distance [][]int, equalAsFixed bool) (model.GroupingResult, error) {
	if capacity <= 0 {
		return model.GroupingResult{}, precondition("Capacity", "must be > 0, got %d", capacity)
	}
	if len(distance) < len(counts)+1 {
		return model.GroupingResult{}, precondition("Distance", "%d rows cannot cover %d customers", len(distance), len(counts))
	}
	g := model.GroupingResult{
		FullTrips:          map[int]int{},
		FullTripRoutes:     []model.FullTrip{},
		RemainingCustomers: []int{},
		RemainingDemands:   []int{},
		OrigCustomerOfNode: []int{},
	}
	for i, p := range counts {
		c := i + 1
		if p < 0 {
			return model.GroupingResult{}, precondition("pallets", "customer %d has negative count %d", c, p)
		}
		if p == 0 {
			continue
		}
		if p < capacity || (p == capacity && !equalAsFixed) {
			addResidual(&g, c, p)
			continue
		}
		trips, rem := p/capacity, p%capacity
		if len(distance[0]) <= c || len(distance[c]) < 1 {
			return model.GroupingResult{}, precondition("Distance", "no depot distance for customer %d", c)
		}
		tripCost := distance[0][c] + distance[c][0]
		g.FixedCost += trips * tripCost
		g.FullTrips[c] = trips
		g.FullTripRoutes = append(g.FullTripRoutes, model.FullTrip{
			Customer:       c,
			Trips:          trips,
			PalletsPerTrip: capacity,
			TripCost:       tripCost,
			TotalCost:      trips * tripCost,
			Route:          []int{0, c, 0},
		})
		if rem > 0 {
			addResidual(&g, c, rem)
		}
	}
	if err := CheckConservation(counts, capacity, g); err != nil {
		return model.GroupingResult{}, err
	}
	return g, nil
}

func addResidual(g *model.GroupingResult, c, p int) {
	g.RemainingCustomers = append(g.RemainingCustomers, c)
	g.RemainingDemands = append(g.RemainingDemands, p)
	g.OrigCustomerOfNode = append(g.OrigCustomerOfNode, c)
}

// CheckConservation verifies that full trips plus residual demands account
// for every pallet exactly, per customer and in total.
func CheckConservation(counts []int, capacity int, g model.GroupingResult) error {
	perCustomer := make([]int, len(counts)+1)
	for c, trips := range g.FullTrips {
		if c < 1 || c > len(counts) || trips <= 0 {
			return fmt.Errorf("%w: bad full trip entry %d x%d", ErrInconsistentAggregation, c, trips)
		}
		perCustomer[c] += trips * capacity
	}
	if len(g.RemainingCustomers) != len(g.RemainingDemands) || len(g.RemainingCustomers) != len(g.OrigCustomerOfNode) {
		return fmt.Errorf("%w: residual lists differ in length", ErrInconsistentAggregation)
	}
	prev := 0
	for k, c := range g.RemainingCustomers {
		if c <= prev || c > len(counts) {
			return fmt.Errorf("%w: residual customer %d at node %d out of order or range", ErrInconsistentAggregation, c, k+1)
		}
		prev = c
		if g.OrigCustomerOfNode[k] != c {
			return fmt.Errorf("%w: node %d maps to %d, want %d", ErrInconsistentAggregation, k+1, g.OrigCustomerOfNode[k], c)
		}
		d := g.RemainingDemands[k]
		if d < 1 || d > capacity {
			return fmt.Errorf("%w: residual demand %d of customer %d outside [1, %d]", ErrInconsistentAggregation, d, c, capacity)
		}
		perCustomer[c] += d
	}
	total, want := 0, 0
	for i, p := range counts {
		if perCustomer[i+1] != p {
			return fmt.Errorf("%w: customer %d has %d pallets, accounted %d", ErrInconsistentAggregation, i+1, p, perCustomer[i+1])
		}
		total += perCustomer[i+1]
		want += p
	}
	if total != want {
		return fmt.Errorf("%w: %d pallets accounted, %d expected", ErrInconsistentAggregation, total, want)
	}
	return nil
}
