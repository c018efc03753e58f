package heuristic

import (
	"palletroute/internal/model"
	"palletroute/internal/solver"
)

// Compose adds the fixed cost to the routing objective. routing nil means
// the routing stage was skipped because no residual demand remained. A
// failed routing stage leaves the total unset.
func Compose(fixedCost int, routing *model.RoutingOutcome) (model.ObjectiveBreakdown, string) {
	b := model.ObjectiveBreakdown{FixedCost: fixedCost}
	if routing == nil {
		zero := 0.0
		total := float64(fixedCost)
		b.RoutingObjective = &zero
		b.TotalObjective = &total
		return b, string(solver.StatusSatisfied)
	}
	if !routing.HasSolution || routing.Objective == nil {
		return b, routing.Status
	}
	ro := *routing.Objective
	total := float64(fixedCost) + ro
	b.RoutingObjective = &ro
	b.TotalObjective = &total
	return b, routing.Status
}
