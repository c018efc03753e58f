package heuristic

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"palletroute/internal/model"
	"palletroute/internal/solver"
)

// Route solves the reduced instance under the given budget and normalizes
// the outcome. Solver errors become an ERROR outcome, never a returned
// error. A feasible but unproven solution is accepted.
func Route(ctx context.Context, s solver.Solver, red model.ReducedInstance, budget time.Duration, logger *zap.Logger) model.RoutingOutcome {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, span := tracer.Start(ctx, "heuristic.route")
	defer span.End()
	span.SetAttributes(attribute.Int("nodes", red.N), attribute.Int("vehicles", red.NbVehicles))

	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	prob := solver.Problem{Routing: &solver.RoutingData{
		N:          red.N,
		Capacity:   red.Capacity,
		NbVehicles: red.NbVehicles,
		Demand:     red.Demand,
		Distance:   red.Distance,
	}}
	start := time.Now()
	res, err := s.Solve(ctx, prob)
	out := model.RoutingOutcome{
		Status:  string(res.Status),
		TimeSec: time.Since(start).Seconds(),
		Extra:   res.Fields.Extra,
	}
	if out.Status == "" {
		out.Status = string(solver.StatusUnknown)
	}
	if err != nil {
		out.Status = string(solver.StatusError)
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra["error"] = err.Error()
		logger.Warn("routing solver failed", zap.String("solver", s.Name()), zap.Error(err))
		span.SetAttributes(attribute.String("status", out.Status))
		return out
	}
	if res.HasSolution && res.Objective != nil {
		out.HasSolution = true
		obj := *res.Objective
		out.Objective = &obj
		if res.Fields.Routing != nil {
			out.Routes = res.Fields.Routing.Routes
		}
	}
	span.SetAttributes(attribute.String("status", out.Status), attribute.Bool("has_solution", out.HasSolution))
	return out
}
