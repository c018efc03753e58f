package opt

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"palletroute/internal/solver"
)

// DefaultIterations caps the search when the caller gives no deadline.
const DefaultIterations = 2000

// Router solves capacitated routing problems with the ALNS engine.
type Router struct {
	Seed       int64
	Iterations int
	Metrics    *MetricsStore
	Logger     *zap.Logger
}

func (r *Router) Name() string { return "alns" }

func (r *Router) Solve(ctx context.Context, prob solver.Problem) (solver.Result, error) {
	start := time.Now()
	if prob.Routing == nil {
		return solver.Failed(start, fmt.Errorf("%w: router needs a routing problem", solver.ErrBadProblem))
	}
	if err := prob.Validate(); err != nil {
		return solver.Failed(start, err)
	}
	rd := prob.Routing
	if rd.N == 0 {
		return solver.Result{Status: solver.StatusOptimal, HasSolution: true, Objective: solver.Float(0),
			Fields: solver.Fields{Routing: &solver.RoutingFields{}}, Elapsed: time.Since(start)}, nil
	}
	p := Problem{Distance: rd.Distance, Demand: rd.Demand, Capacity: rd.Capacity, Vehicles: rd.NbVehicles, IterationsLimit: r.Iterations}
	total := 0
	for k, d := range rd.Demand {
		if d <= 0 {
			return solver.Failed(start, fmt.Errorf("%w: node %d demand %d", solver.ErrBadProblem, k+1, d))
		}
		if d > rd.Capacity {
			return solver.Result{Status: solver.StatusUnsatisfiable, Elapsed: time.Since(start)}, nil
		}
		total += d
	}
	if total > p.vehicles()*rd.Capacity {
		return solver.Result{Status: solver.StatusUnsatisfiable, Elapsed: time.Since(start)}, nil
	}
	if _, ok := ctx.Deadline(); !ok && p.IterationsLimit <= 0 {
		p.IterationsLimit = DefaultIterations
	}

	sol, m := Solve(ctx, p, r.Seed)
	r.Metrics.Record(solver.Label(ctx), m)
	res := solver.Result{
		Fields: solver.Fields{Extra: map[string]any{
			"iterations":    m.Iterations,
			"improvements":  m.Improvements,
			"acceptedWorse": m.AcceptedWorse,
		}},
	}
	if len(sol.Unassigned) > 0 {
		res.Status = solver.StatusUnknown
		if ctx.Err() != nil {
			res.Status = solver.TimeoutStatus(ctx.Err())
		}
		res.Fields.Extra["unassigned"] = len(sol.Unassigned)
		res.Elapsed = time.Since(start)
		return res, nil
	}
	routes := make([][]int, 0, len(sol.Routes))
	dist := 0
	for _, route := range sol.Routes {
		if len(route) == 0 {
			continue
		}
		routes = append(routes, route)
		dist += tourDistance(rd.Distance, route)
	}
	res.Status = solver.StatusSatisfied
	res.HasSolution = true
	res.Objective = solver.Float(float64(dist))
	res.Fields.Routing = &solver.RoutingFields{Routes: routes}
	res.Elapsed = time.Since(start)
	if r.Logger != nil {
		r.Logger.Debug("alns finished",
			zap.Int("nodes", rd.N),
			zap.Int("routes", len(routes)),
			zap.Int("distance", dist),
			zap.Int("iterations", m.Iterations),
			zap.Duration("elapsed", res.Elapsed))
	}
	return res, nil
}
