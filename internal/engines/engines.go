// Package engines turns solver configuration into packing and routing
// solvers.
package engines

import (
	"fmt"

	"go.uber.org/zap"

	"palletroute/internal/config"
	"palletroute/internal/minizinc"
	"palletroute/internal/opt"
	"palletroute/internal/solver"
)

// Set is the pair of solvers a heuristic runs with. RoutingMetrics is set
// when the routing engine is the built-in ALNS router.
type Set struct {
	Packing        solver.Solver
	Routing        solver.Solver
	RoutingMetrics *opt.MetricsStore
}

func Build(cfg config.Solvers, logger *zap.Logger) (Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var set Set
	switch cfg.Packing.Engine {
	case config.EngineBuiltin:
		set.Packing = opt.BinPacker{}
	case config.EngineMiniZinc:
		set.Packing = runner(cfg.Packing, logger.Named("packing"))
	default:
		return Set{}, fmt.Errorf("packing engine: unknown engine %q", cfg.Packing.Engine)
	}
	switch cfg.Routing.Engine {
	case config.EngineBuiltin:
		set.RoutingMetrics = opt.NewMetricsStore()
		set.Routing = &opt.Router{
			Seed:       cfg.Routing.Seed,
			Iterations: cfg.Routing.Iterations,
			Metrics:    set.RoutingMetrics,
			Logger:     logger.Named("routing"),
		}
	case config.EngineMiniZinc:
		set.Routing = runner(cfg.Routing, logger.Named("routing"))
	default:
		return Set{}, fmt.Errorf("routing engine: unknown engine %q", cfg.Routing.Engine)
	}
	logger.Info("solvers ready", zap.String("packing", set.Packing.Name()), zap.String("routing", set.Routing.Name()))
	return set, nil
}

func runner(e config.Engine, logger *zap.Logger) *minizinc.Runner {
	return &minizinc.Runner{
		Binary:     e.Binary,
		ModelPath:  e.ModelPath,
		SolverName: e.SolverName,
		Threads:    e.Threads,
		Logger:     logger,
	}
}
