package api

import (
	"fmt"
	"time"

	"palletroute/internal/heuristic"
	"palletroute/internal/model"
)

// applyRunOptions overlays per-run overrides on base. A nil opts returns base.
func applyRunOptions(base heuristic.Config, opts *model.RunOptions) (heuristic.Config, error) {
	if opts == nil {
		return base, nil
	}
	cfg := base
	if opts.Fallback != "" {
		f, err := heuristic.ParseFallback(opts.Fallback)
		if err != nil {
			return cfg, err
		}
		cfg.Fallback = f
	}
	if opts.TreatEqualCapacityAsFixed != nil {
		cfg.TreatEqualCapacityAsFixed = *opts.TreatEqualCapacityAsFixed
	}
	if opts.PackingTimeLimitMs < 0 {
		return cfg, fmt.Errorf("packingTimeLimitMs must be >= 0")
	}
	if opts.PackingTimeLimitMs > 0 {
		cfg.PackingTimeLimit = time.Duration(opts.PackingTimeLimitMs) * time.Millisecond
	}
	if opts.RoutingTimeLimitMs < 0 {
		return cfg, fmt.Errorf("routingTimeLimitMs must be >= 0")
	}
	if opts.RoutingTimeLimitMs > 0 {
		cfg.RoutingTimeLimit = time.Duration(opts.RoutingTimeLimitMs) * time.Millisecond
	}
	if opts.NbVehicles < 0 {
		return cfg, fmt.Errorf("nbVehicles must be >= 0")
	}
	if opts.NbVehicles > 0 {
		cfg.NbVehicles = opts.NbVehicles
	}
	return cfg, cfg.Validate()
}
