package heuristic

import "time"

// Config is threaded explicitly into every run.
type Config struct {
	Fallback                  Fallback
	TreatEqualCapacityAsFixed bool
	// Per-customer packing budget; 0 means no limit.
	PackingTimeLimit time.Duration
	// Routing budget; 0 means no limit.
	RoutingTimeLimit time.Duration
	// Concurrent packing solves; <= 0 means 1.
	Workers int
	// Packing solver calls per second across workers; 0 disables throttling.
	SolverCallsPerSecond float64
	SolverBurst          int
	// Memoised packings keyed by item sizes; 0 disables the cache.
	CacheSize int
	// Routing fleet size; 0 means max(1, residual customers).
	NbVehicles int
}

func DefaultConfig() Config {
	return Config{
		Fallback:         FallbackItemsUB,
		PackingTimeLimit: 10 * time.Second,
		RoutingTimeLimit: 60 * time.Second,
		Workers:          4,
		SolverBurst:      1,
		CacheSize:        1024,
	}
}

func (c Config) Validate() error {
	if _, ok := fallbackNames[c.Fallback]; !ok {
		return precondition("fallback", "unknown strategy %d", int(c.Fallback))
	}
	if c.PackingTimeLimit < 0 || c.RoutingTimeLimit < 0 {
		return precondition("time_limit", "must be >= 0")
	}
	if c.SolverCallsPerSecond < 0 {
		return precondition("solver_calls_per_second", "must be >= 0")
	}
	if c.CacheSize < 0 {
		return precondition("cache_size", "must be >= 0")
	}
	if c.NbVehicles < 0 {
		return precondition("nb_vehicles", "must be >= 0")
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}
