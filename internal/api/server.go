// Package api implements the HTTP surface of the palletroute service: run
// submission, run queries, live run events and operational endpoints.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"palletroute/internal/config"
	"palletroute/internal/heuristic"
	"palletroute/internal/metrics"
	"palletroute/internal/opt"
	"palletroute/internal/store"
)

type Server struct {
	Store     store.Store
	Broker    EventBroker
	Heuristic *heuristic.Heuristic
	Config    config.Config
	// Routing search metrics recorded by the built-in router, keyed by run id.
	RoutingMetrics *opt.MetricsStore
	Logger         *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewServer wires a server. The heuristic must emit its events to broker
// (see BrokerObserver) for the event streams to carry anything.
func NewServer(cfg config.Config, st store.Store, broker EventBroker, h *heuristic.Heuristic, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if broker == nil {
		broker = NewBroker()
	}
	slots := cfg.Server.MaxConcurrentRuns
	if slots <= 0 {
		slots = 1
	}
	return &Server{
		Store:     st,
		Broker:    broker,
		Heuristic: h,
		Config:    cfg,
		Logger:    logger,
		slots:     make(chan struct{}, slots),
	}
}

// Routes returns the service mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Runs
	mux.HandleFunc("/v1/runs", s.RunsHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /events/stream, /ws, /metrics

	// Instances and defaults
	mux.HandleFunc("/v1/instances/generate", s.GenerateInstanceHandler)
	mux.HandleFunc("/v1/heuristic/config", s.HeuristicConfigHandler)

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Health and diagnostics
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/vars", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// Wait blocks until background runs finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
