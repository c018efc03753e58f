// Package metrics holds the Prometheus collectors of the service and an
// observer that feeds them from heuristic run events.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	PackingSolves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "palletroute_packing_solves_total", Help: "Per-customer packing resolutions by solver status and fallback used."},
		[]string{"status", "fallback"},
	)
	PackingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "palletroute_packing_duration_seconds", Help: "Per-customer packing solve time.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 9)},
	)
	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "palletroute_fallbacks_total", Help: "Pallet counts substituted by a fallback strategy."},
		[]string{"strategy"},
	)
	RoutingSolves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "palletroute_routing_solves_total", Help: "Reduced routing solves by status."},
		[]string{"status"},
	)
	RoutingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "palletroute_routing_duration_seconds", Help: "Reduced routing solve time.", Buckets: prometheus.ExponentialBuckets(0.01, 3, 10)},
	)
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "palletroute_runs_total", Help: "Heuristic runs by final status."},
		[]string{"status"},
	)
	FixedTrips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "palletroute_fixed_trips_total", Help: "Full-truckload trips removed before routing."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		Registry.MustRegister(PackingSolves, PackingDuration, Fallbacks)
		Registry.MustRegister(RoutingSolves, RoutingDuration, Runs, FixedTrips)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
