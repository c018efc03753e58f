package metrics

import (
	"context"
	"strings"

	"palletroute/internal/heuristic"
)

// Recorder is a heuristic.Observer that updates the run collectors.
type Recorder struct{}

func (Recorder) Observe(_ context.Context, ev heuristic.Event) {
	switch ev.Type {
	case heuristic.EventPackingCustomer:
		if ev.Packing == nil {
			return
		}
		status, _, _ := strings.Cut(ev.Packing.Status, " (")
		PackingSolves.WithLabelValues(status, ev.Packing.Fallback).Inc()
		PackingDuration.Observe(ev.Packing.TimeSec)
		if ev.Packing.Fallback != "" {
			Fallbacks.WithLabelValues(ev.Packing.Fallback).Inc()
		}
	case heuristic.EventGroupingDone:
		if ev.Grouping == nil {
			return
		}
		trips := 0
		for _, t := range ev.Grouping.FullTrips {
			trips += t
		}
		FixedTrips.Add(float64(trips))
	case heuristic.EventRoutingDone:
		if ev.Routing == nil {
			return
		}
		RoutingSolves.WithLabelValues(ev.Routing.Status).Inc()
		RoutingDuration.Observe(ev.Routing.TimeSec)
	case heuristic.EventRunCompleted:
		status := "unknown"
		if ev.Result != nil {
			status = ev.Result.Status
		}
		Runs.WithLabelValues(status).Inc()
	case heuristic.EventRunFailed:
		Runs.WithLabelValues("failed").Inc()
	}
}
