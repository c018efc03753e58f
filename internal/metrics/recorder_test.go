package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"

	"palletroute/internal/heuristic"
	"palletroute/internal/model"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	var r Recorder
	before := counterValue(Fallbacks.WithLabelValues("volume_lb"))
	beforeTrips := counterValue(FixedTrips)

	r.Observe(ctx, heuristic.Event{Type: heuristic.EventPackingCustomer, Packing: &model.CustomerPacking{
		Status: "TIMEOUT (fallback=volume_lb)", Fallback: "volume_lb", TimeSec: 0.5}})
	r.Observe(ctx, heuristic.Event{Type: heuristic.EventPackingCustomer, Packing: &model.CustomerPacking{Status: "OPTIMAL_SOLUTION"}})
	r.Observe(ctx, heuristic.Event{Type: heuristic.EventGroupingDone, Grouping: &model.GroupingResult{FullTrips: map[int]int{1: 2, 4: 3}}})
	r.Observe(ctx, heuristic.Event{Type: heuristic.EventRoutingDone, Routing: &model.RoutingOutcome{Status: "NO_VRP"}})
	r.Observe(ctx, heuristic.Event{Type: heuristic.EventRunCompleted, Result: &model.HeuristicResult{Status: "SATISFIED"}})
	r.Observe(ctx, heuristic.Event{Type: heuristic.EventRunFailed})
	r.Observe(ctx, heuristic.Event{Type: heuristic.EventPackingDone})

	assert.Equal(t, before+1, counterValue(Fallbacks.WithLabelValues("volume_lb")))
	assert.Equal(t, beforeTrips+5, counterValue(FixedTrips))
	assert.GreaterOrEqual(t, counterValue(PackingSolves.WithLabelValues("TIMEOUT", "volume_lb")), 1.0)
	assert.GreaterOrEqual(t, counterValue(PackingSolves.WithLabelValues("OPTIMAL_SOLUTION", "")), 1.0)
	assert.GreaterOrEqual(t, counterValue(RoutingSolves.WithLabelValues("NO_VRP")), 1.0)
	assert.GreaterOrEqual(t, counterValue(Runs.WithLabelValues("failed")), 1.0)
}

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	mfs, err := Registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
