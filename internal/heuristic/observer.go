package heuristic

import (
	"context"
	"time"

	"palletroute/internal/model"
)

// Event types emitted during a run.
const (
	EventRunStarted      = "run.started"
	EventPackingCustomer = "packing.customer"
	EventPackingDone     = "packing.done"
	EventGroupingDone    = "grouping.done"
	EventRoutingDone     = "routing.done"
	EventRunCompleted    = "run.completed"
	EventRunFailed       = "run.failed"
)

// Event is a progress notification. Only the payload matching Type is set.
type Event struct {
	Type     string                  `json:"type"`
	RunID    string                  `json:"runId,omitempty"`
	Instance string                  `json:"instance,omitempty"`
	Time     time.Time               `json:"time"`
	Packing  *model.CustomerPacking  `json:"packing,omitempty"`
	Packings []model.CustomerPacking `json:"packings,omitempty"`
	Grouping *model.GroupingResult   `json:"grouping,omitempty"`
	Routing  *model.RoutingOutcome   `json:"routing,omitempty"`
	Result   *model.HeuristicResult  `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Observer receives run events. Packing events arrive from worker
// goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if _, nop := o.(nopObserver); o != nil && !nop {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}

type runIDKey struct{}

// WithRunID tags ctx so emitted events carry the run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func RunID(ctx context.Context) string {
	s, _ := ctx.Value(runIDKey{}).(string)
	return s
}
