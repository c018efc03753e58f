// Package heuristic implements the pack-group-route decomposition: per-customer
// bin packing, closed-form full trips, and a reduced capacitated routing
// solve over the residual demand.
package heuristic

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"palletroute/internal/model"
	"palletroute/internal/solver"
)

var tracer = otel.Tracer("palletroute/heuristic")

type Heuristic struct {
	cfg      Config
	packer   *PackingResolver
	packing  solver.Solver
	routing  solver.Solver
	logger   *zap.Logger
	observer Observer
}

type Option func(*Heuristic)

func WithLogger(l *zap.Logger) Option {
	return func(h *Heuristic) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithObserver adds an observer; repeated options fan out to all of them.
func WithObserver(o Observer) Option {
	return func(h *Heuristic) { h.observer = Observers(h.observer, o) }
}

func New(cfg Config, packing, routing solver.Solver, opts ...Option) (*Heuristic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if packing == nil || routing == nil {
		return nil, fmt.Errorf("heuristic: packing and routing solvers are required")
	}
	h := &Heuristic{cfg: cfg, packing: packing, routing: routing, logger: zap.NewNop(), observer: nopObserver{}}
	for _, o := range opts {
		o(h)
	}
	p, err := NewPackingResolver(packing, cfg, h.logger, h.observer)
	if err != nil {
		return nil, err
	}
	h.packer = p
	return h, nil
}

func (h *Heuristic) Config() Config { return h.cfg }

// WithConfig returns a heuristic sharing solvers, logger and observers but
// using cfg. The packing cache is not shared.
func (h *Heuristic) WithConfig(cfg Config) (*Heuristic, error) {
	return New(cfg, h.packing, h.routing, WithLogger(h.logger), WithObserver(h.observer))
}

func (h *Heuristic) emit(ctx context.Context, ev Event) {
	ev.RunID = RunID(ctx)
	ev.Time = time.Now()
	h.observer.Observe(ctx, ev)
}

// Run executes the full pipeline on inst. Malformed input fails with an error
// matching ErrPrecondition before any solver call. A routing failure is not
// an error: the result carries the routing status and a nil total.
func (h *Heuristic) Run(ctx context.Context, inst model.Instance) (res *model.HeuristicResult, err error) {
	ctx, span := tracer.Start(ctx, "heuristic.Run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("instance", inst.Name), attribute.Int("customers", inst.N)))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.emit(ctx, Event{Type: EventRunFailed, Instance: inst.Name, Error: err.Error()})
		}
	}()

	if verr := inst.Validate(); verr != nil {
		return nil, &PreconditionError{Field: "instance", Err: verr}
	}
	h.emit(ctx, Event{Type: EventRunStarted, Instance: inst.Name})
	start := time.Now()
	if solver.Label(ctx) == "" {
		ctx = solver.WithLabel(ctx, inst.Name)
	}

	packings, err := h.packer.PackAll(ctx, &inst)
	if err != nil {
		return nil, err
	}
	h.emit(ctx, Event{Type: EventPackingDone, Instance: inst.Name, Packings: packings})
	counts := make([]int, len(packings))
	fallbacks := 0
	for i, p := range packings {
		counts[i] = p.Pallets
		if p.Fallback != "" {
			fallbacks++
		}
	}

	_, gspan := tracer.Start(ctx, "heuristic.group")
	grouping, err := Group(counts, inst.Capacity, inst.Distance, h.cfg.TreatEqualCapacityAsFixed)
	gspan.End()
	if err != nil {
		return nil, fmt.Errorf("group pallets: %w", err)
	}
	h.logger.Info("pallets grouped",
		zap.String("instance", inst.Name),
		zap.Int("fixed_cost", grouping.FixedCost),
		zap.Int("full_trip_customers", len(grouping.FullTrips)),
		zap.Int("residual_customers", len(grouping.RemainingCustomers)),
		zap.Int("fallbacks", fallbacks))
	h.emit(ctx, Event{Type: EventGroupingDone, Instance: inst.Name, Grouping: &grouping})

	res = &model.HeuristicResult{Instance: inst.Name, Packing: packings, Grouping: grouping}
	var routes [][]int
	if len(grouping.RemainingCustomers) == 0 {
		res.Routing = &model.RoutingOutcome{Status: string(solver.StatusNoRouting), HasSolution: true, Objective: solver.Float(0)}
		res.Objective, res.Status = Compose(grouping.FixedCost, nil)
		h.logger.Info("routing skipped, all demand in full trips", zap.String("instance", inst.Name))
	} else {
		nb := h.cfg.NbVehicles
		if inst.NbVehicles > 0 {
			nb = inst.NbVehicles
		}
		red, err := BuildReduced(inst.Distance, grouping, inst.Capacity, nb)
		if err != nil {
			return nil, fmt.Errorf("build reduced instance: %w", err)
		}
		res.Reduced = &red
		outcome := Route(ctx, h.routing, red, h.cfg.RoutingTimeLimit, h.logger)
		res.Routing = &outcome
		res.Objective, res.Status = Compose(grouping.FixedCost, &outcome)
		routes = outcome.Routes
		if !outcome.HasSolution {
			h.logger.Warn("routing failed",
				zap.String("instance", inst.Name),
				zap.String("status", outcome.Status),
				zap.Float64("time_sec", outcome.TimeSec))
		}
	}
	h.emit(ctx, Event{Type: EventRoutingDone, Instance: inst.Name, Routing: res.Routing})

	if res.HasSolution() && (res.Reduced == nil || len(routes) > 0) {
		audit, aerr := Audit(counts, inst.Capacity, grouping, res.Reduced, routes)
		if aerr != nil {
			h.logger.Warn("delivery audit failed", zap.String("instance", inst.Name), zap.Error(aerr))
		} else {
			res.Audit = &audit
		}
	}
	res.TimeSec = time.Since(start).Seconds()

	fields := []zap.Field{
		zap.String("instance", inst.Name),
		zap.String("status", res.Status),
		zap.Int("fixed_cost", grouping.FixedCost),
		zap.Float64("time_sec", res.TimeSec),
	}
	if res.Objective.TotalObjective != nil {
		fields = append(fields, zap.Float64("total_objective", *res.Objective.TotalObjective))
		span.SetAttributes(attribute.Float64("total_objective", *res.Objective.TotalObjective))
	}
	h.logger.Info("heuristic finished", fields...)
	span.SetAttributes(attribute.String("status", res.Status))
	h.emit(ctx, Event{Type: EventRunCompleted, Instance: inst.Name, Result: res})
	return res, nil
}

// Outcome is one entry of a batch run.
type Outcome struct {
	Instance string
	Result   *model.HeuristicResult
	Err      error
}

// RunAll runs every instance in order. Failures are recorded per instance
// and never retried; once ctx is done the remaining instances get its error.
func (h *Heuristic) RunAll(ctx context.Context, insts []model.Instance) []Outcome {
	out := make([]Outcome, len(insts))
	for i, inst := range insts {
		out[i].Instance = inst.Name
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		out[i].Result, out[i].Err = h.Run(ctx, inst)
	}
	return out
}
