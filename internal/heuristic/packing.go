package heuristic

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"palletroute/internal/model"
	"palletroute/internal/solver"
)

type cachedPacking struct {
	pallets   int
	status    string
	binOfItem []int
}

// PackingResolver turns each customer's items into a pallet count that is an
// upper bound on the optimal packing, or a flagged estimate under
// FallbackVolumeLB.
type PackingResolver struct {
	solver   solver.Solver
	cfg      Config
	limiter  *rate.Limiter
	cache    *lru.Cache[string, cachedPacking]
	logger   *zap.Logger
	observer Observer
}

func NewPackingResolver(s solver.Solver, cfg Config, logger *zap.Logger, obs Observer) (*PackingResolver, error) {
	if s == nil {
		return nil, fmt.Errorf("packing resolver: nil solver")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	r := &PackingResolver{solver: s, cfg: cfg, logger: logger, observer: obs}
	if cfg.SolverCallsPerSecond > 0 {
		burst := cfg.SolverBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.SolverCallsPerSecond), burst)
	}
	if cfg.CacheSize > 0 {
		c, err := lru.New[string, cachedPacking](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("packing cache: %w", err)
		}
		r.cache = c
	}
	return r, nil
}

func cacheKey(sizes []int, binCapacity int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(binCapacity))
	b.WriteByte('|')
	for i, s := range sizes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(s))
	}
	return b.String()
}

// PackAll resolves every customer of inst concurrently. Results are indexed
// by customer id, never by completion order. It fails only when ctx itself
// is cancelled.
func (r *PackingResolver) PackAll(ctx context.Context, inst *model.Instance) ([]model.CustomerPacking, error) {
	ctx, span := tracer.Start(ctx, "heuristic.pack")
	defer span.End()
	span.SetAttributes(attribute.Int("customers", inst.N), attribute.Int("workers", r.cfg.workers()))

	out := make([]model.CustomerPacking, inst.N)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.workers())
	for c := 1; c <= inst.N; c++ {
		sizes := inst.ItemSizes(c)
		g.Go(func() error {
			out[c-1] = r.Resolve(gctx, inst.Name, c, sizes, inst.BinCapacity)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("packing: %w", err)
	}
	return out, nil
}

// Resolve packs one customer. It always returns a usable count.
func (r *PackingResolver) Resolve(ctx context.Context, instance string, customer int, sizes []int, binCapacity int) model.CustomerPacking {
	cp := model.CustomerPacking{Customer: customer, ItemSizes: sizes}
	if len(sizes) == 0 {
		cp.Status = string(solver.StatusSkippedEmpty)
		cp.BinOfItem = []int{}
		cp.PalletItems = [][]int{}
		r.emit(ctx, instance, cp)
		return cp
	}

	key := cacheKey(sizes, binCapacity)
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			cp.Pallets = hit.pallets
			cp.Status = hit.status
			cp.Cached = true
			if hit.binOfItem != nil {
				cp.BinOfItem = append([]int(nil), hit.binOfItem...)
				cp.PalletItems = ReconstructPallets(cp.BinOfItem, cp.Pallets)
			}
			r.emit(ctx, instance, cp)
			return cp
		}
	}

	ctx, span := tracer.Start(ctx, "heuristic.pack.customer")
	defer span.End()
	span.SetAttributes(attribute.Int("customer", customer), attribute.Int("items", len(sizes)))

	start := time.Now()
	res, ok, err := r.solve(ctx, sizes, binCapacity)
	cp.TimeSec = time.Since(start).Seconds()
	if ok {
		cp.Pallets = countFrom(res)
		cp.Status = string(res.Status)
		if res.Fields.Packing != nil && res.Fields.Packing.BinOfItem != nil && len(res.Fields.Packing.BinOfItem) == len(sizes) {
			cp.BinOfItem = append([]int(nil), res.Fields.Packing.BinOfItem...)
			cp.PalletItems = ReconstructPallets(cp.BinOfItem, cp.Pallets)
		}
		if r.cache != nil {
			r.cache.Add(key, cachedPacking{pallets: cp.Pallets, status: cp.Status, binOfItem: cp.BinOfItem})
		}
		span.SetAttributes(attribute.Int("pallets", cp.Pallets), attribute.String("status", cp.Status))
		r.logger.Debug("customer packed",
			zap.String("instance", instance),
			zap.Int("customer", customer),
			zap.Int("pallets", cp.Pallets),
			zap.String("status", cp.Status),
			zap.Float64("time_sec", cp.TimeSec))
		r.emit(ctx, instance, cp)
		return cp
	}

	fb := r.cfg.Fallback
	cp.Pallets = fb.Pallets(sizes, binCapacity)
	cp.Fallback = fb.String()
	cp.Estimated = fb.Estimated()
	cp.Status = fmt.Sprintf("%s (fallback=%s)", res.Status, fb)
	span.SetAttributes(attribute.Int("pallets", cp.Pallets), attribute.String("fallback", cp.Fallback))
	fields := []zap.Field{
		zap.String("instance", instance),
		zap.Int("customer", customer),
		zap.String("solver_status", string(res.Status)),
		zap.String("fallback", cp.Fallback),
		zap.Int("pallets", cp.Pallets),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("packing fallback", fields...)
	r.emit(ctx, instance, cp)
	return cp
}

// solve calls the packing solver under the per-customer budget and reports
// whether it produced a usable pallet count.
func (r *PackingResolver) solve(ctx context.Context, sizes []int, binCapacity int) (solver.Result, bool, error) {
	if r.cfg.PackingTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PackingTimeLimit)
		defer cancel()
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return solver.Result{Status: solver.TimeoutStatus(ctx.Err())}, false, err
		}
	}
	prob := solver.Problem{Packing: &solver.PackingData{Capacity: binCapacity, Sizes: sizes}}
	res, err := r.solver.Solve(ctx, prob)
	if res.Status == "" {
		res.Status = solver.StatusUnknown
	}
	if err != nil {
		if res.Status == solver.StatusUnknown {
			res.Status = solver.StatusError
		}
		return res, false, err
	}
	return res, countFrom(res) > 0, nil
}

// countFrom reads the pallet count: an explicit bin count first, then the
// objective. Returns 0 when neither is present.
func countFrom(res solver.Result) int {
	if res.Fields.Packing != nil && res.Fields.Packing.NBins != nil {
		return *res.Fields.Packing.NBins
	}
	if res.Objective != nil {
		return int(*res.Objective)
	}
	return 0
}

// ReconstructPallets groups 1-based item indices by their 1-based pallet.
// Assignments outside 1..pallets are ignored.
func ReconstructPallets(binOfItem []int, pallets int) [][]int {
	groups := make([][]int, pallets)
	for i := range groups {
		groups[i] = []int{}
	}
	for i, b := range binOfItem {
		if b >= 1 && b <= pallets {
			groups[b-1] = append(groups[b-1], i+1)
		}
	}
	return groups
}

func (r *PackingResolver) emit(ctx context.Context, instance string, cp model.CustomerPacking) {
	c := cp
	r.observer.Observe(ctx, Event{Type: EventPackingCustomer, RunID: RunID(ctx), Instance: instance, Time: time.Now(), Packing: &c})
}
