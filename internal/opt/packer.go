package opt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"palletroute/internal/solver"
)

// BinPacker solves 1-D bin packing with best-fit decreasing.
type BinPacker struct{}

func (BinPacker) Name() string { return "bfd" }

// PackBFD places items (sizes, in input order) into bins of the given
// capacity and returns the 1-based bin of every item plus the bin count.
// Items larger than capacity get bin 0.
func PackBFD(sizes []int, capacity int) (binOf []int, bins int) {
	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	// largest first; ties keep input order
	sort.SliceStable(order, func(a, b int) bool { return sizes[order[a]] > sizes[order[b]] })
	binOf = make([]int, len(sizes))
	var residual []int
	for _, i := range order {
		s := sizes[i]
		if s > capacity {
			continue
		}
		best, bestLeft := -1, capacity+1
		for b, left := range residual {
			if s <= left && left-s < bestLeft {
				best, bestLeft = b, left-s
			}
		}
		if best < 0 {
			residual = append(residual, capacity)
			best = len(residual) - 1
		}
		residual[best] -= s
		binOf[i] = best + 1
	}
	return binOf, len(residual)
}

// LowerBound is ceil(sum(sizes)/capacity).
func LowerBound(sizes []int, capacity int) int {
	total := 0
	for _, s := range sizes {
		total += s
	}
	return (total + capacity - 1) / capacity
}

func (BinPacker) Solve(ctx context.Context, prob solver.Problem) (solver.Result, error) {
	start := time.Now()
	if prob.Packing == nil {
		return solver.Failed(start, fmt.Errorf("%w: packer needs a packing problem", solver.ErrBadProblem))
	}
	if err := prob.Validate(); err != nil {
		return solver.Failed(start, err)
	}
	if err := ctx.Err(); err != nil {
		return solver.Result{Status: solver.TimeoutStatus(err), Elapsed: time.Since(start)}, nil
	}
	pk := prob.Packing
	for _, s := range pk.Sizes {
		if s > pk.Capacity {
			return solver.Result{Status: solver.StatusUnsatisfiable, Elapsed: time.Since(start)}, nil
		}
	}
	binOf, bins := PackBFD(pk.Sizes, pk.Capacity)
	status := solver.StatusSatisfied
	if bins == LowerBound(pk.Sizes, pk.Capacity) {
		status = solver.StatusOptimal
	}
	return solver.Result{
		Status:      status,
		HasSolution: true,
		Objective:   solver.Float(float64(bins)),
		Fields: solver.Fields{Packing: &solver.PackingFields{
			NBins:     solver.Int(bins),
			BinOfItem: binOf,
		}},
		Elapsed: time.Since(start),
	}, nil
}
