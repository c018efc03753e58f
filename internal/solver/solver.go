// Package solver defines the abstract solve capability shared by the packing
// and routing engines. Problems and results are tagged unions over the
// known sub-model shapes with an open extension map for engine-specific output.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusOptimal       Status = "OPTIMAL_SOLUTION"
	StatusSatisfied     Status = "SATISFIED"
	StatusUnsatisfiable Status = "UNSATISFIABLE"
	StatusUnbounded     Status = "UNBOUNDED"
	StatusUnknown       Status = "UNKNOWN"
	StatusError         Status = "ERROR"
	StatusTimeout       Status = "TIMEOUT"
	StatusSkippedEmpty  Status = "SKIPPED_EMPTY"
	StatusNoRouting     Status = "NO_VRP"
)

// Feasible reports whether the status carries a usable solution.
func (s Status) Feasible() bool {
	return s == StatusOptimal || s == StatusSatisfied
}

func (s Status) String() string { return string(s) }

type Kind string

const (
	KindPacking Kind = "packing"
	KindRouting Kind = "routing"
)

// PackingData is a 1-D bin packing sub-model.
type PackingData struct {
	Capacity int   `json:"capacity"`
	Sizes    []int `json:"size"`
}

// RoutingData is a capacitated routing sub-model. Node 0 is the depot,
// Demand is indexed 1..N through Demand[k-1].
type RoutingData struct {
	N          int     `json:"N"`
	Capacity   int     `json:"Capacity"`
	NbVehicles int     `json:"nbVehicles"`
	Demand     []int   `json:"Demand"`
	Distance   [][]int `json:"Distance"`
}

// Problem holds exactly one of Packing or Routing.
type Problem struct {
	Packing *PackingData
	Routing *RoutingData
}

var ErrBadProblem = errors.New("malformed problem")

func (p Problem) Kind() Kind {
	if p.Packing != nil {
		return KindPacking
	}
	if p.Routing != nil {
		return KindRouting
	}
	return ""
}

func (p Problem) Validate() error {
	if (p.Packing == nil) == (p.Routing == nil) {
		return fmt.Errorf("%w: exactly one sub-model must be set", ErrBadProblem)
	}
	if pk := p.Packing; pk != nil {
		if pk.Capacity <= 0 {
			return fmt.Errorf("%w: packing capacity %d", ErrBadProblem, pk.Capacity)
		}
		for i, s := range pk.Sizes {
			if s <= 0 {
				return fmt.Errorf("%w: item %d size %d", ErrBadProblem, i+1, s)
			}
		}
		return nil
	}
	r := p.Routing
	if r.N < 0 || r.Capacity <= 0 || r.NbVehicles < 0 {
		return fmt.Errorf("%w: routing N=%d Capacity=%d nbVehicles=%d", ErrBadProblem, r.N, r.Capacity, r.NbVehicles)
	}
	if len(r.Demand) != r.N {
		return fmt.Errorf("%w: %d demands for %d nodes", ErrBadProblem, len(r.Demand), r.N)
	}
	if len(r.Distance) != r.N+1 {
		return fmt.Errorf("%w: distance has %d rows, want %d", ErrBadProblem, len(r.Distance), r.N+1)
	}
	for i, row := range r.Distance {
		if len(row) != r.N+1 {
			return fmt.Errorf("%w: distance row %d has %d columns", ErrBadProblem, i, len(row))
		}
	}
	return nil
}

type PackingFields struct {
	NBins *int `json:"nBins,omitempty"`
	// BinOfItem[i] is the 1-based pallet of item i+1.
	BinOfItem []int `json:"binOfItem,omitempty"`
}

type RoutingFields struct {
	// Routes are vehicle tours in node ids, depot excluded.
	Routes [][]int `json:"routes,omitempty"`
}

// Fields is the typed solution payload plus engine-specific extras.
type Fields struct {
	Packing *PackingFields `json:"packing,omitempty"`
	Routing *RoutingFields `json:"routing,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type Result struct {
	Status      Status        `json:"status"`
	HasSolution bool          `json:"hasSolution"`
	Objective   *float64      `json:"objective,omitempty"`
	Fields      Fields        `json:"fields"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Solver answers one sub-model. The time budget is the ctx deadline; an
// engine failure is returned as an error alongside a Result with StatusError.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p Problem) (Result, error)
}

// Func adapts a function to Solver.
type Func func(ctx context.Context, p Problem) (Result, error)

func (f Func) Name() string { return "func" }

func (f Func) Solve(ctx context.Context, p Problem) (Result, error) { return f(ctx, p) }

type labelKey struct{}

// WithLabel tags ctx with a label engines may use to key diagnostics.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

// Label returns the label set by WithLabel, or "".
func Label(ctx context.Context) string {
	s, _ := ctx.Value(labelKey{}).(string)
	return s
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Failed builds an error result.
func Failed(start time.Time, err error) (Result, error) {
	return Result{Status: StatusError, Elapsed: time.Since(start)}, err
}

// TimeoutStatus maps a context error to a status: deadline exceeded is a
// timeout, anything else unknown.
func TimeoutStatus(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	return StatusUnknown
}
