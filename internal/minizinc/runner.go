// Package minizinc drives the `minizinc` command-line tool as a solver.Solver.
package minizinc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"palletroute/internal/solver"
)

const (
	DefaultBinary = "minizinc"
	DefaultSolver = "chuffed"
)

// deadlineMargin leaves minizinc time to flush its best solution before
// the process is killed.
const deadlineMargin = 250 * time.Millisecond

// Runner solves one model with the minizinc binary. Packing models take
// n, capacity, size and output nBins (and optionally b); routing models take
// N, Capacity, nbVehicles, Demand, Distance and output successor.
type Runner struct {
	Binary     string
	ModelPath  string
	SolverName string
	Threads    int
	Logger     *zap.Logger
}

func (r *Runner) Name() string {
	return "minizinc/" + r.solverName()
}

func (r *Runner) solverName() string {
	if r.SolverName == "" {
		return DefaultSolver
	}
	return r.SolverName
}

func (r *Runner) binary() string {
	if r.Binary == "" {
		return DefaultBinary
	}
	return r.Binary
}

func dataFor(p solver.Problem) (map[string]any, error) {
	switch {
	case p.Packing != nil:
		return map[string]any{
			"n":        len(p.Packing.Sizes),
			"capacity": p.Packing.Capacity,
			"size":     p.Packing.Sizes,
		}, nil
	case p.Routing != nil:
		return map[string]any{
			"N":          p.Routing.N,
			"Capacity":   p.Routing.Capacity,
			"nbVehicles": p.Routing.NbVehicles,
			"Demand":     p.Routing.Demand,
			"Distance":   p.Routing.Distance,
		}, nil
	}
	return nil, solver.ErrBadProblem
}

func (r *Runner) args(ctx context.Context, dataPath string) []string {
	args := []string{r.ModelPath, dataPath, "--output-mode", "json", "--output-objective", "--solver", r.solverName()}
	if dl, ok := ctx.Deadline(); ok {
		limit := time.Until(dl) - deadlineMargin
		if limit < 100*time.Millisecond {
			limit = 100 * time.Millisecond
		}
		args = append(args, "--time-limit", strconv.FormatInt(limit.Milliseconds(), 10))
	}
	if r.Threads > 0 {
		args = append(args, "-p", strconv.Itoa(r.Threads))
	}
	return args
}

func (r *Runner) Solve(ctx context.Context, p solver.Problem) (solver.Result, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		return solver.Failed(start, err)
	}
	if r.ModelPath == "" {
		return solver.Failed(start, errors.New("minizinc: model path not set"))
	}
	data, err := dataFor(p)
	if err != nil {
		return solver.Failed(start, err)
	}
	f, err := os.CreateTemp("", "palletroute-*.json")
	if err != nil {
		return solver.Failed(start, fmt.Errorf("minizinc: data file: %w", err))
	}
	defer os.Remove(f.Name())
	if err := json.NewEncoder(f).Encode(data); err != nil {
		f.Close()
		return solver.Failed(start, fmt.Errorf("minizinc: write data: %w", err))
	}
	if err := f.Close(); err != nil {
		return solver.Failed(start, fmt.Errorf("minizinc: write data: %w", err))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary(), r.args(ctx, f.Name())...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	elapsed := time.Since(start)

	out, perr := parseOutput(stdout.Bytes())
	if perr != nil {
		res, _ := solver.Failed(start, nil)
		return res, fmt.Errorf("minizinc: %w", perr)
	}
	if runErr != nil && out.solutions == 0 {
		if ctx.Err() != nil {
			return solver.Result{Status: solver.TimeoutStatus(ctx.Err()), Elapsed: elapsed}, nil
		}
		if r.Logger != nil {
			r.Logger.Warn("minizinc failed", zap.String("model", r.ModelPath), zap.Error(runErr), zap.ByteString("stderr", stderr.Bytes()))
		}
		res, _ := solver.Failed(start, nil)
		return res, fmt.Errorf("minizinc: %w: %s", runErr, bytes.TrimSpace(stderr.Bytes()))
	}

	res := solver.Result{Status: out.status, Elapsed: elapsed}
	if out.solution != nil {
		n, vehicles := 0, 0
		if p.Routing != nil {
			n, vehicles = p.Routing.N, p.Routing.NbVehicles
		}
		res.Fields, res.Objective = fields(p.Kind(), out.solution, vehicles, n)
		res.HasSolution = res.Status.Feasible()
	}
	if r.Logger != nil {
		r.Logger.Debug("minizinc finished",
			zap.String("model", r.ModelPath),
			zap.String("status", string(res.Status)),
			zap.Int("solutions", out.solutions),
			zap.Duration("elapsed", elapsed))
	}
	return res, nil
}
