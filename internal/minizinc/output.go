package minizinc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"palletroute/internal/solver"
)

const (
	solutionSep   = "----------"
	searchDone    = "=========="
	unsatMarker   = "=====UNSATISFIABLE====="
	unboundMarker = "=====UNBOUNDED====="
	unsatOrUnb    = "=====UNSATorUNBOUNDED====="
	unknownMarker = "=====UNKNOWN====="
	errorMarker   = "=====ERROR====="
)

// parsed is the outcome of one minizinc run's stdout.
type parsed struct {
	status   solver.Status
	solution map[string]any
	// solutions counts complete solution blocks.
	solutions int
}

// parseOutput reads `--output-mode json` output. The last complete solution
// wins; a solution without the search-complete marker is SATISFIED.
func parseOutput(out []byte) (parsed, error) {
	var p parsed
	var block strings.Builder
	complete := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case solutionSep:
			sol := map[string]any{}
			dec := json.NewDecoder(strings.NewReader(block.String()))
			dec.UseNumber()
			if err := dec.Decode(&sol); err != nil {
				return p, fmt.Errorf("decode solution %d: %w", p.solutions+1, err)
			}
			p.solution = sol
			p.solutions++
			block.Reset()
		case searchDone:
			complete = true
		case unsatMarker:
			p.status = solver.StatusUnsatisfiable
		case unboundMarker:
			p.status = solver.StatusUnbounded
		case unsatOrUnb, unknownMarker:
			p.status = solver.StatusUnknown
		case errorMarker:
			p.status = solver.StatusError
		default:
			if strings.HasPrefix(line, "%") {
				// comments and statistics
				continue
			}
			block.WriteString(line)
			block.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return p, err
	}
	if p.status == "" {
		switch {
		case p.solutions > 0 && complete:
			p.status = solver.StatusOptimal
		case p.solutions > 0:
			p.status = solver.StatusSatisfied
		default:
			p.status = solver.StatusUnknown
		}
	}
	return p, nil
}

// fields lifts known output variables into typed fields and leaves the rest
// in Extra.
func fields(kind solver.Kind, sol map[string]any, nbVehicles, n int) (solver.Fields, *float64) {
	var f solver.Fields
	var objective *float64
	extra := map[string]any{}
	for k, v := range sol {
		switch {
		case k == "_objective" || k == "objective":
			if x, ok := toFloat(v); ok {
				objective = &x
			}
		case kind == solver.KindPacking && k == "nBins":
			if x, ok := toInt(v); ok {
				if f.Packing == nil {
					f.Packing = &solver.PackingFields{}
				}
				f.Packing.NBins = &x
			}
		case kind == solver.KindPacking && k == "b":
			if xs, ok := toInts(v); ok {
				if f.Packing == nil {
					f.Packing = &solver.PackingFields{}
				}
				f.Packing.BinOfItem = xs
			}
		case kind == solver.KindRouting && k == "successor":
			if xs, ok := toInts(v); ok {
				f.Routing = &solver.RoutingFields{Routes: decodeSuccessor(xs, n, nbVehicles)}
			}
			extra[k] = v
		case strings.HasPrefix(k, "_"):
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		f.Extra = extra
	}
	return f, objective
}

// decodeSuccessor turns a giant-tour successor array into routes. Nodes
// 1..n are customers; nodes above n are depot copies, the first nbVehicles
// of which start a vehicle's tour.
func decodeSuccessor(succ []int, n, nbVehicles int) [][]int {
	var routes [][]int
	seen := make(map[int]bool, n)
	for v := 0; v < nbVehicles; v++ {
		startNode := n + 1 + v
		if startNode > len(succ) {
			break
		}
		var route []int
		next := succ[startNode-1]
		for next >= 1 && next <= n && !seen[next] {
			seen[next] = true
			route = append(route, next)
			if next > len(succ) {
				break
			}
			next = succ[next-1]
		}
		if len(route) > 0 {
			routes = append(routes, route)
		}
	}
	return routes
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		i, err := x.Int64()
		return int(i), err == nil
	case float64:
		return int(x), true
	case int:
		return x, true
	}
	return 0, false
}

func toInts(v any) ([]int, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, len(arr))
	for i, e := range arr {
		x, ok := toInt(e)
		if !ok {
			return nil, false
		}
		out[i] = x
	}
	return out, true
}
