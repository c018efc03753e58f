package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Problem is a capacitated routing instance on a distance matrix. Node 0 is
// the depot; customers are nodes 1..len(Demand) with Demand[i-1] pallets.
type Problem struct {
	Distance                [][]int
	Demand                  []int
	Capacity                int
	Vehicles                int       // route slots; 0 means one per customer
	IterationsLimit         int       // optional iteration cap
	InitialTemp             float64   // initial temperature for SA
	Cooling                 float64   // cooling factor per iteration
	InitialRemovalWeights   []float64 // [random, shaw]
	InitialInsertionWeights []float64 // [greedy, regret2]
}

// Solution holds one customer sequence per vehicle, depot implicit at both ends.
type Solution struct {
	Routes     [][]int
	Unassigned []int
	Distance   int
	Cost       float64
}

type Metrics struct {
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	Iterations            int
	Improvements          int
	AcceptedWorse         int
	BestCost              float64
	FinalCost             float64
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Snapshots             []WeightSnapshot
}

type WeightSnapshot struct {
	Iteration int
	Removal   [2]float64
	Insertion [2]float64
}

func (p Problem) customers() int { return len(p.Demand) }

func (p Problem) vehicles() int {
	if p.Vehicles > 0 {
		return p.Vehicles
	}
	if n := p.customers(); n > 0 {
		return n
	}
	return 1
}

func (p Problem) dist(a, b int) float64 { return float64(p.Distance[a][b]) }

func (p Problem) demand(node int) int { return p.Demand[node-1] }

// unassignedPenalty exceeds the cost of any complete set of routes, so fewer
// unassigned customers always wins.
func (p Problem) unassignedPenalty() float64 {
	maxD := 0
	for _, row := range p.Distance {
		for _, d := range row {
			if d > maxD {
				maxD = d
			}
		}
	}
	return float64(2*(p.customers()+1)*maxD + 1)
}

// Solve runs ALNS with random/Shaw removal, greedy/regret-2 insertion and
// simulated-annealing acceptance until ctx is done or the iteration cap hits.
// Capacity is never violated; customers that cannot be placed stay unassigned.
func Solve(ctx context.Context, p Problem, seed int64) (Solution, Metrics) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	penalty := p.unassignedPenalty()

	curr := greedySeed(p)
	curr.Cost = cost(p, curr, penalty)
	best := curr.clone()

	remW := []float64{1, 1} // random, shaw
	insW := []float64{1, 1} // greedy, regret2
	if len(p.InitialRemovalWeights) == 2 {
		remW = []float64{p.InitialRemovalWeights[0], p.InitialRemovalWeights[1]}
	}
	if len(p.InitialInsertionWeights) == 2 {
		insW = []float64{p.InitialInsertionWeights[0], p.InitialInsertionWeights[1]}
	}
	temp := 1.0
	if p.InitialTemp > 0 {
		temp = p.InitialTemp
	}
	cool := 0.995
	if p.Cooling > 0 && p.Cooling < 1 {
		cool = p.Cooling
	}
	m := Metrics{BestCost: best.Cost}
	snapshotEvery := 50
	if p.customers() < 2 {
		// nothing to destroy and repair
		m.FinalCost = best.Cost
		return best, m
	}
	for ctx.Err() == nil {
		if p.IterationsLimit > 0 && m.Iterations >= p.IterationsLimit {
			break
		}
		m.Iterations++
		k := 1 + rng.Intn(3)
		op := selectOp(remW, rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW, rng)
		m.InsertSelects[ip]++

		cand := curr.clone()
		var removed []int
		switch op {
		case 0:
			removed = pickRandomNodes(cand, k, rng)
		case 1:
			removed = shawRemoval(p, cand, k, rng)
		}
		cand = removeNodes(cand, removed)
		removed = append(removed, cand.Unassigned...)
		cand.Unassigned = nil
		switch ip {
		case 0:
			cand = greedyInsert(p, cand, removed)
		case 1:
			cand = regretInsert(p, cand, removed)
		}
		cand = twoOptImprove(p, cand)
		cand = crossExchangeImprove(p, cand)
		cand = twoOptStarImprove(p, cand)
		cand.Cost = cost(p, cand, penalty)

		delta := cand.Cost - curr.Cost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			if curr.Cost+1e-9 < best.Cost {
				best = curr.clone()
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				m.BestCost = best.Cost
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				if delta > 0 {
					m.AcceptedWorse++
				}
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cool
		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Removal: [2]float64{remW[0], remW[1]}, Insertion: [2]float64{insW[0], insW[1]}})
		}
	}
	m.FinalCost = best.Cost
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	return best, m
}

func (s Solution) clone() Solution {
	out := Solution{Routes: make([][]int, len(s.Routes)), Distance: s.Distance, Cost: s.Cost}
	for i, r := range s.Routes {
		out.Routes[i] = append([]int(nil), r...)
	}
	out.Unassigned = append([]int(nil), s.Unassigned...)
	return out
}

// greedySeed fills one vehicle at a time with the nearest customer that fits.
func greedySeed(p Problem) Solution {
	n := p.customers()
	used := make([]bool, n+1)
	routes := make([][]int, p.vehicles())
	assigned := 0
	for vi := range routes {
		load, last := 0, 0
		for {
			bestNode, bestD := -1, math.MaxFloat64
			for c := 1; c <= n; c++ {
				if used[c] || load+p.demand(c) > p.Capacity {
					continue
				}
				if d := p.dist(last, c); d < bestD {
					bestD = d
					bestNode = c
				}
			}
			if bestNode < 0 {
				break
			}
			routes[vi] = append(routes[vi], bestNode)
			used[bestNode] = true
			load += p.demand(bestNode)
			last = bestNode
			assigned++
		}
		if assigned == n {
			break
		}
	}
	sol := Solution{Routes: routes}
	for c := 1; c <= n; c++ {
		if !used[c] {
			sol.Unassigned = append(sol.Unassigned, c)
		}
	}
	return sol
}

func pickRandomNodes(sol Solution, k int, rng *rand.Rand) []int {
	var all []int
	for _, r := range sol.Routes {
		all = append(all, r...)
	}
	if len(all) == 0 {
		return nil
	}
	var removed []int
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

func removeNodes(sol Solution, removed []int) Solution {
	if len(removed) == 0 {
		return sol
	}
	rm := map[int]bool{}
	for _, i := range removed {
		rm[i] = true
	}
	for i, r := range sol.Routes {
		kept := r[:0]
		for _, c := range r {
			if !rm[c] {
				kept = append(kept, c)
			}
		}
		sol.Routes[i] = kept
	}
	return sol
}

func load(p Problem, route []int) int {
	l := 0
	for _, c := range route {
		l += p.demand(c)
	}
	return l
}

func deltaInsert(p Problem, route []int, node, pos int) float64 {
	prev, next := 0, 0
	if pos > 0 {
		prev = route[pos-1]
	}
	if pos < len(route) {
		next = route[pos]
	}
	return p.dist(prev, node) + p.dist(node, next) - p.dist(prev, next)
}

func insertAt(route []int, node, pos int) []int {
	out := make([]int, 0, len(route)+1)
	out = append(out, route[:pos]...)
	out = append(out, node)
	return append(out, route[pos:]...)
}

// regretInsert places the customer with the largest regret-2 value first.
// Customers with no capacity-feasible position stay unassigned.
func regretInsert(p Problem, sol Solution, removed []int) Solution {
	nodes := append([]int(nil), removed...)
	loads := make([]int, len(sol.Routes))
	for i, r := range sol.Routes {
		loads[i] = load(p, r)
	}
	for len(nodes) > 0 {
		bestNode, bestRoute, bestPos := -1, -1, -1
		bestRegret := -1.0
		for ni, c := range nodes {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			br, bpos := -1, -1
			for ri, r := range sol.Routes {
				if loads[ri]+p.demand(c) > p.Capacity {
					continue
				}
				for pos := 0; pos <= len(r); pos++ {
					d := deltaInsert(p, r, c, pos)
					if d < best1 {
						best2 = best1
						best1 = d
						br, bpos = ri, pos
					} else if d < best2 {
						best2 = d
					}
				}
			}
			if br < 0 {
				continue
			}
			regret := best2 - best1
			if best2 == math.MaxFloat64 {
				// a single option left: place it before it disappears
				regret = math.MaxFloat64
			}
			if regret > bestRegret {
				bestRegret = regret
				bestNode, bestRoute, bestPos = ni, br, bpos
			}
		}
		if bestNode < 0 {
			sol.Unassigned = append(sol.Unassigned, nodes...)
			break
		}
		c := nodes[bestNode]
		sol.Routes[bestRoute] = insertAt(sol.Routes[bestRoute], c, bestPos)
		loads[bestRoute] += p.demand(c)
		nodes = append(nodes[:bestNode], nodes[bestNode+1:]...)
	}
	return orOptLocalImprove(p, sol)
}

// greedyInsert inserts customers by cheapest feasible position.
func greedyInsert(p Problem, sol Solution, removed []int) Solution {
	nodes := append([]int(nil), removed...)
	loads := make([]int, len(sol.Routes))
	for i, r := range sol.Routes {
		loads[i] = load(p, r)
	}
	for len(nodes) > 0 {
		bestNode, bestRoute, bestPos := -1, -1, -1
		bestCost := math.MaxFloat64
		for ni, c := range nodes {
			for ri, r := range sol.Routes {
				if loads[ri]+p.demand(c) > p.Capacity {
					continue
				}
				for pos := 0; pos <= len(r); pos++ {
					if d := deltaInsert(p, r, c, pos); d < bestCost {
						bestCost = d
						bestNode, bestRoute, bestPos = ni, ri, pos
					}
				}
			}
		}
		if bestNode < 0 {
			sol.Unassigned = append(sol.Unassigned, nodes...)
			break
		}
		c := nodes[bestNode]
		sol.Routes[bestRoute] = insertAt(sol.Routes[bestRoute], c, bestPos)
		loads[bestRoute] += p.demand(c)
		nodes = append(nodes[:bestNode], nodes[bestNode+1:]...)
	}
	return sol
}

func routeDistance(p Problem, route []int) float64 {
	if len(route) == 0 {
		return 0
	}
	total := p.dist(0, route[0])
	for i := 0; i+1 < len(route); i++ {
		total += p.dist(route[i], route[i+1])
	}
	return total + p.dist(route[len(route)-1], 0)
}

func cost(p Problem, s Solution, penalty float64) float64 {
	total := 0.0
	for _, r := range s.Routes {
		total += routeDistance(p, r)
	}
	return total + penalty*float64(len(s.Unassigned))
}

// orOptLocalImprove relocates single customers within each route while it
// shortens the tour.
func orOptLocalImprove(p Problem, sol Solution) Solution {
	for ri := range sol.Routes {
		improved := true
		for improved {
			improved = false
			r := sol.Routes[ri]
			base := routeDistance(p, r)
			for i := 0; i < len(r) && !improved; i++ {
				for j := 0; j < len(r); j++ {
					if j == i {
						continue
					}
					cand := append([]int(nil), r[:i]...)
					cand = append(cand, r[i+1:]...)
					cand = insertAt(cand, r[i], j)
					if routeDistance(p, cand)+1e-6 < base {
						sol.Routes[ri] = cand
						improved = true
						break
					}
				}
			}
		}
	}
	return sol
}

// twoOptImprove applies 2-opt within each closed tour.
func twoOptImprove(p Problem, sol Solution) Solution {
	for ri, r := range sol.Routes {
		sol.Routes[ri] = ImproveRoute2Opt(p.Distance, r, 0)
	}
	return sol
}

// crossExchangeImprove swaps single customers between routes when it
// shortens the pair and both loads still fit.
func crossExchangeImprove(p Problem, sol Solution) Solution {
	m := len(sol.Routes)
	if m < 2 {
		return sol
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < m; a++ {
			for b := a + 1; b < m; b++ {
				ra, rb := sol.Routes[a], sol.Routes[b]
				la, lb := load(p, ra), load(p, rb)
				before := routeDistance(p, ra) + routeDistance(p, rb)
				for i := 0; i < len(ra); i++ {
					for j := 0; j < len(rb); j++ {
						da, db := p.demand(ra[i]), p.demand(rb[j])
						if la-da+db > p.Capacity || lb-db+da > p.Capacity {
							continue
						}
						ca := append([]int(nil), ra...)
						cb := append([]int(nil), rb...)
						ca[i], cb[j] = cb[j], ca[i]
						if after := routeDistance(p, ca) + routeDistance(p, cb); after+1e-6 < before {
							sol.Routes[a], sol.Routes[b] = ca, cb
							ra, rb = ca, cb
							la, lb = la-da+db, lb-db+da
							before = after
							improved = true
						}
					}
				}
			}
		}
	}
	return sol
}

// twoOptStarImprove exchanges segments of length 1..2 between routes,
// including moving a segment into an empty route slot.
func twoOptStarImprove(p Problem, sol Solution) Solution {
	m := len(sol.Routes)
	if m < 2 {
		return sol
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < m; a++ {
			for b := a + 1; b < m; b++ {
				if tryExchangeSegments(p, &sol, a, b) {
					improved = true
				}
			}
		}
	}
	return sol
}

func tryExchangeSegments(p Problem, sol *Solution, a, b int) bool {
	ra, rb := sol.Routes[a], sol.Routes[b]
	la, lb := load(p, ra), load(p, rb)
	before := routeDistance(p, ra) + routeDistance(p, rb)
	for i := 0; i <= len(ra); i++ {
		for j := 0; j <= len(rb); j++ {
			for sa := 0; sa <= 2 && i+sa <= len(ra); sa++ {
				for sb := 0; sb <= 2 && j+sb <= len(rb); sb++ {
					if sa+sb == 0 {
						continue
					}
					segA := ra[i : i+sa]
					segB := rb[j : j+sb]
					ldA, ldB := load(p, segA), load(p, segB)
					if la-ldA+ldB > p.Capacity || lb-ldB+ldA > p.Capacity {
						continue
					}
					ca := append(append(append([]int(nil), ra[:i]...), segB...), ra[i+sa:]...)
					cb := append(append(append([]int(nil), rb[:j]...), segA...), rb[j+sb:]...)
					if after := routeDistance(p, ca) + routeDistance(p, cb); after+1e-6 < before {
						sol.Routes[a], sol.Routes[b] = ca, cb
						return true
					}
				}
			}
		}
	}
	return false
}

// shawRemoval selects k customers related to a random seed by distance and
// demand similarity.
func shawRemoval(p Problem, sol Solution, k int, rng *rand.Rand) []int {
	var assigned []int
	for _, r := range sol.Routes {
		assigned = append(assigned, r...)
	}
	if len(assigned) == 0 {
		return nil
	}
	seedNode := assigned[rng.Intn(len(assigned))]
	scale := 1.0
	if p.Capacity > 0 {
		scale = p.unassignedPenalty() / float64(2*(p.customers()+1)) / float64(p.Capacity)
	}
	type pair struct {
		node  int
		score float64
	}
	var rel []pair
	for _, c := range assigned {
		if c == seedNode {
			continue
		}
		dd := math.Abs(float64(p.demand(seedNode) - p.demand(c)))
		rel = append(rel, pair{node: c, score: p.dist(seedNode, c) + p.dist(c, seedNode) + scale*dd})
	}
	sort.Slice(rel, func(i, j int) bool { return rel[i].score < rel[j].score })
	removed := []int{seedNode}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].node)
	}
	return removed
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
