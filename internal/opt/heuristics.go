package opt

// ImproveRoute2Opt applies 2-opt to a depot-closed tour over a distance
// matrix. route excludes the depot; iterations <= 0 runs until no move helps.
func ImproveRoute2Opt(dist [][]int, route []int, iterations int) []int {
	best := append([]int(nil), route...)
	n := len(best)
	if n < 3 {
		return best
	}
	bestDist := tourDistance(dist, best)
	for it := 0; iterations <= 0 || it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if d := tourDistance(dist, cand); d < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// tourDistance is depot -> route... -> depot.
func tourDistance(dist [][]int, route []int) int {
	if len(route) == 0 {
		return 0
	}
	total := dist[0][route[0]]
	for i := 0; i+1 < len(route); i++ {
		total += dist[route[i]][route[i+1]]
	}
	return total + dist[route[len(route)-1]][0]
}
