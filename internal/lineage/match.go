package lineage

import "math"

// candidateArc is a candidate edge between near-side row and far-side col
// of an AutoLink problem.
type candidateArc struct {
	row, col int
	cost     float64
}

// matchCandidates returns, for each of rows near-side vertices, the index of
// the far-side column it is matched to or -1. Only pairs joined by an arc can
// match. The result has the largest number of pairs the arcs allow and the
// least total cost among matchings of that size.
//
// Each round augments along the cheapest alternating path from a free row to
// a free column, found with Dijkstra over costs reduced by vertex potentials.
// Only candidate arcs are visited, so no padding cost is needed for missing
// pairs.
func matchCandidates(rows, cols int, arcs []candidateArc) []int {
	colOf := make([]int, rows)
	for i := range colOf {
		colOf[i] = -1
	}
	if cols == 0 || len(arcs) == 0 {
		return colOf
	}
	rowOf := make([]int, cols)
	for j := range rowOf {
		rowOf[j] = -1
	}
	out := make([][]candidateArc, rows)
	for _, a := range arcs {
		out[a.row] = append(out[a.row], a)
	}

	// Nodes 0..rows-1 are rows and rows..rows+cols-1 are columns. Starting
	// column potentials at their cheapest incoming arc keeps every reduced
	// cost non-negative, negative costs included.
	n := rows + cols
	pot := make([]float64, n)
	for j := 0; j < cols; j++ {
		pot[rows+j] = math.Inf(1)
	}
	for _, a := range arcs {
		pot[rows+a.col] = math.Min(pot[rows+a.col], a.cost)
	}
	for v := rows; v < n; v++ {
		if math.IsInf(pot[v], 1) {
			pot[v] = 0
		}
	}

	matchCost := make([]float64, rows)
	dist := make([]float64, n)
	prev := make([]int, n)
	via := make([]float64, n) // arc cost into a column node
	done := make([]bool, n)

	for {
		for v := range dist {
			dist[v] = math.Inf(1)
			prev[v] = -1
			done[v] = false
		}
		for i := 0; i < rows; i++ {
			if colOf[i] < 0 {
				dist[i] = 0
			}
		}

		for {
			u := -1
			for v := 0; v < n; v++ {
				if !done[v] && !math.IsInf(dist[v], 1) && (u < 0 || dist[v] < dist[u]) {
					u = v
				}
			}
			if u < 0 {
				break
			}
			done[u] = true

			if u < rows {
				for _, a := range out[u] {
					v := rows + a.col
					if colOf[u] == a.col || done[v] {
						continue // the matched arc runs column to row
					}
					if d := dist[u] + a.cost + pot[u] - pot[v]; d < dist[v] {
						dist[v], prev[v], via[v] = d, u, a.cost
					}
				}
				continue
			}
			if r := rowOf[u-rows]; r >= 0 && !done[r] {
				if d := dist[u] - matchCost[r] + pot[u] - pot[r]; d < dist[r] {
					dist[r], prev[r] = d, u
				}
			}
		}

		// Cheapest reachable free column by true path cost.
		best := -1
		for j := 0; j < cols; j++ {
			v := rows + j
			if rowOf[j] >= 0 || math.IsInf(dist[v], 1) {
				continue
			}
			if best < 0 || dist[v]+pot[v] < dist[best]+pot[best] {
				best = v
			}
		}
		if best < 0 {
			break
		}
		for v := range pot {
			if !math.IsInf(dist[v], 1) {
				pot[v] += dist[v]
			}
		}

		// Flip the path: each row on it takes the column it reached.
		for v := best; ; {
			r, j := prev[v], v-rows
			old := colOf[r]
			colOf[r], rowOf[j], matchCost[r] = j, r, via[v]
			if old < 0 {
				break
			}
			v = rows + old
		}
	}
	return colOf
}
