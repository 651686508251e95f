package lineage

import "github.com/banshee-data/lineage/internal/monitoring"

// AutoLink resolves the candidate edges between frame and frame+1 with a
// one-to-one matching and links the chosen edges. Vertices that already
// have a link in that direction are left alone. The matching links as many
// vertex pairs as the candidates allow and, among those, has the least total
// cost, where the cost of an edge is its distance discounted by overlap.
// Edges longer than maxDistance are never chosen unless maxDistance is 0.
// It returns the number of new links.
func (p *Processor) AutoLink(frame int, maxDistance float64) (int, error) {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkPair(frame, frame+1); err != nil {
		return 0, err
	}
	g := p.tm.graphs[frame]

	near, far, arcs := openCandidates(g, maxDistance)
	if len(arcs) == 0 {
		return 0, nil
	}
	linked := 0
	for i, j := range matchCandidates(len(near), len(far), arcs) {
		if j < 0 {
			continue
		}
		g.Link(near[i], far[j]).Linked = true
		linked++
	}
	monitoring.Debugf("autolink frame %d: %d near, %d far, %d candidates, %d linked",
		frame, len(near), len(far), len(arcs), linked)
	return linked, nil
}

// openCandidates indexes the unlinked candidate edges of g whose endpoints
// have no link yet. near and far map row and column indices back to vertex
// ids.
func openCandidates(g *InterGraph, maxDistance float64) (near, far []VertexID, arcs []candidateArc) {
	rows := make(map[VertexID]int)
	cols := make(map[VertexID]int)
	for _, e := range g.Edges() {
		if g.LinkedDegree(NearSide, e.Near) > 0 || g.LinkedDegree(FarSide, e.Far) > 0 {
			continue
		}
		if maxDistance > 0 && float64(e.Link.Distance) > maxDistance {
			continue
		}
		r, ok := rows[e.Near]
		if !ok {
			r = len(near)
			rows[e.Near] = r
			near = append(near, e.Near)
		}
		c, ok := cols[e.Far]
		if !ok {
			c = len(far)
			cols[e.Far] = c
			far = append(far, e.Far)
		}
		arcs = append(arcs, candidateArc{row: r, col: c, cost: linkCost(e.Link)})
	}
	return near, far, arcs
}

func linkCost(l Link) float64 {
	overlap := float64(l.Overlap)
	if overlap < 0 {
		overlap = 0
	}
	return float64(l.Distance) / (1 + overlap)
}
