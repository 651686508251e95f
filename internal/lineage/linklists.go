package lineage

// LinkLists classifies the cells of one frame by the linked degree of their
// vertex. A cell can sit in one past list and one future list at most.
type LinkLists struct {
	InOrphan  CellFrame // no linked predecessor: appearance
	OutOrphan CellFrame // no linked successor: disappearance
	InMulti   CellFrame // several linked predecessors: merge
	OutMulti  CellFrame // several linked successors: division
}

// GetLinkLists classifies every cell of frame. Cells below the size
// threshold, above the uncertainty threshold (when set) or without a vertex
// are skipped as noise. The first frame has no past and the last frame has
// no future, so they are never classified in that direction.
func (p *Processor) GetLinkLists(frame int) LinkLists {
	out := LinkLists{
		InOrphan:  CellFrame{},
		OutOrphan: CellFrame{},
		InMulti:   CellFrame{},
		OutMulti:  CellFrame{},
	}

	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if !p.tm.inRange(frame) {
		return out
	}

	prev := p.tm.prevGraph(frame)
	next := p.tm.nextGraph(frame)
	for _, c := range p.tm.frames[frame].Sorted() {
		if c.Size < p.cfg.SizeThreshold {
			continue
		}
		v, ok := p.tm.vertexOf(frame, c.ID)
		if !ok {
			continue
		}
		if t := p.cfg.UncertaintyThreshold; t > 0 && p.uncertainty(frame, v.ID) > t {
			continue
		}
		cc := *c
		if prev != nil {
			switch d := prev.LinkedDegree(FarSide, v.ID); {
			case d == 0:
				out.InOrphan[c.ID] = &cc
			case d > 1:
				out.InMulti[c.ID] = &cc
			}
		}
		if next != nil {
			switch d := next.LinkedDegree(NearSide, v.ID); {
			case d == 0:
				out.OutOrphan[c.ID] = &cc
			case d > 1:
				out.OutMulti[c.ID] = &cc
			}
		}
	}
	return out
}

// Uncertainty returns the number of candidate edges of the cell's vertex
// that are not linked, over both neighbouring graphs. Unknown cells score 0.
func (p *Processor) Uncertainty(id CellID, frame int) uint32 {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if !p.tm.inRange(frame) {
		return 0
	}
	v, ok := p.tm.vertexOf(frame, id)
	if !ok {
		return 0
	}
	return p.uncertainty(frame, v.ID)
}

func (p *Processor) uncertainty(frame int, vid VertexID) uint32 {
	var n int
	if g := p.tm.prevGraph(frame); g != nil {
		n += g.Degree(FarSide, vid) - g.LinkedDegree(FarSide, vid)
	}
	if g := p.tm.nextGraph(frame); g != nil {
		n += g.Degree(NearSide, vid) - g.LinkedDegree(NearSide, vid)
	}
	return uint32(n)
}

// GetUncertainCells returns the cells of frame whose uncertainty exceeds the
// uncertainty threshold.
func (p *Processor) GetUncertainCells(frame int) CellFrame {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	out := CellFrame{}
	if !p.tm.inRange(frame) {
		return out
	}
	for id, c := range p.tm.frames[frame] {
		v, ok := p.tm.vertexOf(frame, id)
		if !ok {
			continue
		}
		if p.uncertainty(frame, v.ID) > p.cfg.UncertaintyThreshold {
			cc := *c
			out[id] = &cc
		}
	}
	return out
}
