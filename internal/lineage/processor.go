package lineage

import (
	"fmt"

	"github.com/banshee-data/lineage/internal/config"
	"github.com/banshee-data/lineage/internal/fsutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// ProcessorConfig holds the parameters of a Processor.
type ProcessorConfig struct {
	SizeThreshold        uint32  // cells smaller than this are noise
	UncertaintyThreshold uint32  // 0 disables uncertainty filtering
	CompressionLevel     int     // zstd level for Export, 0 stores raw
	AutoLinkMaxDistance  float64 // 0 accepts any candidate distance

	// FS is used by Import and Export. Nil means the OS filesystem.
	FS fsutil.FileSystem
}

// DefaultProcessorConfig returns the configuration implied by an empty
// TuningConfig.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfigFromTuning(config.EmptyTuningConfig())
}

// ProcessorConfigFromTuning builds a ProcessorConfig from a loaded TuningConfig.
func ProcessorConfigFromTuning(cfg *config.TuningConfig) ProcessorConfig {
	return ProcessorConfig{
		SizeThreshold:        cfg.GetSizeThreshold(),
		UncertaintyThreshold: cfg.GetUncertaintyThreshold(),
		CompressionLevel:     cfg.GetCompressionLevel(),
		AutoLinkMaxDistance:  cfg.GetAutoLinkMaxDistance(),
	}
}

// Processor is the only mutator of a TrackMap's edges and cell identities.
// It keeps no state of its own beyond its configuration, so creating one per
// call is cheap.
type Processor struct {
	tm  *TrackMap
	cfg ProcessorConfig
}

// NewProcessor binds a Processor to tm.
func NewProcessor(tm *TrackMap, cfg ProcessorConfig) *Processor {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	return &Processor{tm: tm, cfg: cfg}
}

// TrackMap returns the bound map.
func (p *Processor) TrackMap() *TrackMap { return p.tm }

// Config returns the processor configuration.
func (p *Processor) Config() ProcessorConfig { return p.cfg }

// AddCellDup inserts a copy of cell into frame with a vertex of its own. The
// vertex takes the cell id when that id is free among the frame's vertices.
func (p *Processor) AddCellDup(cell *Cell, frame int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkFrame(frame); err != nil {
		return err
	}
	if p.tm.frames[frame].Has(cell.ID) {
		return fmt.Errorf("add cell %d to frame %d: %w", cell.ID, frame, ErrDuplicateCell)
	}
	p.addCell(cell, frame)
	return nil
}

// AddCells inserts copies of every cell into frame. Nothing is inserted when
// any id is already present.
func (p *Processor) AddCells(cells CellFrame, frame int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkFrame(frame); err != nil {
		return err
	}
	for _, id := range cells.IDs() {
		if p.tm.frames[frame].Has(id) {
			return fmt.Errorf("add cell %d to frame %d: %w", id, frame, ErrDuplicateCell)
		}
	}
	for _, c := range cells.Sorted() {
		p.addCell(c, frame)
	}
	return nil
}

func (p *Processor) addCell(cell *Cell, frame int) {
	c := cell.Clone()
	vid := p.tm.vertices[frame].nextFree(VertexID(c.ID))
	v := p.tm.addVertex(frame, vid)
	v.cells.Add(c.ID)
	c.setVertex(vid)
	p.tm.frames[frame][c.ID] = c
	v.refresh(p.tm.frames[frame])
}

// AddCandidate records an unlinked edge between cell id1 of frame and cell id2
// of frame+1 with the overlap and distance measured by the analysis stage. An
// existing edge keeps its linked flag and takes the new measurements.
func (p *Processor) AddCandidate(id1, id2 CellID, frame int, overlap, distance float32) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkPair(frame, frame+1); err != nil {
		return err
	}
	v1, ok := p.tm.vertexOf(frame, id1)
	if !ok {
		return fmt.Errorf("candidate %d in frame %d: %w", id1, frame, ErrCellNotFound)
	}
	v2, ok := p.tm.vertexOf(frame+1, id2)
	if !ok {
		return fmt.Errorf("candidate %d in frame %d: %w", id2, frame+1, ErrCellNotFound)
	}
	l := p.tm.graphs[frame].EnsureEdge(v1.ID, v2.ID)
	l.Overlap = overlap
	l.Distance = distance
	return nil
}

// LinkCells marks every edge between the vertices of list1 (frame1) and
// list2 (frame2) as linked, creating edges that do not exist yet. The frames
// must be adjacent. With exclusive set, linked edges touching those vertices
// toward the other frame are cleared first, leaving only the new links.
func (p *Processor) LinkCells(list1, list2 CellFrame, frame1, frame2 int, exclusive bool) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkPair(frame1, frame2); err != nil {
		return err
	}
	vs1 := p.tm.vertexSet(list1, frame1)
	vs2 := p.tm.vertexSet(list2, frame2)
	if len(vs1) == 0 || len(vs2) == 0 {
		return fmt.Errorf("link frames %d and %d: %w", frame1, frame2, ErrCellNotFound)
	}

	g, side := p.tm.graphBetween(frame1, frame2)
	if exclusive {
		for _, v := range vs1 {
			g.unlinkAll(side, v)
		}
		for _, v := range vs2 {
			g.unlinkAll(side.Opposite(), v)
		}
	}
	for _, a := range vs1 {
		for _, b := range vs2 {
			near, far := orient(side, a, b)
			g.EnsureEdge(near, far).Linked = true
		}
	}
	return nil
}

// UnlinkCells clears the linked flag on edges between the vertices of list1
// and list2. The edges stay as candidates.
func (p *Processor) UnlinkCells(list1, list2 CellFrame, frame1, frame2 int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkPair(frame1, frame2); err != nil {
		return err
	}
	vs1 := p.tm.vertexSet(list1, frame1)
	vs2 := p.tm.vertexSet(list2, frame2)
	if len(vs1) == 0 || len(vs2) == 0 {
		return fmt.Errorf("unlink frames %d and %d: %w", frame1, frame2, ErrCellNotFound)
	}

	g, side := p.tm.graphBetween(frame1, frame2)
	for _, a := range vs1 {
		for _, b := range vs2 {
			if l := g.Link(orient(side, a, b)); l != nil {
				l.Linked = false
			}
		}
	}
	return nil
}

func orient(side Side, a, b VertexID) (near, far VertexID) {
	if side == NearSide {
		return a, b
	}
	return b, a
}

// CombineCells moves every listed cell onto the vertex of target. A vertex
// left without cells is removed and its edges are folded into the target
// vertex, keeping any link it had.
func (p *Processor) CombineCells(target CellID, list CellFrame, frame int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkFrame(frame); err != nil {
		return err
	}
	tv, ok := p.tm.vertexOf(frame, target)
	if !ok {
		return fmt.Errorf("combine onto cell %d in frame %d: %w", target, frame, ErrCellNotFound)
	}

	cells := p.tm.frames[frame]
	for _, id := range list.IDs() {
		c, ok := cells[id]
		if !ok {
			continue
		}
		if ov, ok := p.tm.vertexOf(frame, id); ok {
			if ov.ID == tv.ID {
				continue
			}
			ov.cells.Remove(id)
			if ov.cells.Empty() {
				if g := p.tm.prevGraph(frame); g != nil {
					g.mergeInto(FarSide, ov.ID, tv.ID)
				}
				if g := p.tm.nextGraph(frame); g != nil {
					g.mergeInto(NearSide, ov.ID, tv.ID)
				}
				p.tm.removeVertex(frame, ov.ID)
			} else {
				ov.refresh(cells)
			}
		}
		tv.cells.Add(id)
		c.setVertex(tv.ID)
	}
	tv.refresh(cells)
	return nil
}

// DivideCells gives each listed cell that shares its vertex a vertex of its
// own. The new vertex keeps the old vertex's neighbours as unlinked
// candidates. Cells already alone on their vertex are left as they are.
// When every owner of a vertex is listed, the old vertex and its links stay
// with its heir (see Vertex.heir).
func (p *Processor) DivideCells(list CellFrame, frame int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkFrame(frame); err != nil {
		return err
	}

	cells := p.tm.frames[frame]
	keep := make(map[VertexID]CellID)
	for _, vid := range p.tm.vertexSet(list, frame) {
		v := p.tm.vertices[frame][vid]
		if v.CellCount() > 1 && v.ownedWithin(list) {
			keep[vid] = v.heir()
		}
	}

	found := false
	for _, id := range list.IDs() {
		ov, ok := p.tm.vertexOf(frame, id)
		if !ok {
			continue
		}
		found = true
		if ov.CellCount() <= 1 {
			continue
		}
		if heir, ok := keep[ov.ID]; ok && heir == id {
			continue
		}
		ov.cells.Remove(id)
		nid := p.tm.vertices[frame].nextFree(VertexID(id))
		nv := p.tm.addVertex(frame, nid)
		nv.cells.Add(id)
		cells[id].setVertex(nid)
		if g := p.tm.prevGraph(frame); g != nil {
			g.copyCandidates(FarSide, ov.ID, nid)
		}
		if g := p.tm.nextGraph(frame); g != nil {
			g.copyCandidates(NearSide, ov.ID, nid)
		}
		nv.refresh(cells)
		ov.refresh(cells)
	}
	if !found {
		return fmt.Errorf("divide in frame %d: %w", frame, ErrCellNotFound)
	}
	return nil
}

// IsolateCells clears every linked edge of the listed cells' vertices toward
// both neighbouring frames, making them lineage roots and ends.
func (p *Processor) IsolateCells(list CellFrame, frame int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkFrame(frame); err != nil {
		return err
	}
	vs := p.tm.vertexSet(list, frame)
	if len(vs) == 0 {
		return fmt.Errorf("isolate in frame %d: %w", frame, ErrCellNotFound)
	}
	for _, v := range vs {
		if g := p.tm.prevGraph(frame); g != nil {
			g.unlinkAll(FarSide, v)
		}
		if g := p.tm.nextGraph(frame); g != nil {
			g.unlinkAll(NearSide, v)
		}
	}
	return nil
}

// ReplaceCellID renumbers a cell in place. Its vertex and edges are kept.
func (p *Processor) ReplaceCellID(oldID, newID CellID, frame int) error {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if err := p.tm.checkFrame(frame); err != nil {
		return err
	}
	cells := p.tm.frames[frame]
	c, ok := cells[oldID]
	if !ok {
		return fmt.Errorf("replace cell %d in frame %d: %w", oldID, frame, ErrCellNotFound)
	}
	if oldID == newID {
		return nil
	}
	if cells.Has(newID) {
		return fmt.Errorf("replace cell %d with %d in frame %d: %w", oldID, newID, frame, ErrDuplicateCell)
	}

	v, owned := p.tm.vertexOf(frame, oldID)
	delete(cells, oldID)
	c.ID = newID
	cells[newID] = c
	if owned {
		v.cells.Remove(oldID)
		v.cells.Add(newID)
	}
	return nil
}

// GetMappedCells carries a selection from frame1 to frame2 one InterGraph
// at a time along linked edges. When the frames are equal the selection is
// only filtered by the size threshold. Cells whose chain ends before frame2
// drop out of the result. Out-of-range frames give an empty result.
func (p *Processor) GetMappedCells(sel CellFrame, frame1, frame2 int) CellFrame {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if !p.tm.inRange(frame1) || !p.tm.inRange(frame2) {
		return CellFrame{}
	}
	if frame1 == frame2 {
		return sel.FilterSize(p.cfg.SizeThreshold)
	}

	step := 1
	if frame2 < frame1 {
		step = -1
	}
	cur := make(CellFrame)
	for _, id := range sel.IDs() {
		if c, ok := p.tm.frames[frame1][id]; ok && c.Size >= p.cfg.SizeThreshold {
			cur[id] = c
		}
	}
	for f := frame1; f != frame2 && len(cur) > 0; f += step {
		next := make(CellFrame)
		for _, pair := range p.walk(cur, f, f+step) {
			next[pair.To.ID] = p.tm.frames[f+step][pair.To.ID]
		}
		cur = next.FilterSize(p.cfg.SizeThreshold)
	}
	return cur.snapshot()
}

// LinkedPair is one linked hop from a cell in one frame to a cell in an
// adjacent frame. Cells are copies and centers are vertex centers.
type LinkedPair struct {
	From, To             Cell
	FromVertex, ToVertex VertexID
	FromCenter, ToCenter r3.Vec
}

// WalkLinks returns every linked hop from the selected cells of frame1 into
// frame2, ordered by source cell then target vertex then target cell.
// Dangling cells and vertices are skipped. Non-adjacent or out-of-range
// frames give no pairs.
func (p *Processor) WalkLinks(sel CellFrame, frame1, frame2 int) []LinkedPair {
	p.tm.mu.Lock()
	defer p.tm.mu.Unlock()
	if p.tm.checkPair(frame1, frame2) != nil {
		return nil
	}
	return p.walk(sel, frame1, frame2)
}

func (p *Processor) walk(sel CellFrame, frame1, frame2 int) []LinkedPair {
	g, side := p.tm.graphBetween(frame1, frame2)
	from := p.tm.frames[frame1]
	to := p.tm.frames[frame2]
	var out []LinkedPair
	for _, id := range sel.IDs() {
		v, ok := p.tm.vertexOf(frame1, id)
		if !ok {
			continue
		}
		for _, nb := range g.Neighbors(side, v.ID) {
			if !nb.Link.Linked {
				continue
			}
			nv, ok := p.tm.vertices[frame2][nb.ID]
			if !ok {
				continue
			}
			for _, cid := range nv.Cells() {
				c, ok := to[cid]
				if !ok {
					continue
				}
				out = append(out, LinkedPair{
					From:       *from[id],
					To:         *c,
					FromVertex: v.ID,
					ToVertex:   nv.ID,
					FromCenter: v.Center,
					ToCenter:   nv.Center,
				})
			}
		}
	}
	return out
}
