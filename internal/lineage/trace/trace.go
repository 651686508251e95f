// Package trace holds the session view over a TrackMap: the current time,
// the live cell selection and the lineage trails drawn around it.
package trace

import (
	"errors"
	"fmt"

	"github.com/banshee-data/lineage/internal/config"
	"github.com/banshee-data/lineage/internal/lineage"
	"github.com/banshee-data/lineage/internal/monitoring"
	"github.com/google/uuid"
)

var (
	// ErrNoGhost is returned when trails are requested with a ghost count of zero.
	ErrNoGhost = errors.New("ghost count must be positive")
	// ErrEmptySelection is returned when trails are requested with nothing selected.
	ErrEmptySelection = errors.New("selection is empty")
)

// TraceConfig holds the session parameters of a TraceGroup.
type TraceConfig struct {
	GhostNum int    // frames of trail drawn on each side of the current time
	DrawLead bool   // draw the trail forward in time
	DrawTail bool   // draw the trail backward in time
	Shuffle  uint32 // colour seed used by Draw

	// Processor is handed to every Processor the group creates.
	Processor lineage.ProcessorConfig
}

// DefaultTraceConfig returns the configuration implied by an empty TuningConfig.
func DefaultTraceConfig() TraceConfig {
	return TraceConfigFromTuning(config.EmptyTuningConfig())
}

// TraceConfigFromTuning builds a TraceConfig from a loaded TuningConfig.
func TraceConfigFromTuning(cfg *config.TuningConfig) TraceConfig {
	return TraceConfig{
		GhostNum:  cfg.GetGhostNum(),
		DrawLead:  cfg.GetDrawLead(),
		DrawTail:  cfg.GetDrawTail(),
		Shuffle:   cfg.GetShuffle(),
		Processor: lineage.ProcessorConfigFromTuning(cfg),
	}
}

// TraceGroup coordinates a UI selection with one TrackMap. It holds no graph
// logic: edits are forwarded to a fresh lineage.Processor.
//
// A TraceGroup is not safe for concurrent use; the TrackMap it wraps
// serialises its own access.
type TraceGroup struct {
	id  uuid.UUID
	tm  *lineage.TrackMap
	cfg TraceConfig

	curTime, prvTime int
	sel              lineage.CellFrame

	// Clamped ghost counts of the last trail walk.
	ghostLead, ghostTail int
}

// NewTraceGroup returns a session over tm at time 0 with nothing selected.
func NewTraceGroup(tm *lineage.TrackMap, cfg TraceConfig) *TraceGroup {
	return &TraceGroup{
		id:  uuid.New(),
		tm:  tm,
		cfg: cfg,
		sel: lineage.CellFrame{},
	}
}

// ID returns the session id.
func (tg *TraceGroup) ID() uuid.UUID { return tg.id }

// TrackMap returns the wrapped map.
func (tg *TraceGroup) TrackMap() *lineage.TrackMap { return tg.tm }

func (tg *TraceGroup) processor() *lineage.Processor {
	return lineage.NewProcessor(tg.tm, tg.cfg.Processor)
}

// SetCurTime moves the current time. Trails computed earlier are stale.
func (tg *TraceGroup) SetCurTime(t int) { tg.curTime = t }

// CurTime returns the current time.
func (tg *TraceGroup) CurTime() int { return tg.curTime }

// SetPrvTime sets the time the selection was last taken at.
func (tg *TraceGroup) SetPrvTime(t int) { tg.prvTime = t }

// PrvTime returns the time the selection was last taken at.
func (tg *TraceGroup) PrvTime() int { return tg.prvTime }

// SetGhostNum sets the trail length in frames.
func (tg *TraceGroup) SetGhostNum(n int) { tg.cfg.GhostNum = n }

// GhostNum returns the trail length in frames.
func (tg *TraceGroup) GhostNum() int { return tg.cfg.GhostNum }

// Ghosts returns the clamped lead and tail of the last trail walk.
func (tg *TraceGroup) Ghosts() (lead, tail int) { return tg.ghostLead, tg.ghostTail }

// SetDrawLead turns the forward trail on or off.
func (tg *TraceGroup) SetDrawLead(on bool) { tg.cfg.DrawLead = on }

// SetDrawTail turns the backward trail on or off.
func (tg *TraceGroup) SetDrawTail(on bool) { tg.cfg.DrawTail = on }

// SetSizeThreshold sets the size below which cells drop out of the selection.
func (tg *TraceGroup) SetSizeThreshold(v uint32) { tg.cfg.Processor.SizeThreshold = v }

// SetUncertaintyThreshold sets the uncertainty filter of GetLinkLists.
// Zero disables it.
func (tg *TraceGroup) SetUncertaintyThreshold(v uint32) {
	tg.cfg.Processor.UncertaintyThreshold = v
}

// CellList returns a copy of the live selection.
func (tg *TraceGroup) CellList() lineage.CellFrame { return tg.sel.Clone() }

// ClearCellList drops the live selection.
func (tg *TraceGroup) ClearCellList() { tg.sel = lineage.CellFrame{} }

// UpdateCellList refreshes the live selection from cur. When the time has not
// moved since the last update cur is only filtered by size; otherwise cur is
// carried from the previous time to the current one along linked edges.
func (tg *TraceGroup) UpdateCellList(cur lineage.CellFrame) {
	if tg.prvTime == tg.curTime {
		tg.sel = cur.FilterSize(tg.cfg.Processor.SizeThreshold)
	} else {
		tg.sel = tg.processor().GetMappedCells(cur, tg.prvTime, tg.curTime)
		monitoring.Debugf("trace %s: selection %d→%d keeps %d of %d cells",
			tg.id, tg.prvTime, tg.curTime, len(tg.sel), len(cur))
	}
	tg.prvTime = tg.curTime
}

// AddCell inserts a copy of c into frame with a vertex of its own.
func (tg *TraceGroup) AddCell(c *lineage.Cell, frame int) error {
	return tg.processor().AddCellDup(c, frame)
}

// LinkCells links list1 in frame1 to list2 in the adjacent frame2. With
// exclusive set, other links of those vertices toward frame2 are cleared.
func (tg *TraceGroup) LinkCells(list1, list2 lineage.CellFrame, frame1, frame2 int, exclusive bool) error {
	return tg.processor().LinkCells(list1, list2, frame1, frame2, exclusive)
}

// UnlinkCells clears the links between list1 in frame1 and list2 in frame2.
func (tg *TraceGroup) UnlinkCells(list1, list2 lineage.CellFrame, frame1, frame2 int) error {
	return tg.processor().UnlinkCells(list1, list2, frame1, frame2)
}

// IsolateCells clears every link of the listed cells in both directions.
func (tg *TraceGroup) IsolateCells(list lineage.CellFrame, frame int) error {
	return tg.processor().IsolateCells(list, frame)
}

// CombineCells moves the listed cells onto the vertex of target.
func (tg *TraceGroup) CombineCells(target lineage.CellID, list lineage.CellFrame, frame int) error {
	return tg.processor().CombineCells(target, list, frame)
}

// DivideCells gives each listed cell that shares a vertex one of its own.
func (tg *TraceGroup) DivideCells(list lineage.CellFrame, frame int) error {
	return tg.processor().DivideCells(list, frame)
}

// ReplaceCellID renumbers a cell of frame, keeping its lineage.
func (tg *TraceGroup) ReplaceCellID(oldID, newID lineage.CellID, frame int) error {
	return tg.processor().ReplaceCellID(oldID, newID, frame)
}

// Import replaces the map with the track file at path.
func (tg *TraceGroup) Import(path string) error { return tg.processor().Import(path) }

// Export writes the map to the track file at path.
func (tg *TraceGroup) Export(path string) error { return tg.processor().Export(path) }

// GetLinkLists classifies the cells of the current frame.
func (tg *TraceGroup) GetLinkLists() lineage.LinkLists {
	return tg.processor().GetLinkLists(tg.curTime)
}

// ghosts validates the session for a trail walk and clamps the ghost count
// to the frames available on each side.
func (tg *TraceGroup) ghosts() (lead, tail int, err error) {
	if tg.cfg.GhostNum <= 0 {
		return 0, 0, ErrNoGhost
	}
	n := tg.tm.FrameNum()
	if tg.curTime < 0 || tg.curTime >= n {
		return 0, 0, fmt.Errorf("current time: %w", &lineage.FrameRangeError{Frame: tg.curTime, FrameNum: n})
	}
	if len(tg.sel) == 0 {
		return 0, 0, ErrEmptySelection
	}
	if tg.cfg.DrawLead {
		lead = min(tg.cfg.GhostNum, n-1-tg.curTime)
	}
	if tg.cfg.DrawTail {
		tail = min(tg.cfg.GhostNum, tg.curTime)
	}
	tg.ghostLead, tg.ghostTail = lead, tail
	return lead, tail, nil
}

// GetMappedRulers walks the selection ghost-lead frames forward and
// ghost-tail frames backward and returns one Ruler per trail. A vertex with
// several linked children starts a branch that shares the path so far.
func (tg *TraceGroup) GetMappedRulers() ([]*Ruler, error) {
	lead, tail, err := tg.ghosts()
	if err != nil {
		return nil, err
	}
	p := tg.processor()
	var rulers []*Ruler
	rulers = tg.walkRulers(p, rulers, lead, 1)
	rulers = tg.walkRulers(p, rulers, tail, -1)
	return rulers, nil
}

func (tg *TraceGroup) walkRulers(p *lineage.Processor, rulers []*Ruler, hops, step int) []*Ruler {
	sel := tg.sel
	tips := make(map[lineage.VertexID]*Ruler)
	for h := 0; h < hops && len(sel) > 0; h++ {
		f1 := tg.curTime + h*step
		f2 := f1 + step
		next := lineage.CellFrame{}
		nextTips := make(map[lineage.VertexID]*Ruler)
		seen := make(map[[2]lineage.VertexID]bool)

		for _, pr := range p.WalkLinks(sel, f1, f2) {
			to := pr.To
			next[to.ID] = &to

			key := [2]lineage.VertexID{pr.FromVertex, pr.ToVertex}
			if seen[key] {
				continue
			}
			seen[key] = true

			r := tips[pr.FromVertex]
			if r == nil {
				r = newRuler(pr.FromVertex, pr.FromCenter, f1, step > 0)
				tips[pr.FromVertex] = r
				rulers = append(rulers, r)
			}
			if r.TipFrame() != f1 {
				r = r.branch()
				rulers = append(rulers, r)
			}
			r.extend(pr.ToVertex, pr.ToCenter, f2)
			if _, taken := nextTips[pr.ToVertex]; !taken {
				nextTips[pr.ToVertex] = r
			}
		}
		sel, tips = next, nextTips
	}
	return rulers
}

// Draw walks the same trails as GetMappedRulers and returns them as a flat
// line buffer of x y z r g b per vertex, two vertices per segment, with the
// vertex count. It returns nil and 0 when no trail can be drawn.
func (tg *TraceGroup) Draw(shuffle uint32) ([]float32, int) {
	lead, tail, err := tg.ghosts()
	if err != nil {
		monitoring.Debugf("trace %s: nothing to draw: %v", tg.id, err)
		return nil, 0
	}
	verts := make([]float32, 0, (lead+tail)*len(tg.sel)*18)

	for _, dir := range []struct{ hops, step int }{{lead, 1}, {tail, -1}} {
		sel1 := tg.sel
		for h := 0; h < dir.hops && len(sel1) > 0; h++ {
			f1 := tg.curTime + h*dir.step
			sel2 := lineage.CellFrame{}
			verts, _ = tg.GetMappedEdges(sel1, sel2, verts, f1, f1+dir.step, shuffle)
			sel1 = sel2
		}
	}
	return verts, len(verts) / floatsPerVertex
}

// GetMappedEdges is the single-hop step of Draw. For every linked hop from
// sel1 in frame1 to a cell in frame2 it appends one segment, coloured by the
// target cell id, to verts and adds the target cell to sel2. It returns the
// extended buffer and the number of segments appended.
func (tg *TraceGroup) GetMappedEdges(sel1, sel2 lineage.CellFrame, verts []float32, frame1, frame2 int, shuffle uint32) ([]float32, int) {
	pairs := tg.processor().WalkLinks(sel1, frame1, frame2)
	for _, pr := range pairs {
		to := pr.To
		sel2[to.ID] = &to
		c := CellColor(to.ID, shuffle)
		verts = appendVertex(verts, pr.FromCenter, c)
		verts = appendVertex(verts, pr.ToCenter, c)
	}
	return verts, len(pairs)
}
