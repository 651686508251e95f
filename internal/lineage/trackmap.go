package lineage

import (
	"sync"

	"github.com/google/uuid"
)

// TrackMap is the lineage store of one dataset: a CellFrame and VertexList per
// time frame plus one InterGraph per adjacent frame pair.
//
// Every exported method holds mu for its duration. Processor methods lock
// once and then use the unexported helpers, which assume mu is held.
type TrackMap struct {
	mu sync.Mutex

	id       uuid.UUID
	frames   []CellFrame
	vertices []VertexList
	graphs   []*InterGraph // graphs[t] joins frame t and t+1
}

// FrameStats summarises one frame. Edge counts refer to the InterGraph
// from this frame to the next.
type FrameStats struct {
	Frame       int `json:"frame"`
	Cells       int `json:"cells"`
	Vertices    int `json:"vertices"`
	Edges       int `json:"edges"`
	LinkedEdges int `json:"linked_edges"`
}

// NewTrackMap returns an empty map with a fresh dataset id.
func NewTrackMap() *TrackMap {
	return &TrackMap{id: uuid.New()}
}

// ID returns the dataset id. It changes on Clear and is restored by Import.
func (tm *TrackMap) ID() uuid.UUID {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.id
}

// FrameNum returns the number of frames.
func (tm *TrackMap) FrameNum() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.frames)
}

// SetFrameNum grows or shrinks the frame sequence to n frames. New frames
// start empty; dropped frames take their vertices and graphs with them.
func (tm *TrackMap) SetFrameNum(n int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.setFrameNum(n)
}

// CellList returns a copy of the cells of frame, or an empty frame when the
// index is out of range.
func (tm *TrackMap) CellList(frame int) CellFrame {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if !tm.inRange(frame) {
		return CellFrame{}
	}
	return tm.frames[frame].snapshot()
}

// VertexList returns a copy of the vertices of frame, owning-cell sets
// included. Out of range yields an empty list.
func (tm *TrackMap) VertexList(frame int) VertexList {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if !tm.inRange(frame) {
		return VertexList{}
	}
	return tm.vertices[frame].snapshot()
}

// InterGraph returns the graph linking frame to frame+1. For the last frame
// or an out-of-range index it returns an empty graph that is not attached to
// the map, so writes to it are discarded.
func (tm *TrackMap) InterGraph(frame int) *InterGraph {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if frame < 0 || frame >= len(tm.graphs) {
		return NewInterGraph(frame)
	}
	return tm.graphs[frame]
}

// Clear drops every frame and assigns a new dataset id.
func (tm *TrackMap) Clear() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.frames = nil
	tm.vertices = nil
	tm.graphs = nil
	tm.id = uuid.New()
}

// Stats returns per-frame counts.
func (tm *TrackMap) Stats() []FrameStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.stats()
}

func (tm *TrackMap) stats() []FrameStats {
	out := make([]FrameStats, len(tm.frames))
	for f := range tm.frames {
		out[f] = FrameStats{
			Frame:    f,
			Cells:    len(tm.frames[f]),
			Vertices: len(tm.vertices[f]),
		}
		if f < len(tm.graphs) {
			out[f].Edges, out[f].LinkedEdges = tm.graphs[f].EdgeCount()
		}
	}
	return out
}

func (tm *TrackMap) setFrameNum(n int) {
	if n < 0 {
		n = 0
	}
	for len(tm.frames) < n {
		tm.frames = append(tm.frames, CellFrame{})
		tm.vertices = append(tm.vertices, VertexList{})
	}
	tm.frames = tm.frames[:n]
	tm.vertices = tm.vertices[:n]

	want := n - 1
	if want < 0 {
		want = 0
	}
	for len(tm.graphs) < want {
		tm.graphs = append(tm.graphs, NewInterGraph(len(tm.graphs)))
	}
	tm.graphs = tm.graphs[:want]
}

func (tm *TrackMap) inRange(frame int) bool {
	return frame >= 0 && frame < len(tm.frames)
}

func (tm *TrackMap) checkFrame(frame int) error {
	if !tm.inRange(frame) {
		return frameRangeError(frame, len(tm.frames))
	}
	return nil
}

// checkPair validates a two-frame operation: both in range, distinct and one
// step apart.
func (tm *TrackMap) checkPair(frame1, frame2 int) error {
	if err := tm.checkFrame(frame1); err != nil {
		return err
	}
	if err := tm.checkFrame(frame2); err != nil {
		return err
	}
	switch d := frame2 - frame1; {
	case d == 0:
		return ErrSameFrame
	case d != 1 && d != -1:
		return ErrNotAdjacent
	}
	return nil
}

// graphBetween returns the InterGraph joining two adjacent frames and the
// side frame1 occupies in it.
func (tm *TrackMap) graphBetween(frame1, frame2 int) (*InterGraph, Side) {
	if frame1 < frame2 {
		return tm.graphs[frame1], NearSide
	}
	return tm.graphs[frame2], FarSide
}

// prevGraph returns the graph toward frame-1, where frame is the far side.
func (tm *TrackMap) prevGraph(frame int) *InterGraph {
	if frame <= 0 || frame-1 >= len(tm.graphs) {
		return nil
	}
	return tm.graphs[frame-1]
}

// nextGraph returns the graph toward frame+1, where frame is the near side.
func (tm *TrackMap) nextGraph(frame int) *InterGraph {
	if frame < 0 || frame >= len(tm.graphs) {
		return nil
	}
	return tm.graphs[frame]
}

// vertexOf resolves the vertex of a cell. A missing cell, a cell without a
// vertex or a vertex that no longer lists the cell all count as dangling.
func (tm *TrackMap) vertexOf(frame int, id CellID) (*Vertex, bool) {
	c, ok := tm.frames[frame][id]
	if !ok {
		return nil, false
	}
	vid, ok := c.Vertex()
	if !ok {
		return nil, false
	}
	v, ok := tm.vertices[frame][vid]
	if !ok || !v.Owns(id) {
		return nil, false
	}
	return v, true
}

// vertexSet resolves the distinct vertices of the listed cells, skipping
// dangling ones.
func (tm *TrackMap) vertexSet(list CellFrame, frame int) []VertexID {
	seen := make(map[VertexID]bool)
	var ids []VertexID
	for _, cid := range list.IDs() {
		v, ok := tm.vertexOf(frame, cid)
		if !ok || seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		ids = append(ids, v.ID)
	}
	return ids
}

// addVertex creates an empty vertex in frame and its nodes in both
// neighbouring graphs.
func (tm *TrackMap) addVertex(frame int, id VertexID) *Vertex {
	v := newVertex(id)
	tm.vertices[frame][id] = v
	if g := tm.prevGraph(frame); g != nil {
		g.AddVertex(FarSide, id)
	}
	if g := tm.nextGraph(frame); g != nil {
		g.AddVertex(NearSide, id)
	}
	return v
}

// removeVertex deletes a vertex and every edge touching it.
func (tm *TrackMap) removeVertex(frame int, id VertexID) {
	delete(tm.vertices[frame], id)
	if g := tm.prevGraph(frame); g != nil {
		g.RemoveVertex(FarSide, id)
	}
	if g := tm.nextGraph(frame); g != nil {
		g.RemoveVertex(NearSide, id)
	}
}

// swap replaces the contents of tm with those of other.
func (tm *TrackMap) swap(other *TrackMap) {
	tm.id = other.id
	tm.frames = other.frames
	tm.vertices = other.vertices
	tm.graphs = other.graphs
}

// snapshot returns copies of the cells, vertex handles included, so callers
// can read them after the lock is released.
func (f CellFrame) snapshot() CellFrame {
	out := make(CellFrame, len(f))
	for id, c := range f {
		cc := *c
		out[id] = &cc
	}
	return out
}
