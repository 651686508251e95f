package lineage

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Side selects which frame of an InterGraph a vertex belongs to.
type Side int64

const (
	NearSide Side = 0 // frame t
	FarSide  Side = 1 // frame t+1
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == NearSide {
		return FarSide
	}
	return NearSide
}

// nodeID packs side and vertex id into one graph node id, so vertex ids of
// the two frames never collide.
func nodeID(side Side, id VertexID) int64 {
	return int64(side)<<32 | int64(id)
}

func splitNodeID(n int64) (Side, VertexID) {
	return Side(n >> 32), VertexID(uint32(n))
}

// Link is the payload of an InterGraph edge.
type Link struct {
	Linked   bool    // confirmed lineage continuation
	Overlap  float32 // voxel overlap reported by the analysis stage
	Distance float32 // center distance reported by the analysis stage
}

// linkEdge is a graph.Edge carrying a shared *Link, so the reversed view
// returned by the undirected graph mutates the same payload.
type linkEdge struct {
	from, to graph.Node
	link     *Link
}

func (e linkEdge) From() graph.Node { return e.from }
func (e linkEdge) To() graph.Node   { return e.to }
func (e linkEdge) ReversedEdge() graph.Edge {
	return linkEdge{from: e.to, to: e.from, link: e.link}
}

// Neighbor is one adjacent vertex on the opposite side of an InterGraph.
type Neighbor struct {
	ID   VertexID
	Link *Link
}

// Edge is a flattened InterGraph edge, near-side vertex first.
type Edge struct {
	Near VertexID
	Far  VertexID
	Link Link
}

// InterGraph is the undirected association graph between frame Index and
// frame Index+1. Every edge joins a near-side vertex to a far-side vertex.
type InterGraph struct {
	Index int
	g     *simple.UndirectedGraph
}

// NewInterGraph returns an empty graph for the frame pair (index, index+1).
func NewInterGraph(index int) *InterGraph {
	return &InterGraph{Index: index, g: simple.NewUndirectedGraph()}
}

// AddVertex adds a vertex node if absent.
func (ig *InterGraph) AddVertex(side Side, id VertexID) {
	nid := nodeID(side, id)
	if ig.g.Node(nid) == nil {
		ig.g.AddNode(simple.Node(nid))
	}
}

// RemoveVertex removes a vertex node and all its edges.
func (ig *InterGraph) RemoveVertex(side Side, id VertexID) {
	ig.g.RemoveNode(nodeID(side, id))
}

// HasVertex reports whether the vertex node exists.
func (ig *InterGraph) HasVertex(side Side, id VertexID) bool {
	return ig.g.Node(nodeID(side, id)) != nil
}

// Link returns the payload of the edge between near and far, or nil.
func (ig *InterGraph) Link(near, far VertexID) *Link {
	e := ig.g.Edge(nodeID(NearSide, near), nodeID(FarSide, far))
	if e == nil {
		return nil
	}
	return e.(linkEdge).link
}

// EnsureEdge returns the payload of the edge between near and far, creating
// an unlinked edge (and missing nodes) when absent.
func (ig *InterGraph) EnsureEdge(near, far VertexID) *Link {
	if l := ig.Link(near, far); l != nil {
		return l
	}
	l := &Link{}
	ig.g.SetEdge(linkEdge{
		from: simple.Node(nodeID(NearSide, near)),
		to:   simple.Node(nodeID(FarSide, far)),
		link: l,
	})
	return l
}

// RemoveEdge deletes the edge between near and far.
func (ig *InterGraph) RemoveEdge(near, far VertexID) {
	ig.g.RemoveEdge(nodeID(NearSide, near), nodeID(FarSide, far))
}

// Neighbors returns the vertices adjacent to (side, id), ordered by id.
func (ig *InterGraph) Neighbors(side Side, id VertexID) []Neighbor {
	nid := nodeID(side, id)
	if ig.g.Node(nid) == nil {
		return nil
	}
	var out []Neighbor
	it := ig.g.From(nid)
	for it.Next() {
		other := it.Node().ID()
		_, vid := splitNodeID(other)
		e := ig.g.Edge(nid, other).(linkEdge)
		out = append(out, Neighbor{ID: vid, Link: e.link})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Degree returns the number of edges at (side, id).
func (ig *InterGraph) Degree(side Side, id VertexID) int {
	nid := nodeID(side, id)
	if ig.g.Node(nid) == nil {
		return 0
	}
	return ig.g.From(nid).Len()
}

// LinkedDegree returns the number of linked edges at (side, id).
func (ig *InterGraph) LinkedDegree(side Side, id VertexID) int {
	n := 0
	for _, nb := range ig.Neighbors(side, id) {
		if nb.Link.Linked {
			n++
		}
	}
	return n
}

// Vertices returns the vertex ids present on one side, ordered by id.
func (ig *InterGraph) Vertices(side Side) []VertexID {
	var ids []VertexID
	it := ig.g.Nodes()
	for it.Next() {
		s, vid := splitNodeID(it.Node().ID())
		if s == side {
			ids = append(ids, vid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Edges returns every edge, ordered by (near, far).
func (ig *InterGraph) Edges() []Edge {
	var out []Edge
	it := ig.g.Edges()
	for it.Next() {
		e := it.Edge().(linkEdge)
		fs, fid := splitNodeID(e.from.ID())
		_, tid := splitNodeID(e.to.ID())
		if fs == FarSide {
			fid, tid = tid, fid
		}
		out = append(out, Edge{Near: fid, Far: tid, Link: *e.link})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Near != out[j].Near {
			return out[i].Near < out[j].Near
		}
		return out[i].Far < out[j].Far
	})
	return out
}

// EdgeCount returns the total and linked edge counts.
func (ig *InterGraph) EdgeCount() (total, linked int) {
	it := ig.g.Edges()
	for it.Next() {
		total++
		if it.Edge().(linkEdge).link.Linked {
			linked++
		}
	}
	return total, linked
}

// unlinkAll clears the linked flag on every edge at (side, id).
func (ig *InterGraph) unlinkAll(side Side, id VertexID) int {
	n := 0
	for _, nb := range ig.Neighbors(side, id) {
		if nb.Link.Linked {
			nb.Link.Linked = false
			n++
		}
	}
	return n
}

// mergeInto moves every edge of (side, from) onto (side, to). Where both
// already share a neighbour the payloads are combined: linked is OR-ed,
// overlap summed and the shorter distance kept. The from node is removed.
func (ig *InterGraph) mergeInto(side Side, from, to VertexID) {
	if from == to {
		return
	}
	for _, nb := range ig.Neighbors(side, from) {
		var dst *Link
		if side == NearSide {
			dst = ig.Link(to, nb.ID)
			if dst == nil {
				dst = ig.EnsureEdge(to, nb.ID)
				*dst = *nb.Link
				continue
			}
		} else {
			dst = ig.Link(nb.ID, to)
			if dst == nil {
				dst = ig.EnsureEdge(nb.ID, to)
				*dst = *nb.Link
				continue
			}
		}
		dst.Linked = dst.Linked || nb.Link.Linked
		dst.Overlap += nb.Link.Overlap
		if nb.Link.Distance < dst.Distance {
			dst.Distance = nb.Link.Distance
		}
	}
	ig.RemoveVertex(side, from)
}

// copyCandidates gives (side, to) an unlinked copy of every edge at
// (side, from), keeping overlap and distance.
func (ig *InterGraph) copyCandidates(side Side, from, to VertexID) {
	ig.AddVertex(side, to)
	for _, nb := range ig.Neighbors(side, from) {
		var dst *Link
		if side == NearSide {
			dst = ig.EnsureEdge(to, nb.ID)
		} else {
			dst = ig.EnsureEdge(nb.ID, to)
		}
		dst.Overlap = nb.Link.Overlap
		dst.Distance = nb.Link.Distance
	}
}
