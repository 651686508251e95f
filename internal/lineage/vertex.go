package lineage

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/spatial/r3"
)

// CellBin is the reverse index from a vertex to the cells that map to it.
// It wraps a 32-bit Roaring bitmap of cell ids.
type CellBin struct {
	rb *roaring.Bitmap
}

// NewCellBin returns an empty bin.
func NewCellBin() CellBin {
	return CellBin{rb: roaring.New()}
}

// Add adds a cell id.
func (b CellBin) Add(id CellID) { b.rb.Add(uint32(id)) }

// Remove removes a cell id.
func (b CellBin) Remove(id CellID) { b.rb.Remove(uint32(id)) }

// Contains checks membership.
func (b CellBin) Contains(id CellID) bool { return b.rb.Contains(uint32(id)) }

// Len returns the number of cells in the bin.
func (b CellBin) Len() int { return int(b.rb.GetCardinality()) }

// Empty reports whether the bin has no cells.
func (b CellBin) Empty() bool { return b.rb.IsEmpty() }

// IDs returns the cell ids in ascending order.
func (b CellBin) IDs() []CellID {
	raw := b.rb.ToArray()
	ids := make([]CellID, len(raw))
	for i, v := range raw {
		ids[i] = CellID(v)
	}
	return ids
}

// Clone returns an independent copy of the bin.
func (b CellBin) Clone() CellBin { return CellBin{rb: b.rb.Clone()} }

// Vertex is the lineage-graph node of a tracked identity within one frame.
// During a pending merge several cells share one vertex.
type Vertex struct {
	ID     VertexID
	Size   uint32 // total size of the owning cells
	Center r3.Vec // size-weighted center of the owning cells

	cells CellBin
}

func newVertex(id VertexID) *Vertex {
	return &Vertex{ID: id, cells: NewCellBin()}
}

// Cells returns the ids of the owning cells.
func (v *Vertex) Cells() []CellID { return v.cells.IDs() }

// CellCount returns the number of owning cells.
func (v *Vertex) CellCount() int { return v.cells.Len() }

// Owns reports whether the cell id maps to this vertex.
func (v *Vertex) Owns(id CellID) bool { return v.cells.Contains(id) }

// heir returns the owner that keeps the vertex when all of its cells are
// divided: the cell the vertex was created for, which is also the target of
// any combine onto it, or the lowest owner id once that cell is gone.
func (v *Vertex) heir() CellID {
	if id := CellID(v.ID); v.Owns(id) {
		return id
	}
	return v.Cells()[0]
}

// ownedWithin reports whether every owner of the vertex is in list.
func (v *Vertex) ownedWithin(list CellFrame) bool {
	for _, id := range v.cells.IDs() {
		if !list.Has(id) {
			return false
		}
	}
	return true
}

// refresh recomputes size and center from the owning cells still present in
// frame. Cells missing from the frame are dropped from the bin.
func (v *Vertex) refresh(frame CellFrame) {
	var (
		total  float64
		size   uint32
		sum    r3.Vec
		plain  r3.Vec
		counts int
	)
	for _, id := range v.cells.IDs() {
		c, ok := frame[id]
		if !ok {
			v.cells.Remove(id)
			continue
		}
		w := float64(c.Size)
		total += w
		size += c.Size
		sum = r3.Add(sum, r3.Scale(w, c.Center))
		plain = r3.Add(plain, c.Center)
		counts++
	}
	v.Size = size
	switch {
	case total > 0:
		v.Center = r3.Scale(1/total, sum)
	case counts > 0:
		v.Center = r3.Scale(1/float64(counts), plain)
	default:
		v.Center = r3.Vec{}
	}
}

// VertexList holds the vertices of one frame.
type VertexList map[VertexID]*Vertex

// IDs returns the vertex ids in ascending order.
func (l VertexList) IDs() []VertexID {
	ids := make([]VertexID, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// snapshot returns deep copies of the vertices.
func (l VertexList) snapshot() VertexList {
	out := make(VertexList, len(l))
	for id, v := range l {
		vv := *v
		vv.cells = v.cells.Clone()
		out[id] = &vv
	}
	return out
}

// nextFree returns prefer when unused, otherwise the smallest id above the
// current maximum.
func (l VertexList) nextFree(prefer VertexID) VertexID {
	if _, used := l[prefer]; !used {
		return prefer
	}
	var top VertexID
	for id := range l {
		if id > top {
			top = id
		}
	}
	return top + 1
}
