package lineage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// CellID identifies a cell within one frame. Ids are only unique per frame.
type CellID uint32

// VertexID identifies a lineage vertex within one frame.
type VertexID uint32

// Cell is one segmented object in a single frame.
type Cell struct {
	ID     CellID
	Size   uint32 // voxel count
	Center r3.Vec

	// Handle of the vertex this cell currently maps to. Non-owning.
	vertex    VertexID
	hasVertex bool
}

// NewCell returns a cell with no vertex attached.
func NewCell(id CellID, size uint32, center r3.Vec) *Cell {
	return &Cell{ID: id, Size: size, Center: center}
}

// Vertex returns the handle of the cell's vertex, if it has one.
func (c *Cell) Vertex() (VertexID, bool) {
	return c.vertex, c.hasVertex
}

// Clone returns a detached copy of the cell (no vertex handle).
func (c *Cell) Clone() *Cell {
	return &Cell{ID: c.ID, Size: c.Size, Center: c.Center}
}

func (c *Cell) setVertex(id VertexID) {
	c.vertex = id
	c.hasVertex = true
}

func (c *Cell) clearVertex() {
	c.vertex = 0
	c.hasVertex = false
}

// CellFrame maps cell ids to cells. It is both the per-frame store inside a
// TrackMap and the selection type passed between the UI and the processor.
type CellFrame map[CellID]*Cell

// NewCellFrame builds a CellFrame from the given cells. Later duplicates of an
// id replace earlier ones.
func NewCellFrame(cells ...*Cell) CellFrame {
	f := make(CellFrame, len(cells))
	for _, c := range cells {
		if c != nil {
			f[c.ID] = c
		}
	}
	return f
}

// Add inserts c and reports whether the id was free.
func (f CellFrame) Add(c *Cell) bool {
	if _, ok := f[c.ID]; ok {
		return false
	}
	f[c.ID] = c
	return true
}

// Has reports whether id is present.
func (f CellFrame) Has(id CellID) bool {
	_, ok := f[id]
	return ok
}

// IDs returns the cell ids in ascending order.
func (f CellFrame) IDs() []CellID {
	ids := make([]CellID, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sorted returns the cells ordered by id.
func (f CellFrame) Sorted() []*Cell {
	ids := f.IDs()
	cells := make([]*Cell, len(ids))
	for i, id := range ids {
		cells[i] = f[id]
	}
	return cells
}

// Clone returns a shallow copy: a new map sharing the cell pointers.
func (f CellFrame) Clone() CellFrame {
	out := make(CellFrame, len(f))
	for id, c := range f {
		out[id] = c
	}
	return out
}

// FilterSize returns the cells whose size is at least threshold.
func (f CellFrame) FilterSize(threshold uint32) CellFrame {
	out := make(CellFrame, len(f))
	for id, c := range f {
		if c.Size >= threshold {
			out[id] = c
		}
	}
	return out
}

// Pick returns the cells of f with the given ids. Unknown ids are skipped.
func (f CellFrame) Pick(ids ...CellID) CellFrame {
	out := make(CellFrame, len(ids))
	for _, id := range ids {
		if c, ok := f[id]; ok {
			out[id] = c
		}
	}
	return out
}

// ParseCellIDs parses a comma-separated list such as "3,1,2". An empty
// string yields no ids.
func ParseCellIDs(s string) ([]CellID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []CellID
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid cell id %q", part)
		}
		ids = append(ids, CellID(v))
	}
	return ids, nil
}
