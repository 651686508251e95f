package lineage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackMap_OutOfRange(t *testing.T) {
	t.Parallel()
	tm, _ := newTestMap(t, []*Cell{cell(1, 1, 0)})

	assert.Empty(t, tm.CellList(-1))
	assert.Empty(t, tm.CellList(5))
	assert.Empty(t, tm.VertexList(3))

	g := tm.InterGraph(0) // single frame: no pair
	g.EnsureEdge(1, 1).Linked = true
	total, _ := tm.InterGraph(0).EdgeCount()
	assert.Equal(t, 0, total, "detached graph must not be stored")
}

func TestTrackMap_ClearAndResize(t *testing.T) {
	t.Parallel()
	tm, _ := newTestMap(t, []*Cell{cell(1, 1, 0)}, []*Cell{cell(1, 1, 0)})
	id := tm.ID()

	tm.SetFrameNum(4)
	assert.Equal(t, 4, tm.FrameNum())
	assert.Len(t, tm.Stats(), 4)
	assert.Len(t, tm.CellList(0), 1)

	tm.SetFrameNum(1)
	assert.Equal(t, 1, tm.FrameNum())

	tm.Clear()
	assert.Equal(t, 0, tm.FrameNum())
	assert.NotEqual(t, id, tm.ID())
}

func TestTrackMap_CellListIsCopy(t *testing.T) {
	t.Parallel()
	tm, _ := newTestMap(t, []*Cell{cell(1, 5, 0)})
	cells := tm.CellList(0)
	cells[1].Size = 99
	delete(cells, 1)
	assert.Equal(t, uint32(5), tm.CellList(0)[1].Size)
}

func TestTrackMap_VertexListIsCopy(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 5, 0), cell(2, 5, 2)})
	vl := tm.VertexList(0)
	vl[1].Size = 99
	delete(vl, 2)

	// Later edits do not reach an earlier copy either.
	require.NoError(t, p.CombineCells(1, pick(tm, 0, 2), 0))
	assert.Equal(t, []CellID{1}, vl[1].Cells())

	got := tm.VertexList(0)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(10), got[1].Size)
	assert.Equal(t, []CellID{1, 2}, got[1].Cells())
}

func TestAddCellDup(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 10, 0)})

	c := cell(2, 20, 1)
	require.NoError(t, p.AddCellDup(c, 0))
	_, attached := c.Vertex()
	assert.False(t, attached, "the caller's cell is copied, not stored")
	assert.Equal(t, VertexID(2), vertexID(t, tm, 0, 2))

	err := p.AddCellDup(cell(2, 1, 0), 0)
	assert.ErrorIs(t, err, ErrDuplicateCell)
	assert.Equal(t, uint32(20), tm.CellList(0)[2].Size)

	err = p.AddCellDup(cell(3, 1, 0), 4)
	assert.ErrorIs(t, err, ErrFrameRange)
	var fre *FrameRangeError
	require.True(t, errors.As(err, &fre))
	assert.Equal(t, 4, fre.Frame)
	assert.Equal(t, 1, fre.FrameNum)
}

func TestAddCells_AllOrNothing(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 10, 0)})

	err := p.AddCells(NewCellFrame(cell(5, 1, 0), cell(1, 1, 0)), 0)
	assert.ErrorIs(t, err, ErrDuplicateCell)
	assert.False(t, tm.CellList(0).Has(5))
}

func TestAddCellDup_VertexIDTaken(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 1, 0), cell(2, 1, 0)})
	require.NoError(t, p.ReplaceCellID(1, 7, 0)) // vertex 1 now serves cell 7

	require.NoError(t, p.AddCellDup(cell(1, 1, 0), 0))
	assert.Equal(t, VertexID(3), vertexID(t, tm, 0, 1))
}

func TestLinkCells_Scenario(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 10, 0)}, // a1
		[]*Cell{cell(1, 10, 1)}, // b1
		[]*Cell{cell(1, 10, 2)}, // c1
	)

	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 1), 0, 1, false))
	require.NoError(t, p.LinkCells(pick(tm, 1, 1), pick(tm, 2, 1), 1, 2, false))

	got := p.GetMappedCells(pick(tm, 0, 1), 0, 2)
	assert.Equal(t, []CellID{1}, got.IDs())
	assert.Equal(t, 2.0, got[1].Center.X, "result cells come from frame 2")

	back := p.GetMappedCells(pick(tm, 2, 1), 2, 0)
	assert.Equal(t, []CellID{1}, back.IDs())
	assert.Equal(t, 0.0, back[1].Center.X)

	require.NoError(t, p.IsolateCells(pick(tm, 1, 1), 1))
	assert.Empty(t, p.GetMappedCells(pick(tm, 0, 1), 0, 2))
}

func TestLinkCells_Symmetry(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0), cell(2, 1, 0)},
		[]*Cell{cell(3, 1, 0), cell(4, 1, 0)},
	)
	a := pick(tm, 0, 1, 2)
	b := pick(tm, 1, 3, 4)

	require.NoError(t, p.LinkCells(a, b, 0, 1, false))
	g := tm.InterGraph(0)
	for _, near := range []VertexID{1, 2} {
		for _, nb := range g.Neighbors(NearSide, near) {
			assert.True(t, nb.Link.Linked)
		}
	}
	for _, far := range []VertexID{3, 4} {
		for _, nb := range g.Neighbors(FarSide, far) {
			assert.True(t, nb.Link.Linked)
		}
		assert.Equal(t, 2, g.LinkedDegree(FarSide, far))
	}

	// Reversed frame order addresses the same edges.
	require.NoError(t, p.UnlinkCells(b, a, 1, 0))
	total, linked := g.EdgeCount()
	assert.Equal(t, 4, total, "unlink keeps candidate edges")
	assert.Equal(t, 0, linked)
}

func TestLinkCells_Exclusive(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0), cell(2, 1, 0)},
		[]*Cell{cell(5, 1, 0), cell(6, 1, 0)},
	)
	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 5), 0, 1, false))
	require.NoError(t, p.LinkCells(pick(tm, 0, 2), pick(tm, 1, 6), 0, 1, false))

	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 6), 0, 1, true))

	g := tm.InterGraph(0)
	assert.False(t, g.Link(1, 5).Linked)
	assert.True(t, g.Link(1, 6).Linked)
	assert.False(t, g.Link(2, 6).Linked, "exclusive clears links on both ends")
}

func TestLinkCells_Errors(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0)},
		[]*Cell{cell(1, 1, 0)},
		[]*Cell{cell(1, 1, 0)},
	)
	one := pick(tm, 0, 1)

	tests := []struct {
		name           string
		frame1, frame2 int
		list2          CellFrame
		want           error
	}{
		{"same frame", 1, 1, one, ErrSameFrame},
		{"not adjacent", 0, 2, one, ErrNotAdjacent},
		{"out of range", 2, 3, one, ErrFrameRange},
		{"negative frame", -1, 0, one, ErrFrameRange},
		{"unknown cells", 0, 1, NewCellFrame(cell(9, 1, 0)), ErrCellNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.LinkCells(one, tt.list2, tt.frame1, tt.frame2, false)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	total, _ := tm.InterGraph(0).EdgeCount()
	assert.Equal(t, 0, total, "failed links must not create edges")
}

func TestAddCandidate(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 1, 0)}, []*Cell{cell(2, 1, 0)})

	require.NoError(t, p.AddCandidate(1, 2, 0, 30, 1.5))
	l := tm.InterGraph(0).Link(1, 2)
	require.NotNil(t, l)
	assert.Equal(t, Link{Overlap: 30, Distance: 1.5}, *l)

	assert.ErrorIs(t, p.AddCandidate(1, 3, 0, 1, 1), ErrCellNotFound)
	assert.ErrorIs(t, p.AddCandidate(2, 1, 1, 1, 1), ErrFrameRange)
}

func TestCombineDivide_RoundTrip(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 2, 0), cell(2, 2, 2), cell(3, 4, 4)})

	require.NoError(t, p.CombineCells(1, pick(tm, 0, 2, 3), 0))
	v := vertexID(t, tm, 0, 1)
	assert.Equal(t, v, vertexID(t, tm, 0, 2))
	assert.Equal(t, v, vertexID(t, tm, 0, 3))
	vl := tm.VertexList(0)
	require.Len(t, vl, 1)
	assert.Equal(t, []CellID{1, 2, 3}, vl[v].Cells())
	assert.Equal(t, uint32(8), vl[v].Size)
	assert.InDelta(t, 2.5, vl[v].Center.X, 1e-9)

	require.NoError(t, p.DivideCells(pick(tm, 0, 2, 3), 0))
	v1 := vertexID(t, tm, 0, 1)
	v2 := vertexID(t, tm, 0, 2)
	v3 := vertexID(t, tm, 0, 3)
	assert.NotEqual(t, v2, v3)
	assert.NotEqual(t, v1, v2)
	assert.NotEqual(t, v1, v3)
	assert.Len(t, tm.VertexList(0), 3)
}

func TestDivideCells_AllOwnersKeepsLineage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		linked  CellID
		target  CellID
		divided []CellID
	}{
		{name: "lower id target", linked: 1, target: 1, divided: []CellID{1, 2}},
		{name: "higher id target", linked: 2, target: 2, divided: []CellID{1, 2}},
		{name: "three owners", linked: 1, target: 1, divided: []CellID{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tm, p := newTestMap(t,
				[]*Cell{cell(5, 1, 0)},
				[]*Cell{cell(1, 1, 0), cell(2, 1, 1), cell(3, 1, 2)},
			)
			require.NoError(t, p.LinkCells(pick(tm, 0, 5), pick(tm, 1, tt.linked), 0, 1, false))
			require.NoError(t, p.CombineCells(tt.target, pick(tm, 1, tt.divided...), 1))
			require.NoError(t, p.DivideCells(pick(tm, 1, tt.divided...), 1))

			for _, id := range tt.divided {
				for _, other := range tt.divided {
					if id != other {
						assert.NotEqual(t, vertexID(t, tm, 1, id), vertexID(t, tm, 1, other))
					}
				}
			}
			got := p.GetMappedCells(pick(tm, 0, 5), 0, 1)
			assert.Equal(t, []CellID{tt.target}, got.IDs(), "the link stays with the combine target")
		})
	}
}

func TestCombineCells_TargetInList(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 1, 0), cell(2, 1, 0)})

	require.NoError(t, p.CombineCells(1, pick(tm, 0, 1, 2), 0))
	require.NoError(t, p.DivideCells(pick(tm, 0, 1, 2), 0))
	assert.NotEqual(t, vertexID(t, tm, 0, 1), vertexID(t, tm, 0, 2))
}

func TestCombineCells_MergesEdges(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(9, 1, 0)},
		[]*Cell{cell(1, 1, 0), cell(2, 1, 0)},
		[]*Cell{cell(5, 1, 0)},
	)
	require.NoError(t, p.LinkCells(pick(tm, 0, 9), pick(tm, 1, 2), 0, 1, false))
	require.NoError(t, p.LinkCells(pick(tm, 1, 2), pick(tm, 2, 5), 1, 2, false))

	require.NoError(t, p.CombineCells(1, pick(tm, 1, 2), 1))

	assert.NotContains(t, tm.VertexList(1), VertexID(2))
	assert.False(t, tm.InterGraph(0).HasVertex(FarSide, 2))
	assert.True(t, tm.InterGraph(0).Link(9, 1).Linked)
	assert.True(t, tm.InterGraph(1).Link(1, 5).Linked)
	assert.Equal(t, []CellID{5}, p.GetMappedCells(pick(tm, 0, 9), 0, 2).IDs())

	assert.ErrorIs(t, p.CombineCells(7, pick(tm, 1, 2), 1), ErrCellNotFound)
}

func TestDivideCells_InheritsCandidates(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0), cell(2, 1, 0)},
		[]*Cell{cell(5, 1, 0)},
	)
	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 5), 0, 1, false))
	require.NoError(t, p.CombineCells(1, pick(tm, 0, 2), 0))
	require.NoError(t, p.DivideCells(pick(tm, 0, 2), 0))

	g := tm.InterGraph(0)
	v2 := vertexID(t, tm, 0, 2)
	require.NotNil(t, g.Link(v2, 5))
	assert.False(t, g.Link(v2, 5).Linked)
	assert.True(t, g.Link(vertexID(t, tm, 0, 1), 5).Linked)
	assert.Equal(t, uint32(1), p.Uncertainty(2, 0))
	assert.Equal(t, uint32(0), p.Uncertainty(1, 0))
	assert.Equal(t, []CellID{5}, p.GetMappedCells(pick(tm, 0, 1, 2), 0, 1).IDs())
}

func TestDivideCells_SingleOwnerUnchanged(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t, []*Cell{cell(1, 1, 0)})
	require.NoError(t, p.DivideCells(pick(tm, 0, 1), 0))
	assert.Equal(t, VertexID(1), vertexID(t, tm, 0, 1))
	assert.ErrorIs(t, p.DivideCells(NewCellFrame(cell(4, 1, 0)), 0), ErrCellNotFound)
}

func TestIsolateCells_BothDirections(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0)},
		[]*Cell{cell(1, 1, 0)},
		[]*Cell{cell(1, 1, 0)},
	)
	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 1), 0, 1, false))
	require.NoError(t, p.LinkCells(pick(tm, 1, 1), pick(tm, 2, 1), 1, 2, false))

	require.NoError(t, p.IsolateCells(pick(tm, 1, 1), 1))
	assert.False(t, tm.InterGraph(0).Link(1, 1).Linked)
	assert.False(t, tm.InterGraph(1).Link(1, 1).Linked)
	assert.ErrorIs(t, p.IsolateCells(pick(tm, 1, 1), 3), ErrFrameRange)
}

func TestReplaceCellID(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0), cell(2, 1, 0)},
		[]*Cell{cell(3, 1, 0)},
	)
	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 3), 0, 1, false))

	require.NoError(t, p.ReplaceCellID(1, 7, 0))
	cells := tm.CellList(0)
	assert.False(t, cells.Has(1))
	assert.True(t, cells.Has(7))
	assert.Equal(t, []CellID{7}, tm.VertexList(0)[vertexID(t, tm, 0, 7)].Cells())
	assert.Equal(t, []CellID{3}, p.GetMappedCells(pick(tm, 0, 7), 0, 1).IDs())

	assert.ErrorIs(t, p.ReplaceCellID(7, 2, 0), ErrDuplicateCell)
	assert.True(t, tm.CellList(0).Has(7), "failed rename leaves the cell")
	assert.ErrorIs(t, p.ReplaceCellID(1, 8, 0), ErrCellNotFound)
	assert.NoError(t, p.ReplaceCellID(7, 7, 0))
}

func TestGetMappedCells(t *testing.T) {
	t.Parallel()
	tm := NewTrackMap()
	tm.SetFrameNum(3)
	p := NewProcessor(tm, ProcessorConfig{SizeThreshold: 5})
	require.NoError(t, p.AddCells(NewCellFrame(cell(1, 10, 0), cell(2, 10, 0), cell(3, 1, 0)), 0))
	require.NoError(t, p.AddCells(NewCellFrame(cell(1, 10, 0), cell(2, 2, 0)), 1))
	require.NoError(t, p.AddCells(NewCellFrame(cell(1, 10, 0)), 2))
	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 1), 0, 1, false))
	require.NoError(t, p.LinkCells(pick(tm, 0, 2), pick(tm, 1, 2), 0, 1, false))
	require.NoError(t, p.LinkCells(pick(tm, 1, 1), pick(tm, 2, 1), 1, 2, false))

	t.Run("same frame filters by size only", func(t *testing.T) {
		sel := pick(tm, 0, 1, 2, 3)
		got := p.GetMappedCells(sel, 0, 0)
		assert.Equal(t, sel.FilterSize(5).IDs(), got.IDs())
		assert.Equal(t, []CellID{1, 2}, got.IDs())
	})
	t.Run("small cells drop at the hop", func(t *testing.T) {
		assert.Equal(t, []CellID{1}, p.GetMappedCells(pick(tm, 0, 1, 2), 0, 1).IDs())
	})
	t.Run("multi-hop narrows silently", func(t *testing.T) {
		assert.Equal(t, []CellID{1}, p.GetMappedCells(pick(tm, 0, 1, 2), 0, 2).IDs())
	})
	t.Run("out of range is empty", func(t *testing.T) {
		assert.Empty(t, p.GetMappedCells(pick(tm, 0, 1), 0, 3))
		assert.Empty(t, p.GetMappedCells(pick(tm, 0, 1), -1, 0))
	})
}

func TestWalkLinks(t *testing.T) {
	t.Parallel()
	tm, p := newTestMap(t,
		[]*Cell{cell(1, 1, 0)},
		[]*Cell{cell(4, 1, 3), cell(5, 1, 5)},
	)
	require.NoError(t, p.LinkCells(pick(tm, 0, 1), pick(tm, 1, 4, 5), 0, 1, false))

	pairs := p.WalkLinks(pick(tm, 0, 1), 0, 1)
	require.Len(t, pairs, 2)
	assert.Equal(t, CellID(4), pairs[0].To.ID)
	assert.Equal(t, CellID(5), pairs[1].To.ID)
	assert.Equal(t, 3.0, pairs[0].ToCenter.X)
	assert.Equal(t, VertexID(1), pairs[0].FromVertex)

	assert.Nil(t, p.WalkLinks(pick(tm, 0, 1), 0, 0))
}
