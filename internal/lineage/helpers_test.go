package lineage

import (
	"testing"

	"github.com/banshee-data/lineage/internal/fsutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// cell builds a test cell on the x axis.
func cell(id CellID, size uint32, x float64) *Cell {
	return NewCell(id, size, r3.Vec{X: x})
}

// newTestMap builds a TrackMap with one frame per argument and a processor
// writing to an in-memory filesystem.
func newTestMap(t *testing.T, frames ...[]*Cell) (*TrackMap, *Processor) {
	t.Helper()
	tm := NewTrackMap()
	tm.SetFrameNum(len(frames))
	p := NewProcessor(tm, ProcessorConfig{FS: fsutil.NewMemoryFileSystem()})
	for f, cells := range frames {
		require.NoError(t, p.AddCells(NewCellFrame(cells...), f))
	}
	return tm, p
}

// pick returns the listed cells of frame as a selection.
func pick(tm *TrackMap, frame int, ids ...CellID) CellFrame {
	all := tm.CellList(frame)
	sel := CellFrame{}
	for _, id := range ids {
		if c, ok := all[id]; ok {
			sel[id] = c
		}
	}
	return sel
}

// vertexID returns the vertex handle of a stored cell.
func vertexID(t *testing.T, tm *TrackMap, frame int, id CellID) VertexID {
	t.Helper()
	c, ok := tm.CellList(frame)[id]
	require.True(t, ok, "cell %d missing from frame %d", id, frame)
	vid, ok := c.Vertex()
	require.True(t, ok, "cell %d has no vertex", id)
	return vid
}
