// Package lineage owns the cell-lineage model of a time-lapse dataset.
//
// Responsibilities: per-frame cell storage (CellFrame), lineage-graph
// vertices shared by one or more cells (Vertex, CellBin), one InterGraph per
// adjacent frame pair whose edges carry a linked flag, and the Processor that
// links, unlinks, merges, splits, isolates and renames cells, walks
// selections across frames, classifies orphans and multi-links, and persists
// the whole TrackMap.
// Key types: TrackMap, Processor, Cell, Vertex, InterGraph.
//
// Ownership rule: the TrackMap owns every Cell, Vertex and InterGraph.
// Cells refer to their Vertex by VertexID and vertices refer back to their
// cells through a CellBin of CellIDs; neither holds the other.
//
// Segmentation, overlap analysis and rendering are external: they supply
// Cells and candidate edges and consume trails from package trace.
package lineage
