package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/lineage/internal/lineage"
	"gonum.org/v1/gonum/spatial/r3"
)

// ingestFile is the JSON produced by the segmentation and overlap stages.
// Candidates of frame t join it to frame t+1.
type ingestFile struct {
	Frames []ingestFrame `json:"frames"`
}

type ingestFrame struct {
	Cells      []ingestCell      `json:"cells"`
	Candidates []ingestCandidate `json:"candidates,omitempty"`
}

type ingestCell struct {
	ID     lineage.CellID `json:"id"`
	Size   uint32         `json:"size"`
	Center [3]float64     `json:"center"`
}

type ingestCandidate struct {
	From     lineage.CellID `json:"from"`
	To       lineage.CellID `json:"to"`
	Overlap  float32        `json:"overlap"`
	Distance float32        `json:"distance"`
	Linked   bool           `json:"linked,omitempty"`
}

// ingest replaces the contents of p's map with the frames read from r.
func ingest(r io.Reader, p *lineage.Processor) error {
	var in ingestFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return fmt.Errorf("parse ingest JSON: %w", err)
	}

	tm := p.TrackMap()
	tm.Clear()
	tm.SetFrameNum(len(in.Frames))
	for f, fr := range in.Frames {
		cells := lineage.CellFrame{}
		for _, c := range fr.Cells {
			center := r3.Vec{X: c.Center[0], Y: c.Center[1], Z: c.Center[2]}
			if !cells.Add(lineage.NewCell(c.ID, c.Size, center)) {
				return fmt.Errorf("frame %d: cell %d: %w", f, c.ID, lineage.ErrDuplicateCell)
			}
		}
		if err := p.AddCells(cells, f); err != nil {
			return err
		}
	}

	for f, fr := range in.Frames {
		for _, c := range fr.Candidates {
			if err := p.AddCandidate(c.From, c.To, f, c.Overlap, c.Distance); err != nil {
				return fmt.Errorf("frame %d: %w", f, err)
			}
			if !c.Linked {
				continue
			}
			from := tm.CellList(f).Pick(c.From)
			to := tm.CellList(f + 1).Pick(c.To)
			if err := p.LinkCells(from, to, f, f+1, false); err != nil {
				return fmt.Errorf("frame %d: %w", f, err)
			}
		}
	}
	return nil
}
