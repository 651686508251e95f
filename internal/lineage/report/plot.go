package report

import (
	"fmt"
	"image/color"

	"github.com/banshee-data/lineage/internal/lineage"
	"github.com/banshee-data/lineage/internal/lineage/trace"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PlotRulers saves the trails in the x/y plane as an image at path; the
// format follows the extension. Lead trails are solid, tail trails dashed,
// and every trail ends in a dot at its tip.
func PlotRulers(rulers []*trace.Ruler, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	tips := make(plotter.XYs, 0, len(rulers))
	for _, r := range rulers {
		if r.Len() < 2 {
			continue
		}
		pts := make(plotter.XYs, r.Len())
		for i, pt := range r.Points {
			pts[i] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("trail %d: %w", r.ID, err)
		}
		l.Color = rulerColor(r)
		l.Width = vg.Points(1.5)
		if !r.Lead {
			l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(l)
		tips = append(tips, pts[len(pts)-1])
	}

	if len(tips) > 0 {
		s, err := plotter.NewScatter(tips)
		if err != nil {
			return fmt.Errorf("trail tips: %w", err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(s)
	}
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save trail plot: %w", err)
	}
	return nil
}

func rulerColor(r *trace.Ruler) color.Color {
	c := trace.CellColor(lineage.CellID(r.ID), 0)
	return color.RGBA{R: uint8(c[0] * 255), G: uint8(c[1] * 255), B: uint8(c[2] * 255), A: 255}
}
