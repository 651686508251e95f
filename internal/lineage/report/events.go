// Package report summarises a TrackMap for humans: per-frame lineage event
// counts as an HTML chart page and trace trails as a PNG plot.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/lineage/internal/lineage"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// FrameEvents counts the lineage events of one frame.
type FrameEvents struct {
	Frame     int `json:"frame"`
	Cells     int `json:"cells"`
	InOrphan  int `json:"in_orphan"`  // appearances
	OutOrphan int `json:"out_orphan"` // disappearances
	InMulti   int `json:"in_multi"`   // merges
	OutMulti  int `json:"out_multi"`  // divisions
	Uncertain int `json:"uncertain"`
}

// EventCounts classifies every frame of the processor's map with
// GetLinkLists and GetUncertainCells.
func EventCounts(p *lineage.Processor) []FrameEvents {
	tm := p.TrackMap()
	n := tm.FrameNum()
	out := make([]FrameEvents, 0, n)
	for f := 0; f < n; f++ {
		ll := p.GetLinkLists(f)
		out = append(out, FrameEvents{
			Frame:     f,
			Cells:     len(tm.CellList(f)),
			InOrphan:  len(ll.InOrphan),
			OutOrphan: len(ll.OutOrphan),
			InMulti:   len(ll.InMulti),
			OutMulti:  len(ll.OutMulti),
			Uncertain: len(p.GetUncertainCells(f)),
		})
	}
	return out
}

// RenderEventReport writes an HTML page with a stacked bar chart of the
// events per frame and a line chart of the cell count.
func RenderEventReport(w io.Writer, title string, events []FrameEvents) error {
	x := make([]string, len(events))
	series := map[string][]opts.BarData{}
	cells := make([]opts.LineData, len(events))
	for i, e := range events {
		x[i] = strconv.Itoa(e.Frame)
		series["appear"] = append(series["appear"], opts.BarData{Value: e.InOrphan})
		series["disappear"] = append(series["disappear"], opts.BarData{Value: e.OutOrphan})
		series["merge"] = append(series["merge"], opts.BarData{Value: e.InMulti})
		series["divide"] = append(series["divide"], opts.BarData{Value: e.OutMulti})
		cells[i] = opts.LineData{Value: e.Cells}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Lineage events", Subtitle: fmt.Sprintf("%s frames=%d", title, len(events))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x)
	for _, name := range []string{"appear", "disappear", "merge", "divide"} {
		bar.AddSeries(name, series[name], charts.WithBarChartOpts(opts.BarChart{Stack: "events"}))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Cells per frame"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).AddSeries("cells", cells)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = title
	page.AddCharts(bar, line)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render event report: %w", err)
	}
	return nil
}
