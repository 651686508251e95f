package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/lineage/internal/config"
	"github.com/banshee-data/lineage/internal/lineage"
	"github.com/banshee-data/lineage/internal/lineage/api"
	"github.com/banshee-data/lineage/internal/lineage/report"
	"github.com/banshee-data/lineage/internal/lineage/storage/sqlite"
	"github.com/banshee-data/lineage/internal/lineage/trace"
	"github.com/banshee-data/lineage/internal/monitoring"
	"github.com/google/uuid"
)

// common holds the flags shared by every command.
type common struct {
	mapPath    string
	configPath string
	debug      bool

	cfg trace.TraceConfig
}

func newFlagSet(name string, c *common) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&c.mapPath, "map", "lineage.cltm", "Track file")
	fs.StringVar(&c.configPath, "config", "", "Tuning config JSON (missing file means defaults)")
	fs.BoolVar(&c.debug, "debug", false, "Log per-operation detail")
	return fs
}

func (c *common) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if c.debug {
		monitoring.SetDebug(true)
	}
	tuning, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = trace.TraceConfigFromTuning(tuning)
	return nil
}

func (c *common) processor(tm *lineage.TrackMap) *lineage.Processor {
	return lineage.NewProcessor(tm, c.cfg.Processor)
}

// openMap imports the track file named by --map.
func (c *common) openMap() (*lineage.Processor, error) {
	p := c.processor(lineage.NewTrackMap())
	if err := p.Import(c.mapPath); err != nil {
		return nil, err
	}
	return p, nil
}

func handleIngest(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("ingest", &c)
	in := fs.String("in", "", "Ingest JSON (required, - for stdin)")
	autolink := fs.Bool("autolink", false, "Link unresolved candidates after ingest")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("%w: --in is required", errUsage)
	}

	var r io.Reader = os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	p := c.processor(lineage.NewTrackMap())
	if err := ingest(r, p); err != nil {
		return err
	}
	if *autolink {
		if _, err := autoLinkAll(p, out); err != nil {
			return err
		}
	}
	if err := p.Export(c.mapPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "ingested %d frames into %s\n", p.TrackMap().FrameNum(), c.mapPath)
	return nil
}

func handleSummary(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("summary", &c)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}

	tm := p.TrackMap()
	fmt.Fprintf(out, "dataset %s, %d frames\n", tm.ID(), tm.FrameNum())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "frame\tcells\tvertices\tedges\tlinked\tappear\tvanish\tmerge\tdivide\t")
	events := report.EventCounts(p)
	for i, s := range tm.Stats() {
		e := events[i]
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			s.Frame, s.Cells, s.Vertices, s.Edges, s.LinkedEdges,
			e.InOrphan, e.OutOrphan, e.InMulti, e.OutMulti)
	}
	return tw.Flush()
}

func handleLinks(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("links", &c)
	frame := fs.Int("frame", 0, "Frame to classify")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}
	if n := p.TrackMap().FrameNum(); *frame < 0 || *frame >= n {
		return &lineage.FrameRangeError{Frame: *frame, FrameNum: n}
	}

	ll := p.GetLinkLists(*frame)
	for _, row := range []struct {
		name  string
		cells lineage.CellFrame
	}{
		{"in-orphan", ll.InOrphan},
		{"out-orphan", ll.OutOrphan},
		{"in-multi", ll.InMulti},
		{"out-multi", ll.OutMulti},
		{"uncertain", p.GetUncertainCells(*frame)},
	} {
		fmt.Fprintf(out, "%-10s %s\n", row.name, formatIDs(row.cells.IDs()))
	}
	return nil
}

// traceFlags are the selection flags of trace and plot.
type traceFlags struct {
	frame int
	cells string
	ghost int
}

func (t *traceFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&t.frame, "frame", 0, "Current frame")
	fs.StringVar(&t.cells, "cells", "", "Comma-separated cell ids of the frame (required)")
	fs.IntVar(&t.ghost, "ghost", 0, "Trail length in frames (0 uses the config)")
}

func (t *traceFlags) rulers(c *common, tm *lineage.TrackMap) ([]*trace.Ruler, error) {
	ids, err := lineage.ParseCellIDs(t.cells)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	tg := trace.NewTraceGroup(tm, c.cfg)
	if t.ghost > 0 {
		tg.SetGhostNum(t.ghost)
	}
	tg.SetCurTime(t.frame)
	tg.SetPrvTime(t.frame)
	tg.UpdateCellList(tm.CellList(t.frame).Pick(ids...))
	return tg.GetMappedRulers()
}

func handleTrace(args []string, out io.Writer) error {
	var c common
	var t traceFlags
	fs := newFlagSet("trace", &c)
	t.register(fs)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}
	rulers, err := t.rulers(&c, p.TrackMap())
	if err != nil {
		return err
	}

	for _, r := range rulers {
		dir := "tail"
		if r.Lead {
			dir = "lead"
		}
		fmt.Fprintf(out, "%s vertex %d frames %d..%d length %.3f\n",
			dir, r.ID, r.Frames[0], r.TipFrame(), r.Length())
		for i, pt := range r.Points {
			fmt.Fprintf(out, "  %4d  %10.3f %10.3f %10.3f\n", r.Frames[i], pt.X, pt.Y, pt.Z)
		}
	}
	return nil
}

// autoLinkAll runs AutoLink over every adjacent frame pair.
func autoLinkAll(p *lineage.Processor, out io.Writer) (int, error) {
	total := 0
	maxDist := p.Config().AutoLinkMaxDistance
	for f := 0; f+1 < p.TrackMap().FrameNum(); f++ {
		n, err := p.AutoLink(f, maxDist)
		if err != nil {
			return total, err
		}
		total += n
	}
	fmt.Fprintf(out, "autolink: %d new links\n", total)
	return total, nil
}

func handleAutoLink(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("autolink", &c)
	frame := fs.Int("frame", -1, "Near frame of the pair to resolve (-1 for all pairs)")
	maxDist := fs.Float64("max-distance", -1, "Longest candidate to accept (-1 uses the config, 0 accepts any)")
	dest := fs.String("out", "", "Output track file (defaults to --map)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *maxDist >= 0 {
		c.cfg.Processor.AutoLinkMaxDistance = *maxDist
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}

	if *frame < 0 {
		if _, err := autoLinkAll(p, out); err != nil {
			return err
		}
	} else {
		n, err := p.AutoLink(*frame, c.cfg.Processor.AutoLinkMaxDistance)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "autolink: %d new links\n", n)
	}

	if *dest == "" {
		*dest = c.mapPath
	}
	return p.Export(*dest)
}

func handlePlot(args []string, out io.Writer) error {
	var c common
	var t traceFlags
	fs := newFlagSet("plot", &c)
	t.register(fs)
	dest := fs.String("out", "trails.png", "Output image (.png, .svg or .pdf)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}
	rulers, err := t.rulers(&c, p.TrackMap())
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s frame %d", filepath.Base(c.mapPath), t.frame)
	if err := report.PlotRulers(rulers, title, *dest); err != nil {
		return err
	}
	fmt.Fprintf(out, "plotted %d trails to %s\n", len(rulers), *dest)
	return nil
}

func handleReport(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("report", &c)
	dest := fs.String("out", "lineage-report.html", "Output HTML file")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}

	f, err := os.Create(*dest)
	if err != nil {
		return err
	}
	if err := report.RenderEventReport(f, filepath.Base(c.mapPath), report.EventCounts(p)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", *dest)
	return nil
}

func handleSave(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("save", &c)
	dbPath := fs.String("db", "lineage.db", "Snapshot database")
	name := fs.String("name", "", "Snapshot name (defaults to the track file name)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(c.mapPath), filepath.Ext(c.mapPath))
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	store.CompressionLevel = c.cfg.Processor.CompressionLevel

	snap, err := store.SaveSnapshot(*name, p.TrackMap())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s as %s (%d bytes)\n", *name, snap.ID, snap.Size)
	return nil
}

func handleLoad(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("load", &c)
	dbPath := fs.String("db", "lineage.db", "Snapshot database")
	id := fs.String("id", "", "Snapshot id (required)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	snapID, err := uuid.Parse(*id)
	if err != nil {
		return fmt.Errorf("%w: --id: %v", errUsage, err)
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	p := c.processor(lineage.NewTrackMap())
	if err := store.LoadSnapshot(snapID, p.TrackMap()); err != nil {
		return err
	}
	if err := p.Export(c.mapPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "restored %s to %s\n", snapID, c.mapPath)
	return nil
}

func handleSnapshots(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("snapshots", &c)
	dbPath := fs.String("db", "lineage.db", "Snapshot database")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListSnapshots()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tname\tframes\tbytes\tcreated")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Name, s.FrameNum, s.Size, s.Created.Format(time.RFC3339))
	}
	return tw.Flush()
}

func handleServe(args []string, out io.Writer) error {
	var c common
	fs := newFlagSet("serve", &c)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db", "", "Snapshot database (optional)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	p, err := c.openMap()
	if err != nil {
		return err
	}

	var store *sqlite.Store
	if *dbPath != "" {
		if store, err = sqlite.Open(*dbPath); err != nil {
			return err
		}
		defer store.Close()
	}
	mux, err := api.NewServer(p.TrackMap(), c.cfg, store).ServeMux()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, &http.Server{Addr: *listen, Handler: api.LoggingMiddleware(mux)}, out)
}

// serve runs server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, server *http.Server, out io.Writer) error {
	fmt.Fprintf(out, "listening on %s\n", server.Addr)
	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func formatIDs(ids []lineage.CellID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
