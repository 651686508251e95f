// Package api serves a TrackMap over HTTP: frame statistics, link lists,
// trace trails, the event report and, when a store is attached, snapshots.
package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/lineage/internal/lineage"
	"github.com/banshee-data/lineage/internal/lineage/report"
	"github.com/banshee-data/lineage/internal/lineage/storage/sqlite"
	"github.com/banshee-data/lineage/internal/lineage/trace"
	"github.com/banshee-data/lineage/internal/monitoring"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Server answers read requests against one TrackMap. Every request builds
// its own Processor and TraceGroup; the TrackMap serialises access.
type Server struct {
	tm    *lineage.TrackMap
	cfg   trace.TraceConfig
	store *sqlite.Store // nil disables the snapshot routes
}

func NewServer(tm *lineage.TrackMap, cfg trace.TraceConfig, store *sqlite.Store) *Server {
	return &Server{tm: tm, cfg: cfg, store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%d] %s %s %vms", lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

// ServeMux returns the API routes. With a store attached the snapshot routes
// and the store's debug routes are mounted too.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/links", s.showLinks)
	mux.HandleFunc("/api/trace", s.showTrace)
	mux.HandleFunc("/report", s.showReport)
	if s.store != nil {
		mux.HandleFunc("/api/snapshots", s.snapshots)
		mux.HandleFunc("/api/snapshots/load", s.loadSnapshot)
		if err := s.store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (s *Server) processor() *lineage.Processor {
	return lineage.NewProcessor(s.tm, s.cfg.Processor)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id": s.tm.ID(),
		"frames":     s.tm.Stats(),
	})
}

type linkListsResponse struct {
	Frame     int              `json:"frame"`
	InOrphan  []lineage.CellID `json:"in_orphan"`
	OutOrphan []lineage.CellID `json:"out_orphan"`
	InMulti   []lineage.CellID `json:"in_multi"`
	OutMulti  []lineage.CellID `json:"out_multi"`
	Uncertain []lineage.CellID `json:"uncertain"`
}

func (s *Server) showLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	frame, err := s.frameParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	p := s.processor()
	ll := p.GetLinkLists(frame)
	writeJSON(w, http.StatusOK, linkListsResponse{
		Frame:     frame,
		InOrphan:  ll.InOrphan.IDs(),
		OutOrphan: ll.OutOrphan.IDs(),
		InMulti:   ll.InMulti.IDs(),
		OutMulti:  ll.OutMulti.IDs(),
		Uncertain: p.GetUncertainCells(frame).IDs(),
	})
}

type rulerResponse struct {
	Vertex lineage.VertexID `json:"vertex"`
	Lead   bool             `json:"lead"`
	Frames []int            `json:"frames"`
	Points []r3.Vec         `json:"points"`
	Length float64          `json:"length"`
}

// showTrace walks the trails of ?cells=1,2 at ?frame=, optionally with
// ?ghost=.
func (s *Server) showTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	frame, err := s.frameParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ids, err := lineage.ParseCellIDs(r.URL.Query().Get("cells"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	tg := trace.NewTraceGroup(s.tm, s.cfg)
	if g := r.URL.Query().Get("ghost"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil {
			badRequest(w, "invalid ghost")
			return
		}
		tg.SetGhostNum(n)
	}
	tg.SetCurTime(frame)
	tg.SetPrvTime(frame)
	tg.UpdateCellList(s.tm.CellList(frame).Pick(ids...))

	rulers, err := tg.GetMappedRulers()
	switch {
	case errors.Is(err, trace.ErrEmptySelection):
		writeJSON(w, http.StatusOK, []rulerResponse{})
		return
	case err != nil:
		badRequest(w, err.Error())
		return
	}
	out := make([]rulerResponse, 0, len(rulers))
	for _, ru := range rulers {
		out = append(out, rulerResponse{
			Vertex: ru.ID,
			Lead:   ru.Lead,
			Frames: ru.Frames,
			Points: ru.Points,
			Length: ru.Length(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var buf bytes.Buffer
	title := "Lineage " + s.tm.ID().String()
	if err := report.RenderEventReport(&buf, title, report.EventCounts(s.processor())); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// snapshots lists snapshots on GET and saves the map under ?name= on POST.
func (s *Server) snapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListSnapshots()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []sqlite.Snapshot{}
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		name := r.URL.Query().Get("name")
		if name == "" {
			badRequest(w, "missing name")
			return
		}
		snap, err := s.store.SaveSnapshot(name, s.tm)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	default:
		methodNotAllowed(w)
	}
}

// loadSnapshot replaces the served map with the snapshot ?id=.
func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	switch err := s.store.LoadSnapshot(id, s.tm); {
	case errors.Is(err, sqlite.ErrSnapshotNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"dataset_id": s.tm.ID(), "frames": s.tm.FrameNum()})
	}
}

func (s *Server) frameParam(r *http.Request) (int, error) {
	frame, err := strconv.Atoi(r.URL.Query().Get("frame"))
	if err != nil {
		return 0, errors.New("invalid frame")
	}
	if n := s.tm.FrameNum(); frame < 0 || frame >= n {
		return 0, &lineage.FrameRangeError{Frame: frame, FrameNum: n}
	}
	return frame, nil
}
