// Package api serves recorded runs and tree metrics over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/report"
	"github.com/banshee-data/arbor.report/internal/store"
	"github.com/banshee-data/arbor.report/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db    *store.DB
	units string
}

// NewServer returns a server over db. Lengths in tree responses are
// converted to unitName unless a request overrides it with ?units=.
func NewServer(db *store.DB, unitName string) *Server {
	if !units.IsValid(unitName) {
		unitName = units.Metres
	}
	return &Server{db: db, units: unitName}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux routes the JSON API. Mount it under /api/ with StripPrefix.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs", s.listRuns)
	mux.HandleFunc("GET /runs/{id}", s.showRun)
	mux.HandleFunc("GET /runs/{id}/trees", s.listTrees)
	mux.HandleFunc("GET /runs/{id}/summary", s.showSummary)
	mux.HandleFunc("GET /runs/{id}/chart", s.showChart)
	mux.HandleFunc("GET /config", s.showConfig)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RunAPI is the JSON shape of a run.
type RunAPI struct {
	ID         string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
	InputPath  string          `json:"input_path"`
	Config     json.RawMessage `json:"config"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
}

func runToAPI(r store.Run) RunAPI {
	cfg := json.RawMessage(r.ConfigJSON)
	if !json.Valid(cfg) {
		cfg = json.RawMessage("null")
	}
	return RunAPI{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		InputPath:  r.InputPath,
		Config:     cfg,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
	}
}

// TreeAPI is the JSON shape of one tree. Lengths are in Units; DBH stays
// in centimetres, volume and area in cubic and square metres.
type TreeAPI struct {
	TreeID            string    `json:"tree_id"`
	ProcessedAt       time.Time `json:"processed_at"`
	Units             string    `json:"units"`
	Height            float64   `json:"height"`
	H0                float64   `json:"h0_crown_base"`
	CrownDepth        float64   `json:"crown_depth"`
	DBHCm             float64   `json:"dbh_cm"`
	DBHMethod         string    `json:"dbh_method"`
	CrownRadius       float64   `json:"crown_radius"`
	CrownDiameter     float64   `json:"crown_diameter"`
	MaxCrownWidth     float64   `json:"max_crown_width"`
	MinCrownWidth     float64   `json:"min_crown_width"`
	AspectRatio       float64   `json:"aspect_ratio"`
	VolumeM3          float64   `json:"volume_m3"`
	SurfaceAreaM2     float64   `json:"surface_area_m2"`
	MeshClosed        bool      `json:"mesh_closed"`
	HasSkeleton       bool      `json:"has_skeleton"`
	LeafNodesTotal    int       `json:"leaf_nodes_total"`
	LeafNodesFiltered int       `json:"leaf_nodes_filtered"`
}

func treeToAPI(r report.Row, unit string) TreeAPI {
	conv := func(v float64) float64 { return units.ConvertLength(v, unit) }
	return TreeAPI{
		TreeID:            r.TreeID,
		ProcessedAt:       r.ProcessingTime,
		Units:             unit,
		Height:            conv(r.Height),
		H0:                conv(r.H0),
		CrownDepth:        conv(r.CrownDepth),
		DBHCm:             r.DBHCm,
		DBHMethod:         r.DBHMethod,
		CrownRadius:       conv(r.CrownRadius),
		CrownDiameter:     conv(r.CrownDiameter),
		MaxCrownWidth:     conv(r.MaxCrownWidth),
		MinCrownWidth:     conv(r.MinCrownWidth),
		AspectRatio:       r.AspectRatio,
		VolumeM3:          r.VolumeM3,
		SurfaceAreaM2:     r.SurfaceAreaM2,
		MeshClosed:        r.MeshClosed,
		HasSkeleton:       r.HasSkeleton,
		LeafNodesTotal:    r.LeafNodesTotal,
		LeafNodesFiltered: r.LeafNodesFiltered,
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	out := make([]RunAPI, len(runs))
	for i, run := range runs {
		out[i] = runToAPI(run)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runToAPI(*run))
}

// lookupRun loads the {id} run, writing a 404 or 500 when it cannot.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	id := r.PathValue("id")
	run, err := s.db.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return nil, false
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve run: %v", err))
		return nil, false
	}
	return run, true
}

func (s *Server) rows(w http.ResponseWriter, r *http.Request) ([]report.Row, bool) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return nil, false
	}
	rows, err := s.db.ListTreeMetrics(r.Context(), run.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve trees: %v", err))
		return nil, false
	}
	return rows, true
}

func (s *Server) listTrees(w http.ResponseWriter, r *http.Request) {
	unit := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 'units' parameter, use one of %s", units.GetValidUnitsString()))
			return
		}
		unit = u
	}
	rows, ok := s.rows(w, r)
	if !ok {
		return
	}
	out := make([]TreeAPI, len(rows))
	for i, row := range rows {
		out[i] = treeToAPI(row, unit)
	}
	writeJSON(w, http.StatusOK, out)
}

// SummaryAPI wraps the run averages. Lengths are in metres.
type SummaryAPI struct {
	RunID         string  `json:"run_id"`
	Trees         int     `json:"trees"`
	Height        float64 `json:"height_m"`
	HeightStdDev  float64 `json:"height_std_m"`
	MinHeight     float64 `json:"min_height_m"`
	MaxHeight     float64 `json:"max_height_m"`
	H0            float64 `json:"h0_m"`
	CrownDepth    float64 `json:"crown_depth_m"`
	DBHCm         float64 `json:"dbh_cm"`
	DBHCount      int     `json:"dbh_count"`
	CrownDiameter float64 `json:"crown_diameter_m"`
	VolumeM3      float64 `json:"volume_m3"`
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.rows(w, r)
	if !ok {
		return
	}
	a := report.ComputeAverages(rows)
	writeJSON(w, http.StatusOK, SummaryAPI{
		RunID:         r.PathValue("id"),
		Trees:         a.Trees,
		Height:        a.Height,
		HeightStdDev:  a.HeightStdDev,
		MinHeight:     a.MinHeight,
		MaxHeight:     a.MaxHeight,
		H0:            a.H0,
		CrownDepth:    a.CrownDepth,
		DBHCm:         a.DBHCm,
		DBHCount:      a.DBHCount,
		CrownDiameter: a.CrownDiameter,
		VolumeM3:      a.VolumeM3,
	})
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.rows(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteSummaryChart(w, rows); err != nil {
		monitoring.Logf("failed to render chart: %v", err)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"units":       s.units,
		"valid_units": units.ValidUnits,
	})
}
