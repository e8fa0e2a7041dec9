package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/report"
	"github.com/banshee-data/arbor.report/internal/store"
)

var started = time.Date(2024, 5, 17, 9, 30, 5, 0, time.UTC)

func setupTestServer(t *testing.T, unit string) (*Server, *store.DB) {
	t.Helper()
	monitoring.SetLogger(nil)
	db, err := store.Open(filepath.Join(t.TempDir(), "arbor.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.InsertRun(ctx, store.Run{ID: "run-1", StartedAt: started, Duration: 2 * time.Second,
		InputPath: "/data", ConfigJSON: `{"top_n":5}`, Succeeded: 2}); err != nil {
		t.Fatalf("failed to insert run: %v", err)
	}
	rows := []report.Row{
		{TreeID: "oak", ProcessingTime: started, Height: 10, H0: 2, CrownDepth: 8, DBHCm: 30, DBHMethod: "synthetic",
			CrownRadius: 2, CrownDiameter: 4, MaxCrownWidth: 4, MinCrownWidth: 3, AspectRatio: 1.33},
		{TreeID: "ash", ProcessingTime: started, Height: 14, H0: 4, CrownDepth: 10, DBHMethod: "not computed"},
	}
	if err := db.InsertTreeMetrics(ctx, "run-1", rows); err != nil {
		t.Fatalf("failed to insert trees: %v", err)
	}
	return NewServer(db, unit), db
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListRuns(t *testing.T) {
	s, _ := setupTestServer(t, "m")
	rec := get(t, s, "/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var runs []RunAPI
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].DurationMs != 2000 {
		t.Errorf("unexpected runs %+v", runs)
	}
	if string(runs[0].Config) != `{"top_n":5}` {
		t.Errorf("config = %s", runs[0].Config)
	}
}

func TestShowRun_NotFound(t *testing.T) {
	s, _ := setupTestServer(t, "m")
	for _, path := range []string{"/runs/nope", "/runs/nope/trees", "/runs/nope/summary", "/runs/nope/chart"} {
		rec := get(t, s, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not found") {
			t.Errorf("%s: body %s", path, rec.Body)
		}
	}
}

func TestListTrees_Units(t *testing.T) {
	tests := []struct {
		name       string
		serverUnit string
		path       string
		wantUnit   string
		wantHeight float64
	}{
		{"server default", "m", "/runs/run-1/trees", "m", 14},
		{"server in cm", "cm", "/runs/run-1/trees", "cm", 1400},
		{"query override", "m", "/runs/run-1/trees?units=mm", "mm", 14000},
		{"invalid server unit falls back", "parsec", "/runs/run-1/trees", "m", 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := setupTestServer(t, tt.serverUnit)
			rec := get(t, s, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			var trees []TreeAPI
			if err := json.NewDecoder(rec.Body).Decode(&trees); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(trees) != 2 {
				t.Fatalf("got %d trees", len(trees))
			}
			// Ordered by tree ID.
			ash := trees[0]
			if ash.TreeID != "ash" || ash.Units != tt.wantUnit || math.Abs(ash.Height-tt.wantHeight) > 1e-9 {
				t.Errorf("ash = %+v", ash)
			}
			if trees[1].DBHCm != 30 {
				t.Errorf("DBH should stay in cm, got %v", trees[1].DBHCm)
			}
		})
	}
}

func TestListTrees_BadUnits(t *testing.T) {
	s, _ := setupTestServer(t, "m")
	rec := get(t, s, "/runs/run-1/trees?units=furlong")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestShowSummary(t *testing.T) {
	s, _ := setupTestServer(t, "m")
	rec := get(t, s, "/runs/run-1/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum SummaryAPI
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Trees != 2 || sum.Height != 12 || sum.DBHCount != 1 || sum.DBHCm != 30 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestShowChart(t *testing.T) {
	s, _ := setupTestServer(t, "m")
	rec := get(t, s, "/runs/run-1/chart")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Tree dimensions") {
		t.Error("chart page missing title")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := setupTestServer(t, "m")
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestShowConfig(t *testing.T) {
	s, _ := setupTestServer(t, "cm")
	rec := get(t, s, "/config")
	var cfg map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg["units"] != "cm" {
		t.Errorf("units = %v", cfg["units"])
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if rec.Code != http.StatusTeapot || len(lines) != 1 {
		t.Errorf("code %d, %d log lines", rec.Code, len(lines))
	}
	if got := statusCodeColor(200); !strings.Contains(got, "200") {
		t.Errorf("statusCodeColor(200) = %q", got)
	}
}
