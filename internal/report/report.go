// Package report renders tree results as per-tree JSON, a summary CSV, a
// console table and an HTML chart.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/pipeline"
	"github.com/banshee-data/arbor.report/internal/treemodel"
	"github.com/banshee-data/arbor.report/internal/version"
)

// Software identifies the producer in per-tree reports.
const Software = "arbor.report"

// TimestampLayout is used in report file names.
const TimestampLayout = "20060102_150405"

// Row is the flat per-tree record shared by the CSV, the console table and
// the chart. Lengths are metres, DBH is centimetres. A metric that failed
// is zero.
type Row struct {
	TreeID            string
	ProcessingTime    time.Time
	Height            float64
	H0                float64
	CrownDepth        float64
	DBHCm             float64
	DBHMethod         string
	CrownRadius       float64
	CrownDiameter     float64
	MaxCrownWidth     float64
	MinCrownWidth     float64
	AspectRatio       float64
	VolumeM3          float64
	SurfaceAreaM2     float64
	MeshClosed        bool
	HasSkeleton       bool
	LeafNodesTotal    int
	LeafNodesFiltered int
}

// RowFromTree flattens a tree result.
func RowFromTree(t *pipeline.TreeResult) Row {
	r := Row{
		TreeID:            t.TreeID,
		ProcessingTime:    t.ProcessedAt,
		HasSkeleton:       t.HasSkeleton,
		LeafNodesTotal:    t.LeafNodesTotal,
		LeafNodesFiltered: t.LeafNodesFiltered,
		DBHMethod:         t.DBH.MethodUsed,
	}
	if t.Height.Success {
		r.Height = t.Height.TreeHeight
	}
	if t.CrownDepth.Success {
		r.H0 = t.CrownDepth.H0
		r.CrownDepth = t.CrownDepth.CrownDepth
	}
	if t.DBH.Success {
		r.DBHCm = t.DBH.DBHCm
	}
	if r.DBHMethod == "" {
		r.DBHMethod = treemodel.MethodNotComputed
	}
	if t.Crown.Success {
		r.CrownRadius = t.Crown.CrownRadius
		r.CrownDiameter = t.Crown.CrownDiameter()
		r.MaxCrownWidth = t.Crown.MaxWidth
		r.MinCrownWidth = t.Crown.MinWidth
		r.AspectRatio = t.Crown.AspectRatio
	}
	if t.Mesh.Success {
		r.VolumeM3 = t.Mesh.VolumeM3
		r.SurfaceAreaM2 = t.Mesh.SurfaceAreaM2
		r.MeshClosed = t.Mesh.Closed
	}
	return r
}

// Rows flattens the successful trees, keeping their order.
func Rows(trees []*pipeline.TreeResult) []Row {
	rows := make([]Row, 0, len(trees))
	for _, t := range trees {
		if t.OK() {
			rows = append(rows, RowFromTree(t))
		}
	}
	return rows
}

// TreeReport is the per-tree JSON document.
type TreeReport struct {
	TreeInfo     TreeInfo     `json:"tree_info"`
	Metrics      Metrics      `json:"metrics"`
	SkeletonInfo SkeletonInfo `json:"skeleton_info"`
}

type TreeInfo struct {
	ID             string `json:"id"`
	RunID          string `json:"run_id,omitempty"`
	ProcessingTime string `json:"processing_time"`
	Software       string `json:"software"`
}

type Metrics struct {
	Height      float64      `json:"height"`
	H0CrownBase float64      `json:"h0_crown_base"`
	CrownDepth  float64      `json:"crown_depth"`
	DBH         DBHMetric    `json:"dbh"`
	Crown       CrownMetric  `json:"crown"`
	Volume      VolumeMetric `json:"volume"`
}

type DBHMetric struct {
	ValueCm float64 `json:"value_cm"`
	Method  string  `json:"method"`
}

type CrownMetric struct {
	Radius      float64 `json:"radius"`
	Diameter    float64 `json:"diameter"`
	MaxWidth    float64 `json:"max_width"`
	MinWidth    float64 `json:"min_width"`
	AspectRatio float64 `json:"aspect_ratio"`
}

type VolumeMetric struct {
	ValueM3       float64 `json:"value_m3"`
	SurfaceAreaM2 float64 `json:"surface_area_m2"`
	MeshClosed    bool    `json:"mesh_closed"`
}

type SkeletonInfo struct {
	HasData           bool `json:"has_data"`
	TotalLeafNodes    int  `json:"total_leaf_nodes"`
	FilteredLeafNodes int  `json:"filtered_leaf_nodes"`
}

// NewTreeReport builds the JSON document for one row. Lengths are rounded
// to millimetres, DBH and ratios to two decimals.
func NewTreeReport(r Row, runID string) TreeReport {
	return TreeReport{
		TreeInfo: TreeInfo{
			ID:             r.TreeID,
			RunID:          runID,
			ProcessingTime: r.ProcessingTime.Format(time.DateTime),
			Software:       Software + " " + version.Version,
		},
		Metrics: Metrics{
			Height:      round(r.Height, 3),
			H0CrownBase: round(r.H0, 3),
			CrownDepth:  round(r.CrownDepth, 3),
			DBH:         DBHMetric{ValueCm: round(r.DBHCm, 2), Method: r.DBHMethod},
			Crown: CrownMetric{
				Radius:      round(r.CrownRadius, 3),
				Diameter:    round(r.CrownDiameter, 3),
				MaxWidth:    round(r.MaxCrownWidth, 3),
				MinWidth:    round(r.MinCrownWidth, 3),
				AspectRatio: round(r.AspectRatio, 2),
			},
			Volume: VolumeMetric{
				ValueM3:       round(r.VolumeM3, 3),
				SurfaceAreaM2: round(r.SurfaceAreaM2, 3),
				MeshClosed:    r.MeshClosed,
			},
		},
		SkeletonInfo: SkeletonInfo{
			HasData:           r.HasSkeleton,
			TotalLeafNodes:    r.LeafNodesTotal,
			FilteredLeafNodes: r.LeafNodesFiltered,
		},
	}
}

// WriteTreeJSON writes "<tree>_<timestamp>.json" under dir and returns its
// path.
func WriteTreeJSON(fsys fsutil.FileSystem, dir string, r Row, runID string, ts time.Time) (string, error) {
	data, err := json.MarshalIndent(NewTreeReport(r, runID), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report for %s: %w", r.TreeID, err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", fsutil.SanitizeName(r.TreeID), ts.Format(TimestampLayout)))
	if err := fsys.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
