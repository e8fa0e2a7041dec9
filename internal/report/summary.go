package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/units"
)

// CSVHeader lists the summary columns in order.
var CSVHeader = []string{
	"Tree_ID", "Processing_Time", "Height", "H0_Crown_Base", "Crown_Depth", "DBH_cm", "DBH_Method",
	"Crown_Radius", "Crown_Diameter", "Max_Crown_Width", "Min_Crown_Width", "Aspect_Ratio",
	"Volume_m3", "Surface_Area_m2", "Mesh_Closed",
	"Has_Skeleton", "Total_Leaf_Nodes", "Filtered_Leaf_Nodes",
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// WriteSummaryCSV writes one line per row after the header.
func WriteSummaryCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.TreeID,
			r.ProcessingTime.Format(time.DateTime),
			formatFloat(r.Height, 3),
			formatFloat(r.H0, 3),
			formatFloat(r.CrownDepth, 3),
			formatFloat(r.DBHCm, 2),
			r.DBHMethod,
			formatFloat(r.CrownRadius, 3),
			formatFloat(r.CrownDiameter, 3),
			formatFloat(r.MaxCrownWidth, 3),
			formatFloat(r.MinCrownWidth, 3),
			formatFloat(r.AspectRatio, 2),
			formatFloat(r.VolumeM3, 3),
			formatFloat(r.SurfaceAreaM2, 3),
			yesNo(r.MeshClosed),
			yesNo(r.HasSkeleton),
			strconv.Itoa(r.LeafNodesTotal),
			strconv.Itoa(r.LeafNodesFiltered),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSVFile writes "summary_<timestamp>.csv" under dir and
// returns its path.
func WriteSummaryCSVFile(fsys fsutil.FileSystem, dir string, rows []Row, ts time.Time) (string, error) {
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, rows); err != nil {
		return "", fmt.Errorf("failed to encode summary CSV: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, "summary_"+ts.Format(TimestampLayout)+".csv")
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Averages summarises a batch. Height, h0 and crown depth average over
// every row; DBH, crown and mesh figures only over rows where they are
// positive, since zero means the metric was not computed.
type Averages struct {
	Trees         int
	Height        float64
	HeightStdDev  float64
	MinHeight     float64
	MaxHeight     float64
	H0            float64
	CrownDepth    float64
	DBHCm         float64
	DBHCount      int
	CrownDiameter float64
	MaxCrownWidth float64
	AspectRatio   float64
	CrownCount    int
	VolumeM3      float64
	SurfaceAreaM2 float64
	VolumeCount   int
	LeafNodes     float64
}

// ComputeAverages returns the batch averages. An empty input gives zeros.
func ComputeAverages(rows []Row) Averages {
	a := Averages{Trees: len(rows)}
	if len(rows) == 0 {
		return a
	}

	var heights, h0s, depths, leaves, dbhs []float64
	var crowns, widths, aspects, volumes, areas []float64
	for _, r := range rows {
		heights = append(heights, r.Height)
		h0s = append(h0s, r.H0)
		depths = append(depths, r.CrownDepth)
		leaves = append(leaves, float64(r.LeafNodesFiltered))
		if r.DBHCm > 0 {
			dbhs = append(dbhs, r.DBHCm)
		}
		if r.CrownDiameter > 0 {
			crowns = append(crowns, r.CrownDiameter)
			widths = append(widths, r.MaxCrownWidth)
			aspects = append(aspects, r.AspectRatio)
		}
		if r.VolumeM3 > 0 {
			volumes = append(volumes, r.VolumeM3)
			areas = append(areas, r.SurfaceAreaM2)
		}
	}

	a.Height, a.HeightStdDev = stat.MeanStdDev(heights, nil)
	if len(heights) < 2 {
		a.HeightStdDev = 0
	}
	a.MinHeight, a.MaxHeight = floats.Min(heights), floats.Max(heights)
	a.H0 = stat.Mean(h0s, nil)
	a.CrownDepth = stat.Mean(depths, nil)
	a.LeafNodes = stat.Mean(leaves, nil)
	a.DBHCm, a.DBHCount = meanOrZero(dbhs), len(dbhs)
	a.CrownDiameter, a.CrownCount = meanOrZero(crowns), len(crowns)
	a.MaxCrownWidth = meanOrZero(widths)
	a.AspectRatio = meanOrZero(aspects)
	a.VolumeM3, a.VolumeCount = meanOrZero(volumes), len(volumes)
	a.SurfaceAreaM2 = meanOrZero(areas)
	return a
}

func meanOrZero(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

// WriteSummaryTable prints the console summary. Heights and crown widths
// are shown in unit; DBH stays in centimetres. The averages line is only
// printed for more than one tree.
func WriteSummaryTable(w io.Writer, rows []Row, unit string) {
	if !units.IsValid(unit) {
		unit = units.Metres
	}
	conv := func(v float64) float64 { return units.ConvertLength(v, unit) }
	rule := strings.Repeat("-", 134)

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-20s%-12s%-12s%-12s%-10s%-14s%-14s%-8s%-12s%-12s%-8s\n",
		"Tree", "Height("+unit+")", "h0("+unit+")", "Depth("+unit+")", "DBH(cm)",
		"Crown("+unit+")", "MaxW("+unit+")", "Aspect", "Vol(m3)", "Area(m2)", "Leaves")
	fmt.Fprintln(w, rule)
	for _, r := range rows {
		fmt.Fprintf(w, "%-20s%-12.2f%-12.2f%-12.2f%-10.2f%-14.2f%-14.2f%-8.2f%-12.3f%-12.2f%-8d\n",
			r.TreeID, conv(r.Height), conv(r.H0), conv(r.CrownDepth), r.DBHCm,
			conv(r.CrownDiameter), conv(r.MaxCrownWidth), r.AspectRatio, r.VolumeM3, r.SurfaceAreaM2,
			r.LeafNodesFiltered)
	}
	fmt.Fprintln(w, rule)

	if len(rows) > 1 {
		a := ComputeAverages(rows)
		fmt.Fprintf(w, "%-20s%-12.2f%-12.2f%-12.2f%-10.2f%-14.2f%-14.2f%-8.2f%-12.3f%-12.2f%-8.0f\n",
			"Average:", conv(a.Height), conv(a.H0), conv(a.CrownDepth), a.DBHCm,
			conv(a.CrownDiameter), conv(a.MaxCrownWidth), a.AspectRatio, a.VolumeM3, a.SurfaceAreaM2,
			a.LeafNodes)
		fmt.Fprintf(w, "Height range %.2f-%.2f %s, std dev %.2f %s\n",
			conv(a.MinHeight), conv(a.MaxHeight), unit, conv(a.HeightStdDev), unit)
	}
}
