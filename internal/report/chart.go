package report

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/arbor.report/internal/fsutil"
)

// ChartFileName is the summary chart written next to the CSV.
const ChartFileName = "summary_chart.html"

// WriteSummaryChart renders an HTML page with per-tree bars for height and
// crown diameter, a DBH bar chart and a DBH against height scatter.
func WriteSummaryChart(w io.Writer, rows []Row) error {
	ids := make([]string, 0, len(rows))
	heights := make([]opts.BarData, 0, len(rows))
	crowns := make([]opts.BarData, 0, len(rows))
	dbhs := make([]opts.BarData, 0, len(rows))
	scatter := make([]opts.ScatterData, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.TreeID)
		heights = append(heights, opts.BarData{Value: round(r.Height, 2)})
		crowns = append(crowns, opts.BarData{Value: round(r.CrownDiameter, 2)})
		dbhs = append(dbhs, opts.BarData{Value: round(r.DBHCm, 2)})
		if r.DBHCm > 0 {
			scatter = append(scatter, opts.ScatterData{Value: []interface{}{round(r.Height, 2), round(r.DBHCm, 2)}, Name: r.TreeID})
		}
	}

	size := charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"})
	tooltip := charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)})

	dims := charts.NewBar()
	dims.SetGlobalOptions(
		size,
		charts.WithTitleOpts(opts.Title{Title: "Tree dimensions", Subtitle: fmt.Sprintf("trees=%d", len(rows))}),
		tooltip,
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	dims.SetXAxis(ids).
		AddSeries("height", heights, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("crown diameter", crowns)

	stem := charts.NewBar()
	stem.SetGlobalOptions(
		size,
		charts.WithTitleOpts(opts.Title{Title: "Diameter at breast height"}),
		tooltip,
		charts.WithYAxisOpts(opts.YAxis{Name: "cm"}),
	)
	stem.SetXAxis(ids).
		AddSeries("DBH", dbhs, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	allometry := charts.NewScatter()
	allometry.SetGlobalOptions(
		size,
		charts.WithTitleOpts(opts.Title{Title: "DBH against height", Subtitle: fmt.Sprintf("trees with DBH=%d", len(scatter))}),
		tooltip,
		charts.WithXAxisOpts(opts.XAxis{Name: "Height (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "DBH (cm)", NameLocation: "middle", NameGap: 30}),
	)
	allometry.AddSeries("trees", scatter, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	page := components.NewPage()
	page.AddCharts(dims, stem, allometry)
	return page.Render(w)
}

// WriteSummaryChartFile renders the chart to dir/ChartFileName.
func WriteSummaryChartFile(fsys fsutil.FileSystem, dir string, rows []Row) (string, error) {
	var buf bytes.Buffer
	if err := WriteSummaryChart(&buf, rows); err != nil {
		return "", fmt.Errorf("render error: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, ChartFileName)
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
