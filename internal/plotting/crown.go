// Package plotting draws per-tree figures with gonum/plot.
package plotting

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"github.com/golang/geo/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/metric"
)

// CrownPlotSuffix is appended to the tree ID for the crown figure.
const CrownPlotSuffix = "_crown.png"

const circleSegments = 72

var (
	pointColor  = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	hullColor   = color.RGBA{R: 53, G: 183, B: 121, A: 255}
	circleColor = color.RGBA{R: 220, G: 80, B: 60, A: 255}
	rectColor   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
)

// CrownPlot builds a top-down figure of the crown: projected leaf points,
// convex hull, minimum enclosing circle and minimum-area rectangle. The
// circle and rectangle are omitted for a degenerate crown.
func CrownPlot(treeID string, g metric.CrownGeometry) (*plot.Plot, error) {
	if len(g.Points) == 0 {
		return nil, fmt.Errorf("crown for %s has no points", treeID)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - crown radius %.2f m, widths %.2f x %.2f m", treeID, g.Radius, g.MaxWidth, g.MinWidth)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	scatter, err := plotter.NewScatter(toXYs(g.Points))
	if err != nil {
		return nil, err
	}
	scatter.Color = pointColor
	scatter.Radius = vg.Points(2)
	p.Add(scatter)
	p.Legend.Add("leaves", scatter)

	if len(g.Hull) >= 3 {
		hull, err := plotter.NewLine(closed(g.Hull))
		if err != nil {
			return nil, err
		}
		hull.Color = hullColor
		hull.Width = vg.Points(1)
		p.Add(hull)
		p.Legend.Add("hull", hull)
	}

	if !g.Degenerate && g.Circle.Radius > 0 {
		circle, err := plotter.NewLine(circlePoints(g.Circle))
		if err != nil {
			return nil, err
		}
		circle.Color = circleColor
		circle.Width = vg.Points(1)
		p.Add(circle)
		p.Legend.Add(fmt.Sprintf("enclosing circle r=%.2f", g.Circle.Radius), circle)
	}

	if !g.Degenerate && g.Rect.Area > 0 {
		rect, err := plotter.NewLine(closed(g.Rect.Corners[:]))
		if err != nil {
			return nil, err
		}
		rect.Color = rectColor
		rect.Width = vg.Points(1)
		rect.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(rect)
		p.Legend.Add("min-area rectangle", rect)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	// Equal axis ranges keep the circle round.
	span := math.Max(p.X.Max-p.X.Min, p.Y.Max-p.Y.Min) / 2
	cx, cy := (p.X.Max+p.X.Min)/2, (p.Y.Max+p.Y.Min)/2
	p.X.Min, p.X.Max = cx-span, cx+span
	p.Y.Min, p.Y.Max = cy-span, cy+span
	return p, nil
}

// WriteCrownPlot saves the crown figure as "<tree>_crown.png" under dir.
func WriteCrownPlot(fsys fsutil.FileSystem, dir, treeID string, g metric.CrownGeometry) (string, error) {
	p, err := CrownPlot(treeID, g)
	if err != nil {
		return "", fmt.Errorf("failed to build crown plot: %w", err)
	}
	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("failed to render crown plot: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}
	path := filepath.Join(dir, fsutil.SanitizeName(treeID)+CrownPlotSuffix)
	w, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func toXYs(pts []r2.Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, p := range pts {
		xys[i] = plotter.XY{X: p.X, Y: p.Y}
	}
	return xys
}

func closed(pts []r2.Point) plotter.XYs {
	xys := toXYs(pts)
	if len(pts) > 0 {
		xys = append(xys, plotter.XY{X: pts[0].X, Y: pts[0].Y})
	}
	return xys
}

func circlePoints(c metric.Circle) plotter.XYs {
	xys := make(plotter.XYs, 0, circleSegments+1)
	for i := 0; i <= circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		xys = append(xys, plotter.XY{X: c.Center.X + c.Radius*math.Cos(a), Y: c.Center.Y + c.Radius*math.Sin(a)})
	}
	return xys
}
