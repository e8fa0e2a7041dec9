package metric

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// CrownGeometry is the full planar crown description. The scalar fields
// feed CrownRadiusResult; Hull, Circle and Rect are kept for plotting.
type CrownGeometry struct {
	Points      []r2.Point
	Hull        []r2.Point
	Circle      Circle
	Rect        Rect
	Bounds      r2.Rect
	Radius      float64
	MaxWidth    float64
	MinWidth    float64
	AspectRatio float64
	Degenerate  bool
}

// EstimateCrown projects pts onto the XY plane and measures the crown.
//
// When the hull has fewer than three vertices the crown is measured on the
// axis-aligned bounding box instead: radius = (wx + wy) / 4.
func EstimateCrown(pts []treemodel.Point3D) (CrownGeometry, error) {
	if len(pts) == 0 {
		return CrownGeometry{}, fmt.Errorf("empty point set: %w", treemodel.ErrInputMissing)
	}
	g := CrownGeometry{Points: ProjectXY(pts)}
	g.Bounds = r2.RectFromPoints(g.Points...)
	g.Hull = ConvexHull(g.Points)

	if len(g.Hull) < 3 {
		size := g.Bounds.Size()
		g.Degenerate = true
		g.Radius = (size.X + size.Y) / 4
		g.MaxWidth = math.Max(size.X, size.Y)
		g.MinWidth = math.Min(size.X, size.Y)
		g.AspectRatio = aspectRatio(g.MaxWidth, g.MinWidth)
		return g, nil
	}

	g.Circle = MinEnclosingCircle(g.Hull)
	g.Radius = g.Circle.Radius

	rect, ok := MinAreaRect(g.Hull)
	if ok {
		g.Rect = rect
		g.MaxWidth = math.Max(rect.Width, rect.Height)
		g.MinWidth = math.Min(rect.Width, rect.Height)
	}
	g.AspectRatio = aspectRatio(g.MaxWidth, g.MinWidth)
	return g, nil
}

func aspectRatio(maxWidth, minWidth float64) float64 {
	if minWidth > 0 {
		return maxWidth / minWidth
	}
	return 1.0
}

// Result converts g into its result record.
func (g CrownGeometry) Result() treemodel.CrownRadiusResult {
	return treemodel.CrownRadiusResult{
		Success:     true,
		CrownRadius: g.Radius,
		MaxWidth:    g.MaxWidth,
		MinWidth:    g.MinWidth,
		AspectRatio: g.AspectRatio,
		TotalPoints: len(g.Points),
		Degenerate:  g.Degenerate,
	}
}

// ComputeCrownRadius wraps EstimateCrown into a result record.
func ComputeCrownRadius(pts []treemodel.Point3D) treemodel.CrownRadiusResult {
	g, err := EstimateCrown(pts)
	if err != nil {
		res := treemodel.CrownRadiusResult{TotalPoints: len(pts)}
		res.Error, res.Kind = failure(err)
		return res
	}
	return g.Result()
}
