package metric

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

func planar(xy ...float64) []treemodel.Point3D {
	pts := make([]treemodel.Point3D, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		pts = append(pts, treemodel.NewPoint3D(xy[i], xy[i+1], 5))
	}
	return pts
}

func TestConvexHull(t *testing.T) {
	t.Parallel()

	t.Run("square with interior and edge points", func(t *testing.T) {
		t.Parallel()
		pts := ProjectXY(planar(0, 0, 1, 0, 1, 1, 0, 1, 0.5, 0.5, 0.5, 0, 1, 1))
		hull := ConvexHull(pts)
		assert.ElementsMatch(t, []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}, hull)

		// Counter-clockwise: positive signed area.
		var area float64
		for i := range hull {
			area += hull[i].Cross(hull[(i+1)%len(hull)])
		}
		assert.Greater(t, area, 0.0)
	})

	t.Run("collinear keeps extremes", func(t *testing.T) {
		t.Parallel()
		hull := ConvexHull(ProjectXY(planar(0, 0, 1, 1, 3, 3, 2, 2)))
		assert.Equal(t, []r2.Point{{X: 0, Y: 0}, {X: 3, Y: 3}}, hull)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		t.Parallel()
		hull := ConvexHull(ProjectXY(planar(1, 1, 1, 1, 1, 1)))
		assert.Len(t, hull, 1)
	})
}

func TestMinEnclosingCircle(t *testing.T) {
	t.Parallel()

	t.Run("equilateral triangle", func(t *testing.T) {
		t.Parallel()
		h := math.Sqrt(3) / 2
		c := MinEnclosingCircle([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0.5, Y: h}})
		assert.InDelta(t, 1/math.Sqrt(3), c.Radius, 1e-9)
	})

	t.Run("obtuse triangle uses longest side", func(t *testing.T) {
		t.Parallel()
		c := MinEnclosingCircle([]r2.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 2, Y: 0.5}})
		assert.InDelta(t, 2.0, c.Radius, 1e-9)
		assert.InDelta(t, 2.0, c.Center.X, 1e-9)
		assert.InDelta(t, 0.0, c.Center.Y, 1e-9)
	})

	t.Run("contains all points", func(t *testing.T) {
		t.Parallel()
		pts := []r2.Point{{X: 3, Y: 1}, {X: -2, Y: 4}, {X: 0, Y: -3}, {X: 5, Y: 5}, {X: 1, Y: 1}}
		c := MinEnclosingCircle(pts)
		for _, p := range pts {
			assert.True(t, c.Contains(p), "point %v outside %+v", p, c)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Circle{}, MinEnclosingCircle(nil))
	})
}

func TestMinAreaRect_RotatedRectangle(t *testing.T) {
	theta := math.Pi / 6
	u := r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}
	v := u.Ortho()
	hull := []r2.Point{
		{},
		u.Mul(4),
		u.Mul(4).Add(v.Mul(2)),
		v.Mul(2),
	}
	rect, ok := MinAreaRect(hull)
	require.True(t, ok)
	assert.InDelta(t, 8.0, rect.Area, 1e-9)
	assert.InDelta(t, 4.0, math.Max(rect.Width, rect.Height), 1e-9)
	assert.InDelta(t, 2.0, math.Min(rect.Width, rect.Height), 1e-9)
}

func TestMinAreaRect_SkipsZeroLengthEdges(t *testing.T) {
	_, ok := MinAreaRect([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}})
	assert.False(t, ok)
}

func TestComputeCrownRadius_UnitSquare(t *testing.T) {
	res := ComputeCrownRadius(planar(0, 0, 1, 0, 1, 1, 0, 1))
	require.True(t, res.Success, res.Error)
	assert.InDelta(t, math.Sqrt2/2, res.CrownRadius, 1e-9)
	assert.InDelta(t, 1.0, res.MaxWidth, 1e-9)
	assert.InDelta(t, 1.0, res.MinWidth, 1e-9)
	assert.InDelta(t, 1.0, res.AspectRatio, 1e-9)
	assert.Equal(t, 4, res.TotalPoints)
	assert.False(t, res.Degenerate)
}

func TestComputeCrownRadius_CollinearFallback(t *testing.T) {
	res := ComputeCrownRadius(planar(0, 0, 2, 0))
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Degenerate)
	assert.InDelta(t, 0.5, res.CrownRadius, 1e-12)
	assert.InDelta(t, 2.0, res.MaxWidth, 1e-12)
	assert.InDelta(t, 0.0, res.MinWidth, 1e-12)
	assert.Equal(t, 1.0, res.AspectRatio)
}

func TestComputeCrownRadius_SinglePoint(t *testing.T) {
	res := ComputeCrownRadius(planar(3, 4))
	require.True(t, res.Success)
	assert.Equal(t, 0.0, res.CrownRadius)
	assert.Equal(t, 1.0, res.AspectRatio)
}

func TestComputeCrownRadius_Empty(t *testing.T) {
	res := ComputeCrownRadius(nil)
	assert.False(t, res.Success)
	assert.Equal(t, treemodel.KindInputMissing, res.Kind)
}

func TestEstimateCrown_RectangleAspect(t *testing.T) {
	g, err := EstimateCrown(planar(0, 0, 4, 0, 4, 2, 0, 2, 2, 1))
	require.NoError(t, err)
	assert.Len(t, g.Hull, 4)
	assert.InDelta(t, math.Sqrt(5), g.Radius, 1e-9)
	assert.InDelta(t, 2.0, g.AspectRatio, 1e-9)
	assert.InDelta(t, 4.0, g.Bounds.Size().X, 1e-12)
}
