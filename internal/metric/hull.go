package metric

import (
	"sort"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// ProjectXY drops Z from every point.
func ProjectXY(pts []treemodel.Point3D) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return out
}

// ConvexHull returns the hull of pts in counter-clockwise order using
// Andrew's monotone chain. Duplicate and collinear boundary points are
// dropped, so a hull of collinear input has at most two vertices.
func ConvexHull(pts []r2.Point) []r2.Point {
	sorted := make([]r2.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	uniq := sorted[:0]
	for i, p := range sorted {
		if i == 0 || p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return uniq
	}

	// turn > 0 means a counter-clockwise turn o->a->b.
	turn := func(o, a, b r2.Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}

	hull := make([]r2.Point, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// Last point repeats the first.
	hull = hull[:len(hull)-1]
	if len(hull) < 3 {
		// All input was collinear: keep the two extremes.
		return []r2.Point{uniq[0], uniq[len(uniq)-1]}
	}
	return hull
}
