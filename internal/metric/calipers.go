package metric

import (
	"math"

	"github.com/golang/geo/r2"
)

// minEdgeLength is the shortest hull edge that still defines a direction.
const minEdgeLength = 1e-10

// Rect is an oriented rectangle from the rotating-calipers search. Width
// is measured along Axis and Height along its perpendicular.
type Rect struct {
	Axis    r2.Point
	Width   float64
	Height  float64
	Area    float64
	Corners [4]r2.Point
}

// MinAreaRect finds the minimum-area bounding rectangle of a convex hull
// given in boundary order. One side of the optimum is collinear with a hull
// edge, so every edge direction is tried. ok is false when no edge is long
// enough to define a direction.
//
// Algorithm:
//  1. Take the unit direction of each hull edge and its perpendicular
//  2. Project every hull vertex onto both axes
//  3. The extents along each axis give width and height
//  4. Keep the first edge with the strictly smallest area
func MinAreaRect(hull []r2.Point) (rect Rect, ok bool) {
	k := len(hull)
	bestArea := math.MaxFloat64
	for i := 0; i < k; i++ {
		edge := hull[(i+1)%k].Sub(hull[i])
		if edge.Norm() < minEdgeLength {
			continue
		}
		axis := edge.Normalize()
		// Perpendicular vector is [-axis.Y, axis.X]
		perp := axis.Ortho()

		minAlong, maxAlong := math.MaxFloat64, -math.MaxFloat64
		minPerp, maxPerp := math.MaxFloat64, -math.MaxFloat64
		for _, p := range hull {
			projAlong := p.Dot(axis)
			if projAlong < minAlong {
				minAlong = projAlong
			}
			if projAlong > maxAlong {
				maxAlong = projAlong
			}
			projPerp := p.Dot(perp)
			if projPerp < minPerp {
				minPerp = projPerp
			}
			if projPerp > maxPerp {
				maxPerp = projPerp
			}
		}

		width := maxAlong - minAlong
		height := maxPerp - minPerp
		area := width * height
		if area < bestArea {
			bestArea = area
			ok = true
			rect = Rect{
				Axis:   axis,
				Width:  width,
				Height: height,
				Area:   area,
				Corners: [4]r2.Point{
					axis.Mul(minAlong).Add(perp.Mul(minPerp)),
					axis.Mul(maxAlong).Add(perp.Mul(minPerp)),
					axis.Mul(maxAlong).Add(perp.Mul(maxPerp)),
					axis.Mul(minAlong).Add(perp.Mul(maxPerp)),
				},
			}
		}
	}
	return rect, ok
}
