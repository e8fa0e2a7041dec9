package metric

import (
	"math"

	"github.com/golang/geo/r2"
)

// circleEpsilon absorbs rounding when testing whether a point lies inside a
// candidate circle.
const circleEpsilon = 1e-9

// Circle is a planar circle.
type Circle struct {
	Center r2.Point
	Radius float64
}

// Contains reports whether p lies inside or on c, within circleEpsilon.
func (c Circle) Contains(p r2.Point) bool {
	return p.Sub(c.Center).Norm() <= c.Radius+circleEpsilon*math.Max(1, c.Radius)
}

// MinEnclosingCircle returns the smallest circle containing every point.
//
// This is Welzl's incremental algorithm without the random shuffle: the
// result is exact and only depends on the point set, while the running time
// is worst-case cubic. Inputs here are hull vertices, which keeps n small.
func MinEnclosingCircle(pts []r2.Point) Circle {
	if len(pts) == 0 {
		return Circle{}
	}
	c := Circle{Center: pts[0]}
	for i := 1; i < len(pts); i++ {
		if c.Contains(pts[i]) {
			continue
		}
		c = Circle{Center: pts[i]}
		for j := 0; j < i; j++ {
			if c.Contains(pts[j]) {
				continue
			}
			c = circleFrom2(pts[i], pts[j])
			for k := 0; k < j; k++ {
				if !c.Contains(pts[k]) {
					c = circleFrom3(pts[i], pts[j], pts[k])
				}
			}
		}
	}
	return c
}

func circleFrom2(a, b r2.Point) Circle {
	center := a.Add(b).Mul(0.5)
	return Circle{Center: center, Radius: a.Sub(b).Norm() / 2}
}

// circleFrom3 returns the circumcircle of a, b, c. Collinear triples fall
// back to the circle on the farthest pair.
func circleFrom3(a, b, c r2.Point) Circle {
	ab := b.Sub(a)
	ac := c.Sub(a)
	d := 2 * ab.Cross(ac)
	if math.Abs(d) < 1e-12 {
		best := circleFrom2(a, b)
		for _, cand := range []Circle{circleFrom2(a, c), circleFrom2(b, c)} {
			if cand.Radius > best.Radius {
				best = cand
			}
		}
		return best
	}
	abSq := ab.Dot(ab)
	acSq := ac.Dot(ac)
	offset := r2.Point{
		X: (ac.Y*abSq - ab.Y*acSq) / d,
		Y: (ab.X*acSq - ac.X*abSq) / d,
	}
	return Circle{Center: a.Add(offset), Radius: offset.Norm()}
}
