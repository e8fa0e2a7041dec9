// Package treemodel holds the shared value types that flow between the
// skeleton, metric and pipeline packages: points, skeleton graphs, leaf
// nodes and the per-metric result records.
package treemodel

import (
	"fmt"
	"sort"
)

// DefaultRadius is assigned to points and skeleton vertices whose source
// carries no radius attribute.
const DefaultRadius = 1.0

// Point3D is a 3D position (metres) with an optional per-point radius.
type Point3D struct {
	X      float64
	Y      float64
	Z      float64
	Radius float64
}

// NewPoint3D returns a point with the default radius.
func NewPoint3D(x, y, z float64) Point3D {
	return Point3D{X: x, Y: y, Z: z, Radius: DefaultRadius}
}

// ByHeight sorts points by ascending Z.
type ByHeight []Point3D

func (p ByHeight) Len() int           { return len(p) }
func (p ByHeight) Less(i, j int) bool { return p[i].Z < p[j].Z }
func (p ByHeight) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// SortByHeight returns a copy of pts ordered by ascending Z. The input is
// not modified. Equal heights keep their input order.
func SortByHeight(pts []Point3D) []Point3D {
	out := make([]Point3D, len(pts))
	copy(out, pts)
	sort.Stable(ByHeight(out))
	return out
}

// Edge is an undirected skeleton edge between two vertex indices.
type Edge [2]int

// SkeletonGraph is the curve skeleton of a tree as produced by the
// reconstruction step. Vertex radii live on the points themselves.
type SkeletonGraph struct {
	Vertices []Point3D
	Edges    []Edge
}

// Validate checks that every edge references an existing vertex.
func (g *SkeletonGraph) Validate() error {
	n := len(g.Vertices)
	for i, e := range g.Edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return fmt.Errorf("edge %d (%d, %d) out of range for %d vertices: %w",
				i, e[0], e[1], n, ErrInvalidParameter)
		}
	}
	return nil
}

// HeightRange returns max Z minus min Z over all vertices, or 0 for an
// empty graph.
func (g *SkeletonGraph) HeightRange() float64 {
	if len(g.Vertices) == 0 {
		return 0
	}
	lo, hi := g.Vertices[0].Z, g.Vertices[0].Z
	for _, v := range g.Vertices[1:] {
		if v.Z < lo {
			lo = v.Z
		}
		if v.Z > hi {
			hi = v.Z
		}
	}
	return hi - lo
}

// LeafNode is a degree-1 skeleton vertex.
type LeafNode struct {
	Position      Point3D
	Radius        float64
	OriginalIndex int
	Height        float64
}

// LeafNodeSet lists leaves in skeleton vertex order.
type LeafNodeSet []LeafNode

// Points returns the leaf positions with their radii.
func (s LeafNodeSet) Points() []Point3D {
	out := make([]Point3D, len(s))
	for i, l := range s {
		p := l.Position
		p.Radius = l.Radius
		out[i] = p
	}
	return out
}
