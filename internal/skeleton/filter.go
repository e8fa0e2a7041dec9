package skeleton

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// DefaultFilterPercentage is the fraction used for the height tolerance and
// the neighbourhood size.
const DefaultFilterPercentage = 0.15

// AdaptiveFilter keeps leaf nodes whose height is consistent with the
// tallest of their nearest neighbours.
type AdaptiveFilter struct {
	// Percentage in (0, 1]. Scales the height tolerance (H*p), the number
	// of neighbours (L*p) and how many of the tallest neighbours are
	// averaged (n*p).
	Percentage float64
}

// DefaultAdaptiveFilter returns a filter with Percentage = 0.15.
func DefaultAdaptiveFilter() AdaptiveFilter {
	return AdaptiveFilter{Percentage: DefaultFilterPercentage}
}

// FilterResult is the accepted point set plus the thresholds that produced it.
type FilterResult struct {
	Points          []treemodel.Point3D
	Accepted        []int // original vertex indices of accepted leaves
	HeightTolerance float64
	Neighbors       int
	TopN            int
}

// Rejected returns how many leaves were dropped from total.
func (r FilterResult) Rejected(total int) int {
	return total - len(r.Points)
}

// Filter applies the neighbourhood height test to leaves. skeletonHeight is
// the height range of the whole skeleton, not just of its leaves.
func (f AdaptiveFilter) Filter(leaves treemodel.LeafNodeSet, skeletonHeight float64) (FilterResult, error) {
	p := f.Percentage
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return FilterResult{}, fmt.Errorf("filter percentage %v outside (0, 1]: %w", p, treemodel.ErrInvalidParameter)
	}
	if len(leaves) == 0 {
		return FilterResult{}, fmt.Errorf("no leaf nodes found: %w", treemodel.ErrInputMissing)
	}

	total := len(leaves)
	res := FilterResult{
		HeightTolerance: skeletonHeight * p,
		Neighbors:       roundAtLeastOne(float64(total) * p),
	}
	res.TopN = roundAtLeastOne(float64(res.Neighbors) * p)

	// A single leaf has nobody to disagree with.
	if total == 1 {
		res.Points = leaves.Points()
		res.Accepted = []int{leaves[0].OriginalIndex}
		return res, nil
	}

	positions := make([]r3.Vector, total)
	for i, l := range leaves {
		positions[i] = r3.Vector{X: l.Position.X, Y: l.Position.Y, Z: l.Position.Z}
	}

	cands := make([]neighbor, 0, total-1)
	heights := make([]float64, 0, res.Neighbors)
	for i, leaf := range leaves {
		cands = nearestNeighbors(cands[:0], leaves, positions, i)
		if len(cands) > res.Neighbors {
			cands = cands[:res.Neighbors]
		}

		heights = heights[:0]
		for _, c := range cands {
			heights = append(heights, leaves[c.idx].Height)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(heights)))
		k := res.TopN
		if k > len(heights) {
			k = len(heights)
		}
		neighborHeight := stat.Mean(heights[:k], nil)

		if math.Abs(neighborHeight-leaf.Height) <= res.HeightTolerance {
			pt := leaf.Position
			pt.Radius = leaf.Radius
			res.Points = append(res.Points, pt)
			res.Accepted = append(res.Accepted, leaf.OriginalIndex)
		}
	}
	return res, nil
}

// FilterLeafNodes runs an AdaptiveFilter with the given percentage and
// returns only the accepted points.
func FilterLeafNodes(leaves treemodel.LeafNodeSet, skeletonHeight, percentage float64) ([]treemodel.Point3D, error) {
	res, err := AdaptiveFilter{Percentage: percentage}.Filter(leaves, skeletonHeight)
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}

type neighbor struct {
	idx  int
	dist float64
	orig int
}

// nearestNeighbors fills dst with every leaf other than i, ordered by
// distance to i and then by original vertex index.
func nearestNeighbors(dst []neighbor, leaves treemodel.LeafNodeSet, positions []r3.Vector, i int) []neighbor {
	for j := range leaves {
		if j == i {
			continue
		}
		dst = append(dst, neighbor{
			idx:  j,
			dist: positions[i].Distance(positions[j]),
			orig: leaves[j].OriginalIndex,
		})
	}
	sort.Slice(dst, func(a, b int) bool {
		if dst[a].dist != dst[b].dist {
			return dst[a].dist < dst[b].dist
		}
		return dst[a].orig < dst[b].orig
	})
	return dst
}

func roundAtLeastOne(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
