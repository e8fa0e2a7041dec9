// Package metric computes per-tree structural measurements from filtered
// skeleton tips and mesh vertices: tree height, crown base height, crown
// depth, planar crown geometry and stem diameter at breast height.
//
// Every exported Compute* function returns a result record instead of an
// error so that one failing metric never blocks the others.
package metric

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// Default selection sizes for the height statistics.
const (
	DefaultTopN    = 5
	DefaultBottomN = 5
)

// TopN returns the min(n, len(pts)) highest points, highest first.
func TopN(pts []treemodel.Point3D, n int) ([]treemodel.Point3D, error) {
	if err := checkSelection(pts, n); err != nil {
		return nil, err
	}
	sorted := treemodel.SortByHeight(pts)
	k := min(n, len(sorted))
	out := make([]treemodel.Point3D, k)
	for i := 0; i < k; i++ {
		out[i] = sorted[len(sorted)-1-i]
	}
	return out, nil
}

// BottomN returns the min(n, len(pts)) lowest points, lowest first.
func BottomN(pts []treemodel.Point3D, n int) ([]treemodel.Point3D, error) {
	if err := checkSelection(pts, n); err != nil {
		return nil, err
	}
	sorted := treemodel.SortByHeight(pts)
	return sorted[:min(n, len(sorted))], nil
}

func checkSelection(pts []treemodel.Point3D, n int) error {
	if len(pts) == 0 {
		return fmt.Errorf("empty point set: %w", treemodel.ErrInvalidParameter)
	}
	if n <= 0 {
		return fmt.Errorf("selection size must be positive, got %d: %w", n, treemodel.ErrInvalidParameter)
	}
	return nil
}

func meanZ(pts []treemodel.Point3D) float64 {
	zs := make([]float64, len(pts))
	for i, p := range pts {
		zs[i] = p.Z
	}
	return stat.Mean(zs, nil)
}

// ComputeHeight estimates tree height as the mean Z of the topN highest points.
func ComputeHeight(pts []treemodel.Point3D, topN int) treemodel.HeightResult {
	res := treemodel.HeightResult{PointCount: len(pts)}
	top, err := TopN(pts, topN)
	if err != nil {
		res.Error, res.Kind = failure(err)
		return res
	}
	res.TreeHeight = meanZ(top)
	res.Success = true
	return res
}

// ComputeH0 estimates the crown base height as the mean Z of the bottomN
// lowest points.
func ComputeH0(pts []treemodel.Point3D, bottomN int) (float64, error) {
	bottom, err := BottomN(pts, bottomN)
	if err != nil {
		return 0, err
	}
	return meanZ(bottom), nil
}

// ComputeCrownDepth derives h0 from pts and reports treeHeight - h0. The
// depth is not clamped and may be negative.
func ComputeCrownDepth(pts []treemodel.Point3D, treeHeight float64, bottomN int) treemodel.CrownDepthResult {
	res := treemodel.CrownDepthResult{PointCount: len(pts)}
	if treeHeight <= 0 {
		res.Error, res.Kind = failure(fmt.Errorf("invalid tree height %g: %w", treeHeight, treemodel.ErrInvalidParameter))
		return res
	}
	h0, err := ComputeH0(pts, bottomN)
	if err != nil {
		res.Error, res.Kind = failure(err)
		return res
	}
	res.H0 = h0
	res.CrownDepth = treeHeight - h0
	res.Success = true
	return res
}

// failure converts an error into the message and kind stored on results.
func failure(err error) (string, treemodel.ErrorKind) {
	return err.Error(), treemodel.KindOf(err)
}
