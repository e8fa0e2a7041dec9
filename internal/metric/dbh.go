package metric

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/arbor.report/internal/treemodel"
	"github.com/banshee-data/arbor.report/internal/units"
)

// DBHParams holds the stem measurement constants. All lengths are metres.
type DBHParams struct {
	SliceTolerance  float64 // half-thickness of a height slice
	ClusterDistance float64 // planar distance joining points to one stem
	BreastHeight    float64 // 1.3 m reference height
	MinCrownBase    float64 // below this h0 no estimate is attempted
	PreferredPOM    float64 // taper method measures here when h0 allows
	FallbackPOM     float64 // taper method retries here on a fork
	TaperIntercept  float64
	TaperSlopePerCm float64
}

// DefaultDBHParams returns the standard constants.
func DefaultDBHParams() DBHParams {
	return DBHParams{
		SliceTolerance:  0.05,
		ClusterDistance: 0.3,
		BreastHeight:    1.3,
		MinCrownBase:    0.7,
		PreferredPOM:    1.0,
		FallbackPOM:     0.7,
		TaperIntercept:  -0.156,
		TaperSlopePerCm: 0.048,
	}
}

// SliceAtHeight returns the points with |z - height| <= tolerance, in
// input order.
func SliceAtHeight(pts []treemodel.Point3D, height, tolerance float64) []treemodel.Point3D {
	var out []treemodel.Point3D
	for _, p := range pts {
		if math.Abs(p.Z-height) <= tolerance {
			out = append(out, p)
		}
	}
	return out
}

// CountStems counts stems in a slice with a single greedy pass: each
// unvisited point opens a stem and marks every point closer than distance
// (planar) as visited. Clusters are not merged transitively.
func CountStems(slice []treemodel.Point3D, distance float64) int {
	visited := make([]bool, len(slice))
	stems := 0
	for i := range slice {
		if visited[i] {
			continue
		}
		stems++
		visited[i] = true
		pi := r2.Point{X: slice[i].X, Y: slice[i].Y}
		for j := range slice {
			if visited[j] {
				continue
			}
			if pi.Sub(r2.Point{X: slice[j].X, Y: slice[j].Y}).Norm() < distance {
				visited[j] = true
			}
		}
	}
	return stems
}

// SliceDiameter is the largest planar distance between any two points.
func SliceDiameter(slice []treemodel.Point3D) float64 {
	pts := ProjectXY(slice)
	var best float64
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			if d := pts[i].Sub(pts[j]).Norm(); d > best {
				best = d
			}
		}
	}
	return best
}

// SyntheticDBH measures at breast height directly. Several stems are
// combined as equal stems of equivalent basal area.
func SyntheticDBH(mesh []treemodel.Point3D, p DBHParams) (float64, error) {
	slice := SliceAtHeight(mesh, p.BreastHeight, p.SliceTolerance)
	if len(slice) == 0 {
		return 0, fmt.Errorf("no mesh vertices at %.2f m: %w", p.BreastHeight, treemodel.ErrInsufficientData)
	}
	stems := CountStems(slice, p.ClusterDistance)
	diameter := SliceDiameter(slice)
	if stems == 1 {
		return units.MetresToCentimetres(diameter), nil
	}
	individual := diameter / float64(stems)
	return units.MetresToCentimetres(individual * math.Sqrt(float64(stems))), nil
}

// TaperDBH measures a single stem below breast height and extrapolates to
// 1.3 m with the taper exponent a = intercept + slope * D.
func TaperDBH(mesh []treemodel.Point3D, h0 float64, p DBHParams) (float64, error) {
	pom := p.FallbackPOM
	if h0 >= p.PreferredPOM {
		pom = p.PreferredPOM
	}

	slice := SliceAtHeight(mesh, pom, p.SliceTolerance)
	if len(slice) == 0 {
		return 0, fmt.Errorf("no mesh vertices at %.2f m: %w", pom, treemodel.ErrInsufficientData)
	}
	stems := CountStems(slice, p.ClusterDistance)
	if stems != 1 && pom != p.FallbackPOM {
		pom = p.FallbackPOM
		slice = SliceAtHeight(mesh, pom, p.SliceTolerance)
		stems = CountStems(slice, p.ClusterDistance)
	}
	if stems != 1 {
		return 0, fmt.Errorf("%d stems at %.2f m: %w", stems, pom, treemodel.ErrUnresolvedFork)
	}

	d := units.MetresToCentimetres(SliceDiameter(slice))
	a := p.TaperIntercept + p.TaperSlopePerCm*d
	return d * math.Pow(p.BreastHeight/pom, a), nil
}

// ComputeDBH selects the method from h0 and returns the estimate.
func ComputeDBH(mesh []treemodel.Point3D, h0 float64, p DBHParams) treemodel.DBHResult {
	var res treemodel.DBHResult
	if len(mesh) == 0 {
		res.Error, res.Kind = failure(fmt.Errorf("empty mesh vertex cloud: %w", treemodel.ErrInputMissing))
		return res
	}
	if h0 < p.MinCrownBase {
		res.Error, res.Kind = failure(fmt.Errorf("crown base %.3f m below %.2f m: %w", h0, p.MinCrownBase, treemodel.ErrConditionNotMet))
		return res
	}

	var (
		dbh float64
		err error
	)
	if h0 > p.BreastHeight {
		res.MethodUsed = treemodel.MethodSynthetic
		dbh, err = SyntheticDBH(mesh, p)
	} else {
		res.MethodUsed = treemodel.MethodTaper
		dbh, err = TaperDBH(mesh, h0, p)
	}
	switch {
	case err != nil:
	case dbh == 0:
		err = fmt.Errorf("computed DBH is zero: %w", treemodel.ErrInsufficientData)
	case dbh < 0:
		err = fmt.Errorf("computed DBH %.3f cm is negative: %w", dbh, treemodel.ErrConditionNotMet)
	}
	if err != nil {
		res.Error, res.Kind = failure(err)
		return res
	}
	res.DBHCm = dbh
	res.Success = true
	return res
}
