package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

func ring(z float64, xs ...float64) []treemodel.Point3D {
	pts := make([]treemodel.Point3D, len(xs))
	for i, x := range xs {
		pts[i] = treemodel.NewPoint3D(x, 0, z)
	}
	return pts
}

func TestSliceAtHeight(t *testing.T) {
	pts := column(1.24, 1.25, 1.3, 1.35, 1.36, 2.0)
	slice := SliceAtHeight(pts, 1.3, 0.05)
	// 1.25 and 1.35 sit on the boundary; float rounding may exclude them, so
	// only the clearly inside and clearly outside points are asserted.
	zs := map[float64]bool{}
	for _, p := range slice {
		zs[p.Z] = true
	}
	assert.True(t, zs[1.3])
	assert.False(t, zs[1.24])
	assert.False(t, zs[1.36])
	assert.False(t, zs[2.0])
}

func TestCountStems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		xs    []float64
		stems int
	}{
		{"empty", nil, 0},
		{"single point", []float64{0}, 1},
		{"tight cluster", []float64{0, 0.1, 0.2}, 1},
		{"two stems", []float64{0, 0.1, 1.0, 1.1}, 2},
		{"exactly at threshold is separate", []float64{0, 0.3}, 2},
		// Greedy: the bridge point is absorbed by the first stem and cannot
		// pull the third point in.
		{"no transitive merge", []float64{0, 0.2, 0.4}, 2},
		{"middle point first joins both", []float64{0.2, 0, 0.4}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.stems, CountStems(ring(1.3, tt.xs...), 0.3))
		})
	}
}

func TestSliceDiameter(t *testing.T) {
	assert.Equal(t, 0.0, SliceDiameter(nil))
	assert.Equal(t, 0.0, SliceDiameter(ring(1, 5)))
	d := SliceDiameter([]treemodel.Point3D{
		treemodel.NewPoint3D(0, 0, 1),
		treemodel.NewPoint3D(3, 4, 1.02),
		treemodel.NewPoint3D(1, 1, 0.98),
	})
	assert.InDelta(t, 5.0, d, 1e-12)
}

func TestComputeDBH_SyntheticSingleStem(t *testing.T) {
	// The middle point comes first so one greedy pass covers the slice.
	mesh := append(ring(1.3, 0.15, 0, 0.3), ring(0.5, 5, 6)...)
	res := ComputeDBH(mesh, 2.0, DefaultDBHParams())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, treemodel.MethodSynthetic, res.MethodUsed)
	assert.InDelta(t, 30.0, res.DBHCm, 1e-9)
}

func TestComputeDBH_SyntheticMultiStem(t *testing.T) {
	mesh := ring(1.3, 0, 0.1, 1.0, 1.1)
	res := ComputeDBH(mesh, 1.5, DefaultDBHParams())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, treemodel.MethodSynthetic, res.MethodUsed)
	want := (1.1 / 2) * math.Sqrt(2) * 100
	assert.InDelta(t, want, res.DBHCm, 1e-9)
}

func TestComputeDBH_SyntheticEmptySlice(t *testing.T) {
	res := ComputeDBH(ring(3.0, 0, 0.1), 2.0, DefaultDBHParams())
	assert.False(t, res.Success)
	assert.Equal(t, treemodel.KindInsufficientData, res.Kind)
	assert.Equal(t, treemodel.MethodSynthetic, res.MethodUsed)
}

func TestComputeDBH_TaperAtOneMetre(t *testing.T) {
	mesh := ring(1.0, 0.1, 0, 0.2)
	res := ComputeDBH(mesh, 1.0, DefaultDBHParams())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, treemodel.MethodTaper, res.MethodUsed)

	// D = 20 cm, a = -0.156 + 0.048*20 = 0.804
	want := 20 * math.Pow(1.3, 0.804)
	assert.InDelta(t, want, res.DBHCm, 1e-9)
	assert.InDelta(t, 24.70, res.DBHCm, 0.01)
}

func TestComputeDBH_TaperLowCrownUsesFallbackHeight(t *testing.T) {
	mesh := ring(0.7, 0.1, 0, 0.2)
	res := ComputeDBH(mesh, 0.8, DefaultDBHParams())
	require.True(t, res.Success, res.Error)
	want := 20 * math.Pow(1.3/0.7, 0.804)
	assert.InDelta(t, want, res.DBHCm, 1e-9)
}

func TestComputeDBH_TaperRetriesBelowFork(t *testing.T) {
	// Forked at 1.0 m, single stem at 0.7 m.
	mesh := append(ring(1.0, 0, 0.1, 1.0, 1.1), ring(0.7, 0.1, 0, 0.2)...)
	res := ComputeDBH(mesh, 1.2, DefaultDBHParams())
	require.True(t, res.Success, res.Error)
	want := 20 * math.Pow(1.3/0.7, 0.804)
	assert.InDelta(t, want, res.DBHCm, 1e-9)
}

func TestComputeDBH_TaperUnresolvedFork(t *testing.T) {
	t.Parallel()

	t.Run("forked at both heights", func(t *testing.T) {
		t.Parallel()
		mesh := append(ring(1.0, 0, 1.0), ring(0.7, 0, 1.0)...)
		res := ComputeDBH(mesh, 1.1, DefaultDBHParams())
		assert.False(t, res.Success)
		assert.Equal(t, treemodel.KindUnresolvedFork, res.Kind)
	})

	t.Run("nothing at retry height", func(t *testing.T) {
		t.Parallel()
		res := ComputeDBH(ring(1.0, 0, 1.0), 1.1, DefaultDBHParams())
		assert.False(t, res.Success)
		assert.Equal(t, treemodel.KindUnresolvedFork, res.Kind)
	})

	t.Run("forked at fallback height without retry", func(t *testing.T) {
		t.Parallel()
		res := ComputeDBH(ring(0.7, 0, 1.0), 0.9, DefaultDBHParams())
		assert.False(t, res.Success)
		assert.Equal(t, treemodel.KindUnresolvedFork, res.Kind)
	})
}

func TestComputeDBH_TaperEmptySlice(t *testing.T) {
	res := ComputeDBH(ring(3.0, 0), 1.0, DefaultDBHParams())
	assert.False(t, res.Success)
	assert.Equal(t, treemodel.KindInsufficientData, res.Kind)
}

func TestComputeDBH_Preconditions(t *testing.T) {
	res := ComputeDBH(ring(1.3, 0, 0.1), 0.5, DefaultDBHParams())
	assert.False(t, res.Success)
	assert.Equal(t, treemodel.KindConditionNotMet, res.Kind)
	assert.Empty(t, res.MethodUsed)

	res = ComputeDBH(nil, 2.0, DefaultDBHParams())
	assert.False(t, res.Success)
	assert.Equal(t, treemodel.KindInputMissing, res.Kind)
}

func TestComputeDBH_ZeroDiameterIsInsufficient(t *testing.T) {
	res := ComputeDBH(ring(1.3, 2), 2.0, DefaultDBHParams())
	assert.False(t, res.Success)
	assert.Equal(t, treemodel.KindInsufficientData, res.Kind)
}
