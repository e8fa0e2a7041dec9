package skeleton

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// starGraph connects a root vertex (index 0) to every tip.
func starGraph(root treemodel.Point3D, tips ...treemodel.Point3D) *treemodel.SkeletonGraph {
	g := &treemodel.SkeletonGraph{Vertices: append([]treemodel.Point3D{root}, tips...)}
	for i := range tips {
		g.Edges = append(g.Edges, treemodel.Edge{0, i + 1})
	}
	return g
}

func TestExtractLeafNodes(t *testing.T) {
	t.Parallel()

	t.Run("chain has two tips", func(t *testing.T) {
		t.Parallel()
		g := &treemodel.SkeletonGraph{
			Vertices: []treemodel.Point3D{
				treemodel.NewPoint3D(0, 0, 0),
				treemodel.NewPoint3D(0, 0, 1),
				{X: 0, Y: 0, Z: 2, Radius: 0.1},
			},
			Edges: []treemodel.Edge{{0, 1}, {1, 2}},
		}
		leaves, err := ExtractLeafNodes(g)
		require.NoError(t, err)
		require.Len(t, leaves, 2)
		assert.Equal(t, 0, leaves[0].OriginalIndex)
		assert.Equal(t, 2, leaves[1].OriginalIndex)
		assert.Equal(t, 2.0, leaves[1].Height)
		assert.Equal(t, 0.1, leaves[1].Radius)
	})

	t.Run("no edges yields empty set", func(t *testing.T) {
		t.Parallel()
		g := &treemodel.SkeletonGraph{Vertices: []treemodel.Point3D{treemodel.NewPoint3D(0, 0, 0)}}
		leaves, err := ExtractLeafNodes(g)
		require.NoError(t, err)
		assert.Empty(t, leaves)
	})

	t.Run("star keeps vertex order", func(t *testing.T) {
		t.Parallel()
		g := starGraph(treemodel.NewPoint3D(0, 0, 0),
			treemodel.NewPoint3D(1, 0, 3),
			treemodel.NewPoint3D(0, 1, 4),
			treemodel.NewPoint3D(-1, 0, 5))
		leaves, err := ExtractLeafNodes(g)
		require.NoError(t, err)
		got := []int{}
		for _, l := range leaves {
			got = append(got, l.OriginalIndex)
		}
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("bad edge index", func(t *testing.T) {
		t.Parallel()
		g := &treemodel.SkeletonGraph{
			Vertices: []treemodel.Point3D{treemodel.NewPoint3D(0, 0, 0)},
			Edges:    []treemodel.Edge{{0, 5}},
		}
		_, err := ExtractLeafNodes(g)
		assert.True(t, errors.Is(err, treemodel.ErrInvalidParameter))
	})

	t.Run("nil graph", func(t *testing.T) {
		t.Parallel()
		_, err := ExtractLeafNodes(nil)
		assert.True(t, errors.Is(err, treemodel.ErrInputMissing))
	})
}

func TestAdaptiveFilter_RejectsLowOutlier(t *testing.T) {
	g := starGraph(treemodel.NewPoint3D(0, 0, 0),
		treemodel.NewPoint3D(0, 0, 10),
		treemodel.NewPoint3D(1, 0, 10),
		treemodel.NewPoint3D(2, 0, 10),
		treemodel.NewPoint3D(3, 0, 10),
		treemodel.NewPoint3D(4, 0, 10),
		treemodel.NewPoint3D(10, 0, 2),
	)
	leaves, err := ExtractLeafNodes(g)
	require.NoError(t, err)
	require.Len(t, leaves, 6)

	res, err := DefaultAdaptiveFilter().Filter(leaves, g.HeightRange())
	require.NoError(t, err)

	assert.InDelta(t, 1.5, res.HeightTolerance, 1e-12)
	assert.Equal(t, 1, res.Neighbors)
	assert.Equal(t, 1, res.TopN)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, res.Accepted)
	assert.Equal(t, 1, res.Rejected(len(leaves)))
	for _, p := range res.Points {
		assert.Equal(t, 10.0, p.Z)
	}
}

func TestAdaptiveFilter_TieBreakByOriginalIndex(t *testing.T) {
	centre := treemodel.NewPoint3D(0, 0, 5)
	level := treemodel.NewPoint3D(2, 0, 5) // same height as centre, distance 2
	above := treemodel.NewPoint3D(0, 0, 7) // taller, also distance 2
	root := treemodel.NewPoint3D(0, 0, 0)

	run := func(g *treemodel.SkeletonGraph) []int {
		leaves, err := ExtractLeafNodes(g)
		require.NoError(t, err)
		res, err := DefaultAdaptiveFilter().Filter(leaves, g.HeightRange())
		require.NoError(t, err)
		return res.Accepted
	}

	// The level neighbour has the lower index and wins the tie.
	assert.Contains(t, run(starGraph(root, centre, level, above)), 1)
	// The taller neighbour has the lower index and wins the tie.
	assert.NotContains(t, run(starGraph(root, centre, above, level)), 1)
}

func TestAdaptiveFilter_SingleLeafAccepted(t *testing.T) {
	leaves := treemodel.LeafNodeSet{{
		Position:      treemodel.NewPoint3D(1, 1, 1),
		Radius:        0.5,
		OriginalIndex: 7,
		Height:        1,
	}}
	pts, err := FilterLeafNodes(leaves, 100, 0.01)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, 0.5, pts[0].Radius)
}

func TestAdaptiveFilter_InvalidInput(t *testing.T) {
	leaves := treemodel.LeafNodeSet{{Position: treemodel.NewPoint3D(0, 0, 0)}}

	for _, p := range []float64{0, -0.1, 1.5} {
		_, err := FilterLeafNodes(leaves, 1, p)
		if !errors.Is(err, treemodel.ErrInvalidParameter) {
			t.Errorf("percentage %v: expected ErrInvalidParameter, got %v", p, err)
		}
	}

	_, err := FilterLeafNodes(nil, 1, 0.15)
	assert.True(t, errors.Is(err, treemodel.ErrInputMissing))
}

func TestAdaptiveFilter_FullPercentageAveragesAllNeighbours(t *testing.T) {
	// p = 1: every other leaf is a neighbour and all of them are averaged.
	leaves := treemodel.LeafNodeSet{
		{Position: treemodel.NewPoint3D(0, 0, 1), OriginalIndex: 0, Height: 1},
		{Position: treemodel.NewPoint3D(1, 0, 2), OriginalIndex: 1, Height: 2},
		{Position: treemodel.NewPoint3D(2, 0, 3), OriginalIndex: 2, Height: 3},
	}
	res, err := AdaptiveFilter{Percentage: 1}.Filter(leaves, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Neighbors)
	assert.Equal(t, 3, res.TopN)
	// Means of the others: 2.5, 2, 1.5. Deviations 1.5, 0, 1.5 against tolerance 1.
	assert.Equal(t, []int{1}, res.Accepted)
}

func TestAdaptiveFilter_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tips := make([]treemodel.Point3D, 200)
	for i := range tips {
		tips[i] = treemodel.NewPoint3D(rng.Float64()*8-4, rng.Float64()*8-4, 4+rng.Float64()*6)
	}
	g := starGraph(treemodel.NewPoint3D(0, 0, 0), tips...)
	leaves, err := ExtractLeafNodes(g)
	require.NoError(t, err)

	first, err := DefaultAdaptiveFilter().Filter(leaves, g.HeightRange())
	require.NoError(t, err)
	second, err := DefaultAdaptiveFilter().Filter(leaves, g.HeightRange())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("filter output changed between runs (-first +second):\n%s", diff)
	}
	assert.NotEmpty(t, first.Points)
}
