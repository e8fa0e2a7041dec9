package treemodel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoint3D_DefaultRadius(t *testing.T) {
	p := NewPoint3D(1, 2, 3)
	if p.Radius != DefaultRadius {
		t.Errorf("Expected radius %f, got %f", DefaultRadius, p.Radius)
	}
}

func TestSortByHeight_DoesNotMutateInput(t *testing.T) {
	in := []Point3D{NewPoint3D(0, 0, 3), NewPoint3D(1, 0, 1), NewPoint3D(2, 0, 2)}
	out := SortByHeight(in)

	assert.Equal(t, []float64{1, 2, 3}, []float64{out[0].Z, out[1].Z, out[2].Z})
	assert.Equal(t, 3.0, in[0].Z)
}

func TestSkeletonGraph_Validate(t *testing.T) {
	t.Parallel()

	g := &SkeletonGraph{
		Vertices: []Point3D{NewPoint3D(0, 0, 0), NewPoint3D(0, 0, 1)},
		Edges:    []Edge{{0, 1}},
	}
	require.NoError(t, g.Validate())

	g.Edges = append(g.Edges, Edge{1, 2})
	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestSkeletonGraph_HeightRange(t *testing.T) {
	g := &SkeletonGraph{}
	assert.Equal(t, 0.0, g.HeightRange())

	g.Vertices = []Point3D{NewPoint3D(0, 0, 2), NewPoint3D(0, 0, -1), NewPoint3D(0, 0, 7)}
	assert.InDelta(t, 8.0, g.HeightRange(), 1e-12)
}

func TestLeafNodeSet_Points(t *testing.T) {
	s := LeafNodeSet{{Position: NewPoint3D(1, 2, 3), Radius: 0.25, OriginalIndex: 4, Height: 3}}
	pts := s.Points()
	require.Len(t, pts, 1)
	assert.Equal(t, 0.25, pts[0].Radius)
	assert.Equal(t, 3.0, pts[0].Z)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("wrap: %w", ErrInputMissing), KindInputMissing},
		{fmt.Errorf("wrap: %w", ErrInvalidParameter), KindInvalidParameter},
		{fmt.Errorf("wrap: %w", ErrInsufficientData), KindInsufficientData},
		{fmt.Errorf("wrap: %w", ErrUnresolvedFork), KindUnresolvedFork},
		{fmt.Errorf("wrap: %w", ErrConditionNotMet), KindConditionNotMet},
		{errors.New("open skeleton: no such file"), KindInputMissing},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCrownDiameter(t *testing.T) {
	r := CrownRadiusResult{CrownRadius: 1.5}
	assert.Equal(t, 3.0, r.CrownDiameter())
}
