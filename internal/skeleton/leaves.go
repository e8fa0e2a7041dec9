// Package skeleton turns a reconstructed tree skeleton into the set of
// crown-representative branch tips used by the height and crown metrics.
//
// The two stages are:
//   - ExtractLeafNodes: degree-1 vertices of the skeleton graph
//   - AdaptiveFilter: rejects tips whose height disagrees with the canopy
//     profile of their nearest neighbours
//
// Both stages are pure functions of their inputs.
package skeleton

import (
	"fmt"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// ExtractLeafNodes returns every vertex of degree one, in vertex order.
// A graph without edges yields an empty set and no error.
func ExtractLeafNodes(g *treemodel.SkeletonGraph) (treemodel.LeafNodeSet, error) {
	if g == nil {
		return nil, fmt.Errorf("nil skeleton graph: %w", treemodel.ErrInputMissing)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	degree := make([]int, len(g.Vertices))
	for _, e := range g.Edges {
		degree[e[0]]++
		degree[e[1]]++
	}

	leaves := make(treemodel.LeafNodeSet, 0)
	for i, d := range degree {
		if d != 1 {
			continue
		}
		v := g.Vertices[i]
		leaves = append(leaves, treemodel.LeafNode{
			Position:      v,
			Radius:        v.Radius,
			OriginalIndex: i,
			Height:        v.Z,
		})
	}
	return leaves, nil
}
