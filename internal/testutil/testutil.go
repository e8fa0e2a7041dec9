// Package testutil provides shared test utilities and fixtures.
//
// The fixtures describe small synthetic trees: a skeleton with a vertical
// trunk and a ring of crown tips, and a cylindrical trunk mesh.
package testutil

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// CubeOBJ is a closed unit cube with outward-facing quads.
const CubeOBJ = `# unit cube
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
v 1 0 1
v 1 1 1
v 0 1 1
f 1 4 3 2
f 5 6 7 8
f 1 2 6 5
f 4 8 7 3
f 1 5 8 4
f 2 3 7 6
`

// CrownSkeleton builds a skeleton with a trunk from the ground to
// crownBase and tips evenly spaced on a circle of radius spread. Tip
// heights cycle through top, top-0.2 and top-0.4. The trunk base is also a
// degree-one vertex.
func CrownSkeleton(tips int, crownBase, top, spread float64) *treemodel.SkeletonGraph {
	g := &treemodel.SkeletonGraph{}
	const trunkSegments = 4
	for i := 0; i <= trunkSegments; i++ {
		z := crownBase * float64(i) / trunkSegments
		g.Vertices = append(g.Vertices, treemodel.Point3D{X: 0, Y: 0, Z: z, Radius: 0.1})
		if i > 0 {
			g.Edges = append(g.Edges, treemodel.Edge{i - 1, i})
		}
	}
	fork := trunkSegments
	for i := 0; i < tips; i++ {
		angle := 2 * math.Pi * float64(i) / float64(tips)
		z := top - 0.2*float64(i%3)
		g.Vertices = append(g.Vertices, treemodel.Point3D{
			X:      spread * math.Cos(angle),
			Y:      spread * math.Sin(angle),
			Z:      z,
			Radius: 0.02,
		})
		g.Edges = append(g.Edges, treemodel.Edge{fork, len(g.Vertices) - 1})
	}
	return g
}

// TrunkMesh builds an open cylinder of the given radius from z = 0 to
// height with rings every 5 cm. Ring heights are exact multiples of 0.05.
func TrunkMesh(radius, height float64, segments int) ([]treemodel.Point3D, [][3]int) {
	rings := int(math.Round(height*20)) + 1
	var verts []treemodel.Point3D
	var faces [][3]int
	for r := 0; r < rings; r++ {
		z := float64(r) / 20
		for s := 0; s < segments; s++ {
			angle := 2 * math.Pi * float64(s) / float64(segments)
			verts = append(verts, treemodel.NewPoint3D(radius*math.Cos(angle), radius*math.Sin(angle), z))
		}
		if r == 0 {
			continue
		}
		base := (r - 1) * segments
		for s := 0; s < segments; s++ {
			a := base + s
			b := base + (s+1)%segments
			c := a + segments
			d := b + segments
			faces = append(faces, [3]int{a, b, d}, [3]int{a, d, c})
		}
	}
	return verts, faces
}

// WriteOBJ encodes vertices and faces as a Wavefront OBJ.
func WriteOBJ(w io.Writer, verts []treemodel.Point3D, faces [][3]int) error {
	for _, v := range verts {
		if _, err := fmt.Fprintf(w, "v %.6f %.6f %.6f\n", v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, f := range faces {
		if _, err := fmt.Fprintf(w, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1); err != nil {
			return err
		}
	}
	return nil
}
