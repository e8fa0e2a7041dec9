package meshio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/model3d/model3d"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// Mesh is a triangle mesh with vertices kept in file order. Vertex order
// matters downstream: stem clustering walks slices in this order.
type Mesh struct {
	Vertices []treemodel.Point3D
	Faces    [][3]int
}

// ReadMesh reads an OBJ or STL mesh from fsys.
func ReadMesh(fsys fsutil.FileSystem, path string) (*Mesh, error) {
	var decode func(io.Reader) (*Mesh, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		decode = DecodeOBJ
	case ".stl":
		decode = DecodeSTL
	default:
		return nil, fmt.Errorf("unsupported mesh format %q: %w", filepath.Ext(path), treemodel.ErrInvalidParameter)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mesh: %w", err)
	}
	defer f.Close()

	m, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read mesh %s: %w", path, err)
	}
	return m, nil
}

// VertexCloud returns the mesh vertices in file order, the input for the
// stem diameter estimate.
func (m *Mesh) VertexCloud() []treemodel.Point3D {
	if m == nil {
		return nil
	}
	return m.Vertices
}

// DecodeOBJ reads "v" and "f" records. Face indices may be 1-based or
// negative (relative); texture and normal references are ignored and
// polygons are fan-triangulated.
func DecodeOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				monitoring.Logf("obj line %d: short vertex record", lineNo)
				continue
			}
			var c [3]float64
			for i := range c {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %w", lineNo, err)
				}
				c[i] = v
			}
			m.Vertices = append(m.Vertices, treemodel.NewPoint3D(c[0], c[1], c[2]))
		case "f":
			idx := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				ref := tok
				if slash := strings.IndexByte(tok, '/'); slash >= 0 {
					ref = tok[:slash]
				}
				n, err := strconv.Atoi(ref)
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %w", lineNo, err)
				}
				if n < 0 {
					n = len(m.Vertices) + n
				} else {
					n--
				}
				if n < 0 || n >= len(m.Vertices) {
					return nil, fmt.Errorf("obj line %d: face index %s out of range: %w", lineNo, tok, treemodel.ErrInvalidParameter)
				}
				idx = append(idx, n)
			}
			for i := 1; i+1 < len(idx); i++ {
				m.Faces = append(m.Faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeSTL reads an STL stream through model3d and rebuilds an indexed
// mesh, numbering vertices in first-seen triangle order.
func DecodeSTL(r io.Reader) (*Mesh, error) {
	tris, err := model3d.ReadSTL(r)
	if err != nil {
		return nil, err
	}
	m := &Mesh{}
	index := map[model3d.Coord3D]int{}
	for _, t := range tris {
		var face [3]int
		for i, c := range t {
			id, ok := index[c]
			if !ok {
				id = len(m.Vertices)
				index[c] = id
				m.Vertices = append(m.Vertices, treemodel.NewPoint3D(c.X, c.Y, c.Z))
			}
			face[i] = id
		}
		m.Faces = append(m.Faces, face)
	}
	return m, nil
}

// Model converts m into a model3d mesh.
func (m *Mesh) Model() *model3d.Mesh {
	tris := make([]*model3d.Triangle, 0, len(m.Faces))
	for _, f := range m.Faces {
		var t model3d.Triangle
		for i, vi := range f {
			v := m.Vertices[vi]
			t[i] = model3d.XYZ(v.X, v.Y, v.Z)
		}
		tris = append(tris, &t)
	}
	return model3d.NewMeshTriangles(tris)
}

// ComputeMeshStats measures volume, surface area and closedness. Volume is
// only meaningful for a closed mesh; it is still reported otherwise.
func ComputeMeshStats(m *Mesh) treemodel.MeshStats {
	var res treemodel.MeshStats
	if m == nil || len(m.Vertices) == 0 {
		res.Error, res.Kind = "empty mesh", treemodel.KindInputMissing
		return res
	}
	res.VertexCount = len(m.Vertices)
	res.TriangleCount = len(m.Faces)
	if len(m.Faces) == 0 {
		res.Error, res.Kind = "mesh has no faces", treemodel.KindInsufficientData
		return res
	}

	mesh := m.Model()
	res.VolumeM3 = math.Abs(mesh.Volume())
	res.SurfaceAreaM2 = mesh.Area()
	res.Closed = !mesh.NeedsRepair()
	lo, hi := mesh.Min(), mesh.Max()
	res.Min = treemodel.NewPoint3D(lo.X, lo.Y, lo.Z)
	res.Max = treemodel.NewPoint3D(hi.X, hi.Y, hi.Z)
	res.Success = true
	if !res.Closed {
		monitoring.Logf("mesh is not closed; volume %.4f m3 is approximate", res.VolumeM3)
	}
	return res
}
