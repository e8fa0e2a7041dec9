// Package meshio reads and writes the file formats exchanged with the
// reconstruction step: PLY skeletons, XYZ point artifacts and OBJ/STL
// branch meshes.
package meshio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// PLY body encodings.
const (
	plyASCII        = "ascii"
	plyBinaryLittle = "binary_little_endian"
	plyBinaryBig    = "binary_big_endian"
)

type plyProperty struct {
	name      string
	typ       string
	list      bool
	countType string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

// plyData holds every element instance as one []float64 per property.
// Scalar properties have a single value.
type plyData struct {
	format   string
	elements []plyElement
	values   map[string][][][]float64
}

func (e plyElement) propIndex(name string) int {
	for i, p := range e.props {
		if p.name == name {
			return i
		}
	}
	return -1
}

// isList reports whether any of the given property indices is a list.
// Negative indices are ignored.
func (e plyElement) isList(idx ...int) bool {
	for _, i := range idx {
		if i >= 0 && e.props[i].list {
			return true
		}
	}
	return false
}

func (d *plyData) element(name string) (plyElement, [][][]float64, bool) {
	for _, e := range d.elements {
		if e.name == name {
			return e, d.values[name], true
		}
	}
	return plyElement{}, nil, false
}

// DecodeSkeletonPLY parses a PLY stream with a vertex element (x, y, z and
// an optional radius) and an optional edge element. Edges are read from a
// vertex_indices list with exactly two entries or from vertex1/vertex2
// scalars.
func DecodeSkeletonPLY(r io.Reader) (*treemodel.SkeletonGraph, error) {
	data, err := decodePLY(r)
	if err != nil {
		return nil, err
	}

	vertex, rows, ok := data.element("vertex")
	if !ok {
		return nil, fmt.Errorf("no vertex element: %w", treemodel.ErrInputMissing)
	}
	ix, iy, iz := vertex.propIndex("x"), vertex.propIndex("y"), vertex.propIndex("z")
	if ix < 0 || iy < 0 || iz < 0 {
		return nil, fmt.Errorf("vertex element lacks x/y/z properties: %w", treemodel.ErrInputMissing)
	}
	ir := vertex.propIndex("radius")
	if vertex.isList(ix, iy, iz, ir) {
		return nil, fmt.Errorf("vertex coordinates must be scalar properties: %w", treemodel.ErrInvalidParameter)
	}

	g := &treemodel.SkeletonGraph{Vertices: make([]treemodel.Point3D, len(rows))}
	for i, row := range rows {
		p := treemodel.NewPoint3D(row[ix][0], row[iy][0], row[iz][0])
		if ir >= 0 {
			p.Radius = row[ir][0]
		}
		g.Vertices[i] = p
	}

	edge, rows, ok := data.element("edge")
	if !ok {
		monitoring.Logf("skeleton has no edge element")
		return g, nil
	}
	list := edge.propIndex("vertex_indices")
	v1, v2 := edge.propIndex("vertex1"), edge.propIndex("vertex2")
	if edge.isList(v1, v2) {
		return nil, fmt.Errorf("vertex1/vertex2 must be scalar properties: %w", treemodel.ErrInvalidParameter)
	}
	for i, row := range rows {
		var a, b float64
		switch {
		case list >= 0:
			if len(row[list]) != 2 {
				return nil, fmt.Errorf("edge %d has %d indices, want 2: %w", i, len(row[list]), treemodel.ErrInvalidParameter)
			}
			a, b = row[list][0], row[list][1]
		case v1 >= 0 && v2 >= 0:
			a, b = row[v1][0], row[v2][0]
		default:
			return nil, fmt.Errorf("edge element lacks vertex_indices or vertex1/vertex2: %w", treemodel.ErrInvalidParameter)
		}
		ia, err := vertexIndex(a, len(g.Vertices))
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		ib, err := vertexIndex(b, len(g.Vertices))
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		g.Edges = append(g.Edges, treemodel.Edge{ia, ib})
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// EncodeSkeletonPLY writes g as an ASCII PLY with radius and edges.
func EncodeSkeletonPLY(w io.Writer, g *treemodel.SkeletonGraph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat ascii 1.0\n")
	fmt.Fprintf(bw, "element vertex %d\n", len(g.Vertices))
	fmt.Fprintf(bw, "property double x\nproperty double y\nproperty double z\nproperty double radius\n")
	fmt.Fprintf(bw, "element edge %d\n", len(g.Edges))
	fmt.Fprintf(bw, "property list uchar int vertex_indices\n")
	fmt.Fprintf(bw, "end_header\n")
	for _, v := range g.Vertices {
		fmt.Fprintf(bw, "%.6f %.6f %.6f %.6f\n", v.X, v.Y, v.Z, v.Radius)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(bw, "2 %d %d\n", e[0], e[1])
	}
	return bw.Flush()
}

func decodePLY(r io.Reader) (*plyData, error) {
	br := bufio.NewReader(r)
	data, err := readPLYHeader(br)
	if err != nil {
		return nil, err
	}

	var next func(typ string) (float64, error)
	switch data.format {
	case plyASCII:
		tok := newTokenReader(br)
		next = func(string) (float64, error) { return tok.float() }
	case plyBinaryLittle:
		next = binaryReader(br, binary.LittleEndian)
	case plyBinaryBig:
		next = binaryReader(br, binary.BigEndian)
	default:
		return nil, fmt.Errorf("unsupported PLY format %q: %w", data.format, treemodel.ErrInvalidParameter)
	}

	data.values = make(map[string][][][]float64, len(data.elements))
	for _, e := range data.elements {
		// Rows grow as they are read; the header count is not trusted for allocation.
		var rows [][][]float64
		for i := 0; i < e.count; i++ {
			row := make([][]float64, len(e.props))
			for j, p := range e.props {
				if !p.list {
					v, err := next(p.typ)
					if err != nil {
						return nil, fmt.Errorf("element %s[%d].%s: %w", e.name, i, p.name, err)
					}
					row[j] = []float64{v}
					continue
				}
				c, err := next(p.countType)
				if err != nil {
					return nil, fmt.Errorf("element %s[%d].%s count: %w", e.name, i, p.name, err)
				}
				n, err := listLength(c, p.countType)
				if err != nil {
					return nil, fmt.Errorf("element %s[%d].%s: %w", e.name, i, p.name, err)
				}
				vals := make([]float64, 0, min(n, maxListPrealloc))
				for k := 0; k < n; k++ {
					v, err := next(p.typ)
					if err != nil {
						return nil, fmt.Errorf("element %s[%d].%s: %w", e.name, i, p.name, err)
					}
					vals = append(vals, v)
				}
				row[j] = vals
			}
			rows = append(rows, row)
		}
		data.values[e.name] = rows
	}
	return data, nil
}

const maxListPrealloc = 16

// plyCountMax is the largest list length each integral count type can hold.
var plyCountMax = map[string]float64{
	"char": math.MaxInt8, "int8": math.MaxInt8, "uchar": math.MaxUint8, "uint8": math.MaxUint8,
	"short": math.MaxInt16, "int16": math.MaxInt16, "ushort": math.MaxUint16, "uint16": math.MaxUint16,
	"int": math.MaxInt32, "int32": math.MaxInt32, "uint": math.MaxUint32, "uint32": math.MaxUint32,
}

// listLength checks a list count read from the body against its declared type.
func listLength(c float64, countType string) (int, error) {
	limit, ok := plyCountMax[countType]
	if !ok {
		return 0, fmt.Errorf("list count type %q is not an integer type: %w", countType, treemodel.ErrInvalidParameter)
	}
	if math.IsNaN(c) || c != math.Trunc(c) || c < 0 || c > limit {
		return 0, fmt.Errorf("bad list length %v for %s: %w", c, countType, treemodel.ErrInvalidParameter)
	}
	return int(c), nil
}

// vertexIndex converts an edge endpoint to an index into n vertices.
func vertexIndex(v float64, n int) (int, error) {
	if math.IsNaN(v) || v != math.Trunc(v) || v < 0 || v >= float64(n) {
		return 0, fmt.Errorf("vertex index %v outside [0, %d): %w", v, n, treemodel.ErrInvalidParameter)
	}
	return int(v), nil
}

func readPLYHeader(br *bufio.Reader) (*plyData, error) {
	magic, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return nil, fmt.Errorf("not a PLY stream: %w", treemodel.ErrInputMissing)
	}

	data := &plyData{}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("truncated PLY header: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("malformed format line %q", strings.TrimSpace(line))
			}
			data.format = fields[1]
		case "comment", "obj_info":
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("malformed element line %q", strings.TrimSpace(line))
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("bad element count %q", fields[2])
			}
			data.elements = append(data.elements, plyElement{name: fields[1], count: count})
		case "property":
			if len(data.elements) == 0 {
				return nil, fmt.Errorf("property before any element")
			}
			e := &data.elements[len(data.elements)-1]
			switch {
			case len(fields) == 5 && fields[1] == "list":
				e.props = append(e.props, plyProperty{name: fields[4], typ: fields[3], list: true, countType: fields[2]})
			case len(fields) == 3:
				e.props = append(e.props, plyProperty{name: fields[2], typ: fields[1]})
			default:
				return nil, fmt.Errorf("malformed property line %q", strings.TrimSpace(line))
			}
		case "end_header":
			return data, nil
		default:
			return nil, fmt.Errorf("unknown PLY header keyword %q", fields[0])
		}
	}
}

// plyTypeSize maps PLY scalar type names to their byte width.
var plyTypeSize = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

func binaryReader(r io.Reader, order binary.ByteOrder) func(typ string) (float64, error) {
	var buf [8]byte
	return func(typ string) (float64, error) {
		size, ok := plyTypeSize[typ]
		if !ok {
			return 0, fmt.Errorf("unknown PLY type %q", typ)
		}
		b := buf[:size]
		if _, err := io.ReadFull(r, b); err != nil {
			return 0, err
		}
		switch typ {
		case "char", "int8":
			return float64(int8(b[0])), nil
		case "uchar", "uint8":
			return float64(b[0]), nil
		case "short", "int16":
			return float64(int16(order.Uint16(b))), nil
		case "ushort", "uint16":
			return float64(order.Uint16(b)), nil
		case "int", "int32":
			return float64(int32(order.Uint32(b))), nil
		case "uint", "uint32":
			return float64(order.Uint32(b)), nil
		case "float", "float32":
			return float64(math.Float32frombits(order.Uint32(b))), nil
		default:
			return math.Float64frombits(order.Uint64(b)), nil
		}
	}
}

// tokenReader yields whitespace-separated tokens across lines.
type tokenReader struct {
	sc *bufio.Scanner
}

func newTokenReader(r io.Reader) *tokenReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	return &tokenReader{sc: sc}
}

func (t *tokenReader) float() (float64, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	return strconv.ParseFloat(t.sc.Text(), 64)
}
