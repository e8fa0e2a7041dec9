package treemodel

// DBH estimation methods as reported in DBHResult.MethodUsed.
const (
	MethodSynthetic   = "synthetic"
	MethodTaper       = "taper"
	MethodNotComputed = "not computed"
	MethodFailed      = "calculation failed"
)

// HeightResult carries the tree height estimate.
type HeightResult struct {
	Success    bool      `json:"success"`
	TreeHeight float64   `json:"tree_height"`
	PointCount int       `json:"point_count"`
	Error      string    `json:"error,omitempty"`
	Kind       ErrorKind `json:"error_kind,omitempty"`
}

// CrownDepthResult carries the crown base height (h0) and crown depth.
type CrownDepthResult struct {
	Success    bool      `json:"success"`
	H0         float64   `json:"h0"`
	CrownDepth float64   `json:"crown_depth"`
	PointCount int       `json:"point_count"`
	Error      string    `json:"error,omitempty"`
	Kind       ErrorKind `json:"error_kind,omitempty"`
}

// CrownRadiusResult carries the planar crown measurements. Degenerate is
// set when the hull collapsed and the axis-aligned fallback was used.
type CrownRadiusResult struct {
	Success     bool      `json:"success"`
	CrownRadius float64   `json:"crown_radius"`
	MaxWidth    float64   `json:"max_width"`
	MinWidth    float64   `json:"min_width"`
	AspectRatio float64   `json:"aspect_ratio"`
	TotalPoints int       `json:"total_points"`
	Degenerate  bool      `json:"degenerate,omitempty"`
	Error       string    `json:"error,omitempty"`
	Kind        ErrorKind `json:"error_kind,omitempty"`
}

// CrownDiameter is twice the crown radius.
func (r CrownRadiusResult) CrownDiameter() float64 {
	return 2 * r.CrownRadius
}

// DBHResult carries the diameter at breast height in centimetres.
type DBHResult struct {
	Success    bool      `json:"success"`
	DBHCm      float64   `json:"dbh_cm"`
	MethodUsed string    `json:"method_used"`
	Error      string    `json:"error,omitempty"`
	Kind       ErrorKind `json:"error_kind,omitempty"`
}

// MeshStats summarises the reconstructed branch mesh.
type MeshStats struct {
	Success       bool      `json:"success"`
	VolumeM3      float64   `json:"volume_m3"`
	SurfaceAreaM2 float64   `json:"surface_area_m2"`
	Closed        bool      `json:"mesh_closed"`
	VertexCount   int       `json:"vertex_count"`
	TriangleCount int       `json:"triangle_count"`
	Min           Point3D   `json:"-"`
	Max           Point3D   `json:"-"`
	Error         string    `json:"error,omitempty"`
	Kind          ErrorKind `json:"error_kind,omitempty"`
}
