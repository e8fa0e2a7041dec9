// Package pipeline runs the measurement stages for one tree and for a
// directory of trees.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/arbor.report/internal/config"
	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/meshio"
	"github.com/banshee-data/arbor.report/internal/metric"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/skeleton"
	"github.com/banshee-data/arbor.report/internal/timeutil"
	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// TreeInput names the files for one tree. SkeletonPath or FilteredPath
// must be set; MeshPath is optional and enables DBH and mesh statistics.
type TreeInput struct {
	ID           string
	SkeletonPath string
	// FilteredPath points at an existing filtered leaf file. When set the
	// skeleton stage is skipped.
	FilteredPath string
	MeshPath     string
}

// Params controls which stages run and with what constants.
type Params struct {
	FilterPercentage float64
	TopN             int
	BottomN          int
	DBH              metric.DBHParams
	ComputeCrown     bool
	ComputeVolume    bool

	// OutputDir receives the filtered leaf file. Empty disables the write.
	OutputDir string
	FS        fsutil.FileSystem
	// Clock stamps results; nil uses the wall clock.
	Clock timeutil.Clock
}

// DefaultParams returns the default constants with every stage enabled,
// reading and writing through the OS filesystem.
func DefaultParams(outputDir string) Params {
	return ParamsFromConfig(config.EmptyTuningConfig(), outputDir)
}

// ParamsFromConfig builds Params from a tuning config.
func ParamsFromConfig(cfg *config.TuningConfig, outputDir string) Params {
	return Params{
		FilterPercentage: cfg.GetFilterPercentage(),
		TopN:             cfg.GetTopN(),
		BottomN:          cfg.GetBottomN(),
		DBH:              cfg.DBHParams(),
		ComputeCrown:     cfg.GetComputeCrown(),
		ComputeVolume:    cfg.GetComputeVolume(),
		OutputDir:        outputDir,
		FS:               fsutil.OSFileSystem{},
		Clock:            timeutil.RealClock{},
	}
}

// TreeResult collects every metric for one tree. A metric that fails is
// recorded in its own result; Err is only set when nothing could be
// measured at all.
type TreeResult struct {
	TreeID      string
	ProcessedAt time.Time
	Duration    time.Duration

	HasSkeleton       bool
	LeafNodesTotal    int
	LeafNodesFiltered int
	FilteredPath      string
	SkeletonError     string

	Height     treemodel.HeightResult
	CrownDepth treemodel.CrownDepthResult
	Crown      treemodel.CrownRadiusResult
	DBH        treemodel.DBHResult
	Mesh       treemodel.MeshStats

	// Geometry is kept for plotting; nil when the crown stage did not run.
	Geometry *metric.CrownGeometry
	// Points are the filtered leaf points the metrics were computed from.
	Points []treemodel.Point3D

	Err error
}

// OK reports whether the tree produced a usable record.
func (r *TreeResult) OK() bool {
	return r != nil && r.Err == nil
}

// TreeID derives a tree identifier from a file name by dropping the
// extension and the reconstruction suffixes.
func TreeID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, suffix := range []string{"_filtered", "_skeleton", "_branches"} {
		stem = strings.TrimSuffix(stem, suffix)
	}
	return stem
}

// FilterSkeleton reads a skeleton, extracts and filters its leaves. The
// returned result carries the leaf counts even when filtering fails.
func FilterSkeleton(fsys fsutil.FileSystem, path string, percentage float64) (skeleton.FilterResult, int, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return skeleton.FilterResult{}, 0, fmt.Errorf("failed to open skeleton: %w", err)
	}
	defer f.Close()

	g, err := meshio.DecodeSkeletonPLY(f)
	if err != nil {
		return skeleton.FilterResult{}, 0, fmt.Errorf("failed to read skeleton %s: %w", path, err)
	}
	leaves, err := skeleton.ExtractLeafNodes(g)
	if err != nil {
		return skeleton.FilterResult{}, 0, err
	}
	res, err := skeleton.AdaptiveFilter{Percentage: percentage}.Filter(leaves, g.HeightRange())
	if err != nil {
		return res, len(leaves), err
	}
	if len(res.Points) == 0 {
		return res, len(leaves), fmt.Errorf("no leaf nodes after filtering: %w", treemodel.ErrInsufficientData)
	}
	monitoring.Verbosef("skeleton %s: %d leaves, %d kept, %d rejected (tolerance %.3f m, %d neighbours)",
		filepath.Base(path), len(leaves), len(res.Points), res.Rejected(len(leaves)), res.HeightTolerance, res.Neighbors)
	return res, len(leaves), nil
}

// ProcessTree runs every enabled stage for one tree.
func ProcessTree(ctx context.Context, in TreeInput, p Params) *TreeResult {
	clock := timeutil.Or(p.Clock)
	start := clock.Now()
	res := &TreeResult{TreeID: in.ID, ProcessedAt: start}
	if res.TreeID == "" {
		res.TreeID = TreeID(firstNonEmpty(in.SkeletonPath, in.FilteredPath, in.MeshPath))
	}
	defer func() { res.Duration = clock.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	fsys := p.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}

	pts, skelErr := leafPoints(fsys, in, p, res)
	if skelErr != nil {
		res.SkeletonError = skelErr.Error()
		monitoring.Logf("tree %s: skeleton stage failed: %v", res.TreeID, skelErr)
	}
	res.Points = pts

	if len(pts) > 0 {
		res.Height = metric.ComputeHeight(pts, p.TopN)
		if res.Height.Success {
			res.CrownDepth = metric.ComputeCrownDepth(pts, res.Height.TreeHeight, p.BottomN)
		} else {
			monitoring.Logf("tree %s: height failed: %s", res.TreeID, res.Height.Error)
		}
		if p.ComputeCrown {
			measureCrown(pts, res)
		}
	}

	var (
		mesh    *meshio.Mesh
		meshErr error
	)
	if in.MeshPath != "" {
		mesh, meshErr = meshio.ReadMesh(fsys, in.MeshPath)
		if meshErr != nil {
			monitoring.Logf("tree %s: %v", res.TreeID, meshErr)
		}
	}

	switch {
	case mesh == nil || !res.CrownDepth.Success || res.CrownDepth.H0 <= 0:
		res.DBH.MethodUsed = treemodel.MethodNotComputed
	default:
		res.DBH = metric.ComputeDBH(mesh.VertexCloud(), res.CrownDepth.H0, p.DBH)
		if !res.DBH.Success {
			monitoring.Logf("tree %s: DBH failed: %s", res.TreeID, res.DBH.Error)
			res.DBH.MethodUsed = treemodel.MethodFailed
		}
	}

	if mesh != nil && p.ComputeVolume {
		res.Mesh = meshio.ComputeMeshStats(mesh)
	}

	if len(pts) == 0 && mesh == nil {
		res.Err = fmt.Errorf("tree %s: nothing to measure: %w", res.TreeID, errors.Join(skelErr, meshErr, treemodel.ErrInputMissing))
		return res
	}
	monitoring.Verbosef("tree %s: height %.2f m, h0 %.2f m, crown radius %.2f m, DBH %.2f cm (%s)",
		res.TreeID, res.Height.TreeHeight, res.CrownDepth.H0, res.Crown.CrownRadius, res.DBH.DBHCm, res.DBH.MethodUsed)
	return res
}

// leafPoints returns the filtered leaf points, either from an existing
// filtered file or by filtering the skeleton and persisting the result.
func leafPoints(fsys fsutil.FileSystem, in TreeInput, p Params, res *TreeResult) ([]treemodel.Point3D, error) {
	if in.FilteredPath != "" {
		pts, err := meshio.ReadXYZ(fsys, in.FilteredPath)
		if err != nil {
			return nil, err
		}
		res.HasSkeleton = true
		res.FilteredPath = in.FilteredPath
		res.LeafNodesFiltered = len(pts)
		return pts, nil
	}
	if in.SkeletonPath == "" {
		return nil, fmt.Errorf("no skeleton: %w", treemodel.ErrInputMissing)
	}

	fr, total, err := FilterSkeleton(fsys, in.SkeletonPath, p.FilterPercentage)
	res.LeafNodesTotal = total
	if err != nil {
		return nil, err
	}
	res.HasSkeleton = true
	res.LeafNodesFiltered = len(fr.Points)

	if p.OutputDir != "" {
		path := meshio.FilteredPath(p.OutputDir, in.SkeletonPath)
		if err := meshio.WriteXYZ(fsys, path, fr.Points); err != nil {
			// The points are still usable in memory.
			monitoring.Logf("tree %s: %v", res.TreeID, err)
		} else {
			res.FilteredPath = path
		}
	}
	return fr.Points, nil
}

func measureCrown(pts []treemodel.Point3D, res *TreeResult) {
	g, err := metric.EstimateCrown(pts)
	if err != nil {
		res.Crown = metric.ComputeCrownRadius(pts)
		monitoring.Logf("tree %s: crown failed: %s", res.TreeID, res.Crown.Error)
		return
	}
	res.Geometry = &g
	res.Crown = g.Result()
	if g.Degenerate {
		monitoring.Logf("tree %s: crown hull degenerate, using bounding box", res.TreeID)
	}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
