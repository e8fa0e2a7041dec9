package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/meshio"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/timeutil"
	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// BatchResult holds the per-tree results in input order.
type BatchResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Trees     []*TreeResult
	Succeeded int
	Failed    int
}

// Successful returns the trees that produced a record, in input order.
func (b *BatchResult) Successful() []*TreeResult {
	out := make([]*TreeResult, 0, b.Succeeded)
	for _, t := range b.Trees {
		if t.OK() {
			out = append(out, t)
		}
	}
	return out
}

// RunBatch processes inputs with at most workers trees in flight. A
// cancelled context stops trees that have not started; they are counted
// as failed. A panic while processing one tree is recorded as that tree's
// failure.
func RunBatch(ctx context.Context, inputs []TreeInput, p Params, workers int) *BatchResult {
	if workers < 1 {
		workers = 1
	}
	clock := timeutil.Or(p.Clock)
	b := &BatchResult{
		RunID:     uuid.New().String(),
		StartedAt: clock.Now(),
		Trees:     make([]*TreeResult, len(inputs)),
	}
	monitoring.Logf("run %s: %d trees, %d workers", b.RunID, len(inputs), workers)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in TreeInput) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			defer func() {
				if r := recover(); r != nil {
					b.Trees[i] = &TreeResult{
						TreeID:      firstNonEmpty(in.ID, TreeID(firstNonEmpty(in.SkeletonPath, in.FilteredPath, in.MeshPath))),
						ProcessedAt: clock.Now(),
						Err:         fmt.Errorf("panic: %v", r),
					}
				}
			}()

			monitoring.Verbosef("[%d/%d] %s", i+1, len(inputs), firstNonEmpty(in.ID, in.SkeletonPath, in.FilteredPath))
			b.Trees[i] = ProcessTree(ctx, in, p)
		}(i, in)
	}
	wg.Wait()

	for _, t := range b.Trees {
		if t.OK() {
			b.Succeeded++
		} else {
			b.Failed++
			monitoring.Logf("tree %s failed: %v", t.TreeID, t.Err)
		}
	}
	b.Duration = clock.Since(b.StartedAt)
	monitoring.Logf("run %s: %d succeeded, %d failed in %s", b.RunID, b.Succeeded, b.Failed, b.Duration.Round(time.Millisecond))
	return b
}

// FindTreeInputs discovers the trees under dir. Skeletons named
// "<stem>_skeleton.ply" are preferred; if there are none, every .ply file
// is taken. The mesh for each tree is "<stem>_branches.obj" when present,
// otherwise the first "<stem>_branches*" OBJ or STL. A path ending in .ply
// is treated as a single tree.
func FindTreeInputs(fsys fsutil.FileSystem, dir string) ([]TreeInput, error) {
	if strings.EqualFold(filepath.Ext(dir), ".ply") {
		if !fsys.Exists(dir) {
			return nil, fmt.Errorf("skeleton %s: %w", dir, treemodel.ErrInputMissing)
		}
		return []TreeInput{treeInputFor(fsys, filepath.Dir(dir), dir)}, nil
	}

	skeletons, err := fsys.Glob(filepath.Join(dir, "*_skeleton.ply"))
	if err != nil {
		return nil, fmt.Errorf("failed to list skeletons: %w", err)
	}
	if len(skeletons) == 0 {
		if skeletons, err = fsys.Glob(filepath.Join(dir, "*.ply")); err != nil {
			return nil, fmt.Errorf("failed to list skeletons: %w", err)
		}
	}
	if len(skeletons) == 0 {
		return nil, fmt.Errorf("no skeleton files in %s: %w", dir, treemodel.ErrInputMissing)
	}

	inputs := make([]TreeInput, 0, len(skeletons))
	for _, s := range skeletons {
		inputs = append(inputs, treeInputFor(fsys, dir, s))
	}
	return inputs, nil
}

// FindFilteredInputs lists "*_filtered.xyz" files under dir, or dir itself
// when it names an .xyz file, pairing each with its branch mesh.
func FindFilteredInputs(fsys fsutil.FileSystem, dir string) ([]TreeInput, error) {
	var files []string
	if strings.EqualFold(filepath.Ext(dir), ".xyz") {
		files = []string{dir}
		dir = filepath.Dir(dir)
	} else {
		var err error
		if files, err = fsys.Glob(filepath.Join(dir, "*"+meshio.FilteredSuffix)); err != nil {
			return nil, fmt.Errorf("failed to list filtered files: %w", err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no filtered leaf files in %s: %w", dir, treemodel.ErrInputMissing)
	}

	inputs := make([]TreeInput, 0, len(files))
	for _, f := range files {
		id := TreeID(f)
		inputs = append(inputs, TreeInput{
			ID:           id,
			FilteredPath: f,
			MeshPath:     findMesh(fsys, dir, id),
		})
	}
	return inputs, nil
}

func treeInputFor(fsys fsutil.FileSystem, dir, skeletonPath string) TreeInput {
	id := TreeID(skeletonPath)
	return TreeInput{
		ID:           id,
		SkeletonPath: skeletonPath,
		MeshPath:     findMesh(fsys, dir, id),
	}
}

func findMesh(fsys fsutil.FileSystem, dir, id string) string {
	exact := filepath.Join(dir, id+"_branches.obj")
	if fsys.Exists(exact) {
		return exact
	}
	for _, ext := range []string{".obj", ".stl"} {
		matches, err := fsys.Glob(filepath.Join(dir, id+"_branches*"+ext))
		if err == nil && len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}
