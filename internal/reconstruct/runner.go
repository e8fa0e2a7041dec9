// Package reconstruct drives the external tree reconstruction tool that
// turns a point cloud into a branch mesh and a skeleton.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/timeutil"
	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// Output suffixes written by the reconstruction tool next to each input.
const (
	BranchesSuffix    = "_branches.obj"
	SkeletonSuffix    = "_skeleton.ply"
	SkeletonOBJSuffix = "_skeleton.obj"
)

// DefaultBackoff is the wait before the first retry. It doubles per attempt.
const DefaultBackoff = time.Second

// ErrNoCommand is returned when the runner has no command configured.
var ErrNoCommand = errors.New("no reconstruction command configured")

// Runner invokes Command as "<command...> <cloud> <outdir>".
type Runner struct {
	Command string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	FS      fsutil.FileSystem
	Clock   timeutil.Clock
}

// Output lists the artifacts found after a successful run. SkeletonPath is
// empty when the tool wrote no PLY skeleton.
type Output struct {
	TreeID       string
	BranchesPath string
	SkeletonPath string
	Attempts     int
	Combined     string
}

// Reconstruct runs the tool on cloudPath, retrying failed attempts, and
// locates the branch mesh and skeleton in outDir.
func (r *Runner) Reconstruct(ctx context.Context, cloudPath, outDir string) (*Output, error) {
	argv := strings.Fields(r.Command)
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	fsys := r.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if !fsys.Exists(cloudPath) {
		return nil, fmt.Errorf("point cloud %s: %w", cloudPath, treemodel.ErrInputMissing)
	}
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	id := strings.TrimSuffix(filepath.Base(cloudPath), filepath.Ext(cloudPath))
	out := &Output{TreeID: id}
	clock := timeutil.Or(r.Clock)
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if attempt > 0 {
			monitoring.Logf("reconstruct %s: retry %d/%d in %v after: %v", id, attempt, r.Retries, backoff, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-clock.After(backoff):
			}
			backoff *= 2
		}
		out.Attempts = attempt + 1
		combined, err := r.runOnce(ctx, argv, cloudPath, outDir)
		out.Combined = combined
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("reconstruct %s failed after %d attempt(s): %w", id, out.Attempts, lastErr)
	}

	out.BranchesPath = filepath.Join(outDir, id+BranchesSuffix)
	if !fsys.Exists(out.BranchesPath) {
		return nil, fmt.Errorf("branches mesh %s: %w", out.BranchesPath, treemodel.ErrInputMissing)
	}
	if p := filepath.Join(outDir, id+SkeletonSuffix); fsys.Exists(p) {
		out.SkeletonPath = p
	} else if fsys.Exists(filepath.Join(outDir, id+SkeletonOBJSuffix)) {
		monitoring.Logf("reconstruct %s: only an OBJ skeleton was written, leaf extraction needs %s", id, SkeletonSuffix)
	}
	monitoring.Verbosef("reconstruct %s: done in %d attempt(s)", id, out.Attempts)
	return out, nil
}

func (r *Runner) runOnce(ctx context.Context, argv []string, cloudPath, outDir string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	args := append(append([]string{}, argv[1:]...), cloudPath, outDir)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	// Children that inherit the output pipe must not hold Wait open forever.
	cmd.WaitDelay = 5 * time.Second
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(output), fmt.Errorf("timed out after %v", r.Timeout)
	}
	if err != nil {
		return string(output), fmt.Errorf("%w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
