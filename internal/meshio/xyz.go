package meshio

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/treemodel"
)

// FilteredSuffix is appended to the tree name for the filtered point artifact.
const FilteredSuffix = "_filtered.xyz"

// FilteredPath returns <dir>/<stem>_filtered.xyz for a source file.
func FilteredPath(dir, source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, stem+FilteredSuffix)
}

// EncodeXYZ writes one "x y z radius" line per point with six decimals.
func EncodeXYZ(w io.Writer, pts []treemodel.Point3D) error {
	bw := bufio.NewWriter(w)
	for _, p := range pts {
		if _, err := fmt.Fprintf(bw, "%.6f %.6f %.6f %.6f\n", p.X, p.Y, p.Z, p.Radius); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeXYZ reads "x y z [radius]" lines. Blank lines and lines starting
// with '#' or '/' are skipped, as are lines that do not parse.
func DecodeXYZ(r io.Reader) ([]treemodel.Point3D, error) {
	var pts []treemodel.Point3D
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '/' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			monitoring.Logf("xyz line %d: expected at least 3 fields, got %d", lineNo, len(fields))
			continue
		}
		var vals [4]float64
		vals[3] = treemodel.DefaultRadius
		n := min(len(fields), 4)
		ok := true
		for i := 0; i < n; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				monitoring.Logf("xyz line %d: %v", lineNo, err)
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		pts = append(pts, treemodel.Point3D{X: vals[0], Y: vals[1], Z: vals[2], Radius: vals[3]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan xyz: %w", err)
	}
	return pts, nil
}

// WriteXYZ stores pts at path on fsys, creating the parent directory.
func WriteXYZ(fsys fsutil.FileSystem, path string, pts []treemodel.Point3D) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := EncodeXYZ(w, pts); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return w.Close()
}

// ReadXYZ loads a point file from fsys. An existing file without any
// usable point is reported as ErrInputMissing.
func ReadXYZ(fsys fsutil.FileSystem, path string) ([]treemodel.Point3D, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	pts, err := DecodeXYZ(f)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no points in %s: %w", path, treemodel.ErrInputMissing)
	}
	return pts, nil
}
