package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_GlobSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"tree_b_skeleton.ply", "tree_a_skeleton.ply", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	matches, err := OSFileSystem{}.Glob(filepath.Join(dir, "*.ply"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if filepath.Base(matches[0]) != "tree_a_skeleton.ply" {
		t.Errorf("expected tree_a first, got %s", matches[0])
	}
}

func TestOSFileSystem_CreateAndOpen(t *testing.T) {
	fs := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "out", "tree_filtered.xyz")

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	w, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := io.WriteString(w, "1.000000 2.000000 3.000000 1.000000\n"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if len(data) == 0 {
		t.Error("expected content")
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("tree_id,height\n")
	if err := mfs.WriteFile("/reports/summary.csv", testData, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/reports/summary.csv")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	// Returned bytes are a copy.
	data[0] = 'X'
	again, _ := mfs.ReadFile("/reports/summary.csv")
	if again[0] != 't' {
		t.Error("ReadFile should return a copy")
	}
}

func TestMemoryFileSystem_CreateOpenStat(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/tree_filtered.xyz")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("0.000000 0.000000 5.000000 1.000000\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := mfs.Open("/out/tree_filtered.xyz")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "0.000000 0.000000 5.000000 1.000000\n" {
		t.Errorf("unexpected content %q", data)
	}
	info, err := f.Stat()
	if err != nil || info.Size() != int64(len(data)) {
		t.Errorf("Stat size mismatch: %v %v", info, err)
	}

	if _, err := mfs.Open("/missing"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestMemoryFileSystem_DirsAndGlob(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/data/trees", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if !mfs.Exists("/data") || !mfs.Exists("/data/trees") {
		t.Error("expected parent directories to exist")
	}
	info, err := mfs.Stat("/data/trees")
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory stat, got %v %v", info, err)
	}

	_ = mfs.WriteFile("/data/trees/t2_skeleton.ply", nil, 0644)
	_ = mfs.WriteFile("/data/trees/t1_skeleton.ply", nil, 0644)
	_ = mfs.WriteFile("/data/trees/t1_branches.obj", nil, 0644)

	matches, err := mfs.Glob("/data/trees/*_skeleton.ply")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	want := []string{"/data/trees/t1_skeleton.ply", "/data/trees/t2_skeleton.ply"}
	if len(matches) != len(want) || matches[0] != want[0] || matches[1] != want[1] {
		t.Errorf("Glob = %v, want %v", matches, want)
	}

	if _, err := mfs.Glob("[bad"); err == nil {
		t.Error("expected pattern error")
	}
}
