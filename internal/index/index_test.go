package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIndexFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "run.sh"), "echo hi\n")
	mustWrite(t, filepath.Join(dir, "README.md"), "not a script\n")
	mustWrite(t, filepath.Join(dir, "lib", "load.sh"), "echo loaded\n")

	ix := New(false, false)
	res, err := ix.Index(context.Background(), dir)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.Windowsish {
		t.Errorf("expected non-windows bundle without meta.json")
	}
	allow := res.AllowList()
	if !allow["run.sh"] || !allow["lib/load.sh"] {
		t.Fatalf("expected run.sh and lib/load.sh in allow-list, got %v", allow)
	}
	if allow["README.md"] {
		t.Errorf("README.md should not be indexed")
	}
}

func TestIndexWithContentHashPopulatesHashesConcurrently(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "run.sh"), "echo hi\n")
	mustWrite(t, filepath.Join(dir, "lib", "load.sh"), "echo loaded\n")

	ix := New(false, true)
	res, err := ix.Index(context.Background(), dir)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(res.Files))
	}
	for _, f := range res.Files {
		if f.ContentHash == "" {
			t.Errorf("expected ContentHash for %s to be populated", f.Path)
		}
	}
}

func TestDetectPlatformFromMeta(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "meta.json"), `{"platform": "windows"}`)
	if !DetectPlatform(dir) {
		t.Errorf("expected windows platform to be detected")
	}
}

func TestDetectPlatformDefaultsNonWindows(t *testing.T) {
	dir := t.TempDir()
	if DetectPlatform(dir) {
		t.Errorf("expected non-windows default without meta.json")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
