package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_SkipsDefaultDirsAndEmptyFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "hello world")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}")
	writeFile(t, root, "empty.txt", "   \n  ")
	writeFile(t, root, "src/main.go", "package main")

	files, err := Discover(root, DiscoveryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rels := map[string]bool{}
	for _, f := range files {
		rels[f.RelPath] = true
	}
	if !rels["README.md"] || !rels[filepath.Join("src", "main.go")] {
		t.Errorf("expected README.md and src/main.go to be discovered, got %v", rels)
	}
	if rels[filepath.Join("node_modules", "pkg", "index.js")] {
		t.Error("expected node_modules to be skipped")
	}
	if rels["empty.txt"] {
		t.Error("expected blank file to be skipped")
	}
}

func TestDiscover_RespectsMaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", "0123456789")

	files, err := Discover(root, DiscoveryOptions{MaxFileSize: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected big.txt to be excluded by size limit, got %v", files)
	}
}

func TestDiscover_IncludeExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.md", "# doc")
	writeFile(t, root, "a_test.go", "package a")

	files, err := Discover(root, DiscoveryOptions{
		IncludePatterns: []string{"*.go"},
		ExcludePatterns: []string{"*_test.go"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "a.go" {
		t.Errorf("expected only a.go, got %v", files)
	}
}

func TestDiscover_RejectsMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "missing"), DiscoveryOptions{}); err == nil {
		t.Error("expected error for missing root")
	}
}
