package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReingestsOnWrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "seed.txt", "alpha beta gamma delta epsilon")

	store := newFakeStore()
	pipeline := newTestPipeline(t, store, `"concept ~ relates_to ~ other"`)

	w, err := NewWatcher(root, DiscoveryOptions{}, pipeline)
	if err != nil {
		t.Fatalf("unexpected error creating watcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	target := filepath.Join(root, "seed.txt")
	if err := os.WriteFile(target, []byte("alpha beta gamma delta epsilon zeta eta"), 0o644); err != nil {
		t.Fatalf("unexpected error writing file: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.File.RelPath != "seed.txt" {
			t.Errorf("expected event for seed.txt, got %s", ev.File.RelPath)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a re-ingest event after file write")
	}
}
