package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = fmt.Errorf("ingest: failed to initialize filesystem watcher")

// FileChangeEvent is a debounced file write detected under a watched root.
type FileChangeEvent struct {
	File      DiscoveredFile
	Timestamp time.Time
}

// Watcher re-ingests files as they change on disk, so a running atlasd
// stays current with an actively edited project without a manual re-index.
type Watcher struct {
	root     string
	opts     DiscoveryOptions
	pipeline *Pipeline
	watcher  *fsnotify.Watcher
	events   chan FileChangeEvent
	stop     chan struct{}
	debounce time.Duration
}

// defaultDebounce coalesces the burst of writes an editor's save produces
// (temp file write + rename) into a single re-ingest.
const defaultDebounce = 500 * time.Millisecond

// NewWatcher builds a Watcher over root, recursively adding every
// directory not in defaultSkipDirs.
func NewWatcher(root string, opts DiscoveryOptions, pipeline *Pipeline) (*Watcher, error) {
	cleanRoot, err := validateRoot(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}

	w := &Watcher{
		root:     cleanRoot,
		opts:     opts,
		pipeline: pipeline,
		watcher:  fsw,
		events:   make(chan FileChangeEvent, 32),
		stop:     make(chan struct{}),
		debounce: defaultDebounce,
	}

	if err := w.addDirs(cleanRoot); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("ingest: adding watch directories: %w", err)
	}

	return w, nil
}

func (w *Watcher) addDirs(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if defaultSkipDirs[filepath.Base(path)] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Start runs the event loop in a background goroutine until ctx is done or
// Stop is called. Re-ingestion happens inline on the event loop goroutine,
// so changes are processed one at a time in arrival order.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop stops the watcher and releases its filesystem handles. Safe to call
// more than once.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns the channel of debounced, successfully re-ingested file
// changes. Primarily useful for tests and observability; ingestion itself
// does not require a reader on this channel.
func (w *Watcher) Events() <-chan FileChangeEvent {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	pending := map[string]*time.Timer{}
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	fire := make(chan string, 32)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			path := event.Name
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- path:
				case <-w.stop:
				}
			})

		case path := <-fire:
			delete(pending, path)
			w.reingest(ctx, path)

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reingest(ctx context.Context, absPath string) {
	relPath, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return
	}
	if !shouldIngest(relPath, info, w.opts) {
		return
	}

	f := DiscoveredFile{AbsPath: absPath, RelPath: relPath, Size: info.Size()}
	result := w.pipeline.IngestFile(ctx, f)
	if result.Err != nil {
		return
	}

	select {
	case w.events <- FileChangeEvent{File: f, Timestamp: time.Now()}:
	default:
		// Channel full: the caller isn't draining Events(); drop rather
		// than block re-ingestion of subsequent changes.
	}
}
