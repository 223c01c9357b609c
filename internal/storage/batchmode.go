package storage

import (
	"context"
	"fmt"
	"sync"
)

// MDefault is the conventional HNSW M value for normal (indexed) operation.
const MDefault = 16

// MDisabled disables HNSW graph maintenance, used during bulk ingest so
// vectors are stored but left unindexed until the batch completes.
const MDisabled = 0

// IndexingCoordinator tracks, per collection, how many nested batch-load
// scopes are currently open. Only the outermost scope actually toggles the
// backend's HNSW M parameter; nested callers share the same disabled state
// and the index is re-enabled exactly once, on the outermost exit.
type IndexingCoordinator struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewIndexingCoordinator builds an empty, process-wide coordinator. A
// single instance should be shared by every caller that touches a given
// Store, since re-entrancy is tracked per collection name in memory.
func NewIndexingCoordinator() *IndexingCoordinator {
	return &IndexingCoordinator{counts: make(map[string]int)}
}

// WithIndexingDisabled runs fn with HNSW graph maintenance disabled for
// collection on store, guaranteeing the index is re-enabled (M=MDefault)
// on every exit path: success, error, or context cancellation. If another
// scope for the same collection is already open, this call is a no-op
// wrapper that neither disables nor re-enables the index itself.
func (c *IndexingCoordinator) WithIndexingDisabled(ctx context.Context, store Store, collection string, fn func(ctx context.Context) error) (err error) {
	outermost, enterErr := c.enter(ctx, store, collection)
	if enterErr != nil {
		return enterErr
	}

	defer func() {
		defer c.exit(collection)
		if !outermost {
			return
		}
		// Re-enable on every exit path, including panics: rebuild the
		// index before unwinding further.
		if rebuildErr := store.SetHNSWM(context.WithoutCancel(ctx), collection, MDefault); rebuildErr != nil {
			if err != nil {
				err = fmt.Errorf("%w (index rebuild also failed: %v)", err, rebuildErr)
				return
			}
			err = fmt.Errorf("storage: rebuilding HNSW index for %s: %w", collection, rebuildErr)
		}
	}()

	err = fn(ctx)
	return err
}

// enter increments the scope counter for collection, disabling the index
// via store.SetHNSWM only when this call is the outermost (count goes
// 0 -> 1). It reports whether this call was the outermost.
func (c *IndexingCoordinator) enter(ctx context.Context, store Store, collection string) (bool, error) {
	c.mu.Lock()
	count := c.counts[collection]
	c.counts[collection] = count + 1
	c.mu.Unlock()

	if count != 0 {
		return false, nil
	}

	if err := store.SetHNSWM(ctx, collection, MDisabled); err != nil {
		c.mu.Lock()
		c.counts[collection]--
		c.mu.Unlock()
		return false, fmt.Errorf("storage: disabling HNSW index for %s: %w", collection, err)
	}
	return true, nil
}

// exit decrements the scope counter for collection, clamped at zero.
func (c *IndexingCoordinator) exit(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[collection] > 0 {
		c.counts[collection]--
	}
	if c.counts[collection] == 0 {
		delete(c.counts, collection)
	}
}
