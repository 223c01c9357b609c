package qntm

import "sync"

// ReuseCache is a set of known QNTM keys, used to bias the generator toward
// stable addresses instead of minting near-duplicates. Ingestion pipelines
// share atlascontext's single instance, so keys added during one run stay
// in it for later runs of the same process. Nothing fills it from stored
// chunks at pipeline start; keys written by an earlier process are not in it.
type ReuseCache struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewReuseCache builds an empty cache.
func NewReuseCache() *ReuseCache {
	return &ReuseCache{keys: make(map[string]struct{})}
}

// Seed adds a given set of existing qntm_keys to the cache.
func (c *ReuseCache) Seed(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.keys[k] = struct{}{}
	}
}

// Add records newly generated keys so later calls within the same run see
// them in the sample.
func (c *ReuseCache) Add(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.keys[k] = struct{}{}
	}
}

// Sample returns a snapshot of the known keys for use as generation
// context. Order is unspecified.
func (c *ReuseCache) Sample() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.keys))
	for k := range c.keys {
		out = append(out, k)
	}
	return out
}

// Len reports the number of distinct keys currently cached.
func (c *ReuseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
