package qntm

import (
	"context"
	"sync"
)

// BatchItem pairs a chunk index with its generated keys/reasoning so callers
// can correlate results back to input order.
type BatchItem struct {
	Index  int
	Result GenerateResult
	Err    error
}

// GenerateBatch dispatches Generate concurrently across texts, with
// pressure control capped at maxConcurrency in-flight calls. The i-th
// entry of the returned slice corresponds to the i-th input text.
func (g *Generator) GenerateBatch(ctx context.Context, texts []string, cache *ReuseCache, chunkContext string, maxConcurrency int) []BatchItem {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	results := make([]BatchItem, len(texts))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, chunkText string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := g.Generate(ctx, chunkText, cache.Sample(), chunkContext)
			if err == nil {
				cache.Add(res.Keys)
			}
			results[idx] = BatchItem{Index: idx, Result: res, Err: err}
		}(i, text)
	}

	wg.Wait()
	return results
}
